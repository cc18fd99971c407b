package csrf

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// mockStore implements Store interface for testing
type mockStore struct {
	tokens map[string]time.Time
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{
		tokens: make(map[string]time.Time),
	}
}

func (m *mockStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.tokens[token] = time.Now().Add(expiresIn)
	return nil
}

func (m *mockStore) ConsumeToken(ctx context.Context, token string) error {
	if m.err != nil {
		return m.err
	}
	expiry, exists := m.tokens[token]
	if !exists || time.Now().After(expiry) {
		return ErrInvalidToken
	}
	delete(m.tokens, token)
	return nil
}

func (m *mockStore) CheckHealth(ctx context.Context) error {
	return m.err
}

var testSecret = []byte("test-secret-key-32-bytes-exactly!")

func TestVerifier_GenerateToken(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	verifier := NewManager(store, testSecret, 15*time.Minute).Bind("sess-1")

	t.Run("success", func(t *testing.T) {
		token, err := verifier.GenerateToken(ctx)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		// Verify token format
		parts := strings.Split(token, ".")
		if len(parts) != 2 {
			t.Fatalf("GenerateToken() token has wrong format, got %s", token)
		}
		for _, part := range parts {
			if _, err := base64.RawURLEncoding.DecodeString(part); err != nil {
				t.Errorf("GenerateToken() part %q not base64: %v", part, err)
			}
		}
		if _, ok := store.tokens[token]; !ok {
			t.Error("GenerateToken() did not store the token")
		}
	})

	t.Run("store_error", func(t *testing.T) {
		store.err = errors.New("store error")
		defer func() { store.err = nil }()
		if _, err := verifier.GenerateToken(ctx); err == nil {
			t.Error("GenerateToken() expected error with bad store")
		}
	})

	t.Run("token_uniqueness", func(t *testing.T) {
		token1, _ := verifier.GenerateToken(ctx)
		token2, _ := verifier.GenerateToken(ctx)
		if token1 == token2 {
			t.Error("GenerateToken() tokens should be unique")
		}
	})
}

func TestVerifier_ValidateToken(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	manager := NewManager(store, testSecret, 15*time.Minute)
	verifier := manager.Bind("sess-1")

	t.Run("valid_token", func(t *testing.T) {
		token, _ := verifier.GenerateToken(ctx)
		if err := verifier.ValidateToken(ctx, token); err != nil {
			t.Errorf("ValidateToken() error = %v", err)
		}
	})

	t.Run("reused_token", func(t *testing.T) {
		token, _ := verifier.GenerateToken(ctx)
		if err := verifier.ValidateToken(ctx, token); err != nil {
			t.Fatalf("first ValidateToken() error = %v", err)
		}
		if err := verifier.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("second ValidateToken() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("other_session", func(t *testing.T) {
		token, _ := manager.Bind("sess-2").GenerateToken(ctx)
		if err := verifier.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, token := range []string{"", "invalid", ".sig", "abc.!!!"} {
			if err := verifier.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken(%q) error = %v, want %v", token, err, ErrInvalidToken)
			}
		}
	})

	t.Run("invalid_signature", func(t *testing.T) {
		token, _ := verifier.GenerateToken(ctx)
		nonce, _, _ := strings.Cut(token, ".")
		if err := verifier.ValidateToken(ctx, nonce+".YWJj"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("store_error", func(t *testing.T) {
		token, _ := verifier.GenerateToken(ctx)
		store.err = errors.New("store error")
		defer func() { store.err = nil }()
		if err := verifier.ValidateToken(ctx, token); err == nil {
			t.Error("ValidateToken() expected error with bad store")
		}
	})
}

func TestManager_CheckHealth(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	manager := NewManager(store, []byte("test-secret"), time.Minute)

	t.Run("healthy", func(t *testing.T) {
		if err := manager.CheckHealth(ctx); err != nil {
			t.Errorf("CheckHealth() error = %v", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		store.err = errors.New("store error")
		defer func() { store.err = nil }()
		if err := manager.CheckHealth(ctx); err == nil {
			t.Error("CheckHealth() expected error with bad store")
		}
	})
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	verifier := NewManager(NewRedisStore(client), testSecret, time.Minute).Bind("sess-1")

	token, err := verifier.GenerateToken(ctx)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if ttl := mr.TTL(tokenPrefix + token); ttl != time.Minute {
		t.Errorf("token TTL = %v, want %v", ttl, time.Minute)
	}
	if err := verifier.ValidateToken(ctx, token); err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if mr.Exists(tokenPrefix + token) {
		t.Error("token not consumed")
	}

	expired, _ := verifier.GenerateToken(ctx)
	mr.FastForward(2 * time.Minute)
	if err := verifier.ValidateToken(ctx, expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired ValidateToken() error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.SaveToken(ctx, "", time.Minute); err == nil {
		t.Error("SaveToken() accepted an empty token")
	}
	if err := store.SaveToken(ctx, "tok", time.Minute); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	if err := store.ConsumeToken(ctx, "tok"); err != nil {
		t.Errorf("ConsumeToken() error = %v", err)
	}
	if err := store.ConsumeToken(ctx, "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second ConsumeToken() error = %v, want %v", err, ErrInvalidToken)
	}

	if err := store.SaveToken(ctx, "short", time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.ConsumeToken(ctx, "short"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired ConsumeToken() error = %v, want %v", err, ErrInvalidToken)
	}
}
