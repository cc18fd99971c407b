package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenSource(t *testing.T) {
	f := newFixture(t)
	id := idToken(t, "alice", "openid")
	persist(t, f.storage, TokenSet{
		IDToken:     id,
		AccessToken: "access-1",
		ExpiresAt:   f.clock.Now().Add(time.Hour),
	})

	tok, err := f.manager.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != id {
		t.Error("bearer is not the identity token")
	}
	if tok.Type() != "Bearer" {
		t.Errorf("Type() = %q, want Bearer", tok.Type())
	}
	if !tok.Expiry.Equal(f.clock.Now().Add(time.Hour)) {
		t.Errorf("Expiry = %v", tok.Expiry)
	}
}

func TestTokenSource_NoCredential(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.TokenSource(context.Background()).Token()
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Token() error = %v, want ErrNoCredential", err)
	}
}

func TestClient_AttachesBearer(t *testing.T) {
	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	f := newFixture(t)
	f.provider.refreshToken = tokenResponse(t, 2, "")
	persist(t, f.storage, TokenSet{
		IDToken:      idToken(t, "alice", "openid"),
		AccessToken:  "access-1",
		RefreshToken: "r1",
		ExpiresAt:    f.clock.Now().Add(time.Minute),
	})

	resp, err := f.manager.Client(context.Background(), nil).Get(api.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	// Inside the refresh window the refreshed identity token is sent
	want := "Bearer " + f.provider.refreshToken.IDToken
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
	if n := f.provider.refreshCount(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestClient_NoCredential(t *testing.T) {
	called := false
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer api.Close()

	f := newFixture(t)
	_, err := f.manager.Client(context.Background(), nil).Get(api.URL)
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Get() error = %v, want ErrNoCredential", err)
	}
	if called {
		t.Error("request sent without a credential")
	}
}
