// Package csrf provides the one-time state parameter that binds an
// authorization redirect to the browser session that started it.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultExpiry bounds how long a login may take at the provider
const DefaultExpiry = 10 * time.Minute

// ErrInvalidToken indicates a missing, forged, expired or reused state token
var ErrInvalidToken = errors.New("invalid state token")

// Store provides token storage operations
type Store interface {
	// SaveToken stores a state token with expiry
	SaveToken(ctx context.Context, token string, expiresIn time.Duration) error

	// ConsumeToken removes a token, returning ErrInvalidToken if it was not
	// present
	ConsumeToken(ctx context.Context, token string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Manager handles state token generation and validation
type Manager struct {
	store     Store
	secret    []byte
	expiresIn time.Duration
}

// NewManager creates a new state token manager
func NewManager(store Store, secret []byte, expiresIn time.Duration) *Manager {
	if expiresIn == 0 {
		expiresIn = DefaultExpiry
	}
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
	}
}

// Bind returns a verifier whose tokens are only valid for sessionID
func (m *Manager) Bind(sessionID string) *Verifier {
	return &Verifier{m: m, sessionID: sessionID}
}

// CheckHealth verifies the state store is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("state store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) sign(sessionID, nonce string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return h.Sum(nil)
}

// Verifier issues and checks state tokens for one session
type Verifier struct {
	m         *Manager
	sessionID string
}

// GenerateToken creates and stores a new state token
func (v *Verifier) GenerateToken(ctx context.Context) (string, error) {
	// Generate 32 bytes of random data
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(nonceBytes)

	// Combine nonce and signature
	token := nonce + "." + base64.RawURLEncoding.EncodeToString(v.m.sign(v.sessionID, nonce))

	if err := v.m.store.SaveToken(ctx, token, v.m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}

	return token, nil
}

// ValidateToken checks the signature and consumes the token, so each token
// completes at most one login.
func (v *Verifier) ValidateToken(ctx context.Context, token string) error {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return ErrInvalidToken
	}

	actualSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(v.m.sign(v.sessionID, nonce), actualSig) {
		return ErrInvalidToken
	}

	if err := v.m.store.ConsumeToken(ctx, token); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}

	return nil
}
