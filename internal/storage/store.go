// Package storage persists per-browser-session key/value items for the token
// lifecycle manager.
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an idle session's items are kept
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidSessionID indicates an empty session id
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrEmptyKey indicates an empty item key
	ErrEmptyKey = errors.New("empty item key")
)

// Store defines the interface for session item storage. Every write extends
// the session's expiry by the store's TTL.
type Store interface {
	// Get returns an item. found is false for missing items and sessions.
	Get(ctx context.Context, sessionID, key string) (value string, found bool, err error)

	// Set stores an item
	Set(ctx context.Context, sessionID, key, value string) error

	// Delete removes items; missing items are ignored
	Delete(ctx context.Context, sessionID string, keys ...string) error

	// Items returns every item of a session
	Items(ctx context.Context, sessionID string) (map[string]string, error)

	// DeleteSession removes a session and all of its items
	DeleteSession(ctx context.Context, sessionID string) error

	// CheckHealth verifies the storage backend is healthy
	CheckHealth(ctx context.Context) error
}

// Scoped exposes a single session of a Store as GetItem/SetItem/RemoveItem.
type Scoped struct {
	store     Store
	sessionID string
}

// Scope binds store to one session id
func Scope(store Store, sessionID string) *Scoped {
	return &Scoped{store: store, sessionID: sessionID}
}

// SessionID returns the bound session id
func (s *Scoped) SessionID() string {
	return s.sessionID
}

// GetItem returns the value stored under key
func (s *Scoped) GetItem(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.sessionID, key)
}

// SetItem stores value under key
func (s *Scoped) SetItem(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.sessionID, key, value)
}

// RemoveItem deletes key
func (s *Scoped) RemoveItem(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.sessionID, key)
}

func checkArgs(sessionID, key string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
