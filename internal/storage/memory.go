package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements the Store interface in process memory. Sessions
// expire after the TTL since their last write. Items are lost on restart.
type MemoryStore struct {
	mu  sync.Mutex
	c   *gocache.Cache
	ttl time.Duration
}

// NewMemoryStore creates an in-memory store. A non-positive ttl uses
// DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{c: gocache.New(ttl, time.Minute), ttl: ttl}
}

// CheckHealth always succeeds
func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}

// Get retrieves an item
func (s *MemoryStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if err := checkArgs(sessionID, key); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.items(sessionID)
	if !ok {
		return "", false, nil
	}
	value, found := items[key]
	return value, found, nil
}

// Set stores an item and slides the session expiry
func (s *MemoryStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := checkArgs(sessionID, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.items(sessionID)
	if !ok {
		items = make(map[string]string)
	}
	items[key] = value
	s.c.Set(sessionID, items, s.ttl)
	return nil
}

// Delete removes items from a session
func (s *MemoryStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.items(sessionID)
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(items, key)
	}
	return nil
}

// Items returns a copy of every item of a session
func (s *MemoryStore) Items(ctx context.Context, sessionID string) (map[string]string, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.items(sessionID)
	if !ok {
		return map[string]string{}, nil
	}
	return maps.Clone(items), nil
}

// DeleteSession removes a session and its items
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	s.c.Delete(sessionID)
	return nil
}

func (s *MemoryStore) items(sessionID string) (map[string]string, bool) {
	v, ok := s.c.Get(sessionID)
	if !ok {
		return nil, false
	}
	items, ok := v.(map[string]string)
	return items, ok
}
