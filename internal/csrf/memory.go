package csrf

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements the Store interface in process memory
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemoryStore creates an in-memory state token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(DefaultExpiry, time.Minute)}
}

// SaveToken stores a state token with expiration
func (s *MemoryStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}
	s.c.Set(token, struct{}{}, expiresIn)
	return nil
}

// ConsumeToken deletes the token if it exists and has not expired
func (s *MemoryStore) ConsumeToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.c.Get(token); !ok {
		return ErrInvalidToken
	}
	s.c.Delete(token)
	return nil
}

// CheckHealth always succeeds
func (s *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}
