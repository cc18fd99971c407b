package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:"

// RedisStore implements the Store interface using one Redis hash per session
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed store. A non-positive ttl uses
// DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get retrieves an item
func (s *RedisStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	if err := checkArgs(sessionID, key); err != nil {
		return "", false, err
	}

	value, err := s.client.HGet(ctx, sessionPrefix+sessionID, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting session item: %w", err)
	}
	return value, true, nil
}

// Set stores an item and slides the session expiry
func (s *RedisStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := checkArgs(sessionID, key); err != nil {
		return err
	}

	// Use pipeline so the item never outlives the session
	pipe := s.client.TxPipeline()
	hashKey := sessionPrefix + sessionID
	pipe.HSet(ctx, hashKey, key, value)
	pipe.Expire(ctx, hashKey, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session item: %w", err)
	}
	return nil
}

// Delete removes items from a session
func (s *RedisStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.HDel(ctx, sessionPrefix+sessionID, keys...).Err(); err != nil {
		return fmt.Errorf("deleting session items: %w", err)
	}
	return nil
}

// Items returns every item of a session
func (s *RedisStore) Items(ctx context.Context, sessionID string) (map[string]string, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	items, err := s.client.HGetAll(ctx, sessionPrefix+sessionID).Result()
	if err != nil {
		return nil, fmt.Errorf("listing session items: %w", err)
	}
	return items, nil
}

// DeleteSession removes a session hash
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	if err := s.client.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
