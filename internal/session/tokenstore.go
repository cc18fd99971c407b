package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const expirationLayout = time.RFC3339Nano

// tokenStore caches the TokenSet in memory and mirrors it to Storage.
// Callers hold the manager lock.
type tokenStore struct {
	storage Storage
	logger  *zap.Logger
	set     TokenSet
}

// load replaces the in-memory set with the persisted one. Any read or parse
// failure yields an empty set.
func (s *tokenStore) load(ctx context.Context) {
	set, err := s.read(ctx)
	if err != nil {
		s.logger.Debug("discarding persisted tokens", zap.Error(err))
		set = TokenSet{}
	}
	s.set = set
}

func (s *tokenStore) read(ctx context.Context) (TokenSet, error) {
	var (
		set TokenSet
		err error
	)
	if set.IDToken, err = s.get(ctx, KeyIDToken); err != nil {
		return TokenSet{}, err
	}
	if set.AccessToken, err = s.get(ctx, KeyAccessToken); err != nil {
		return TokenSet{}, err
	}
	if set.RefreshToken, err = s.get(ctx, KeyRefreshToken); err != nil {
		return TokenSet{}, err
	}

	raw, err := s.get(ctx, KeyExpiration)
	if err != nil {
		return TokenSet{}, err
	}
	if raw != "" {
		if set.ExpiresAt, err = time.Parse(expirationLayout, raw); err != nil {
			return TokenSet{}, fmt.Errorf("parsing %s: %w", KeyExpiration, err)
		}
	}

	return set.normalize(), nil
}

func (s *tokenStore) get(ctx context.Context, key string) (string, error) {
	value, found, err := s.storage.GetItem(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	if !found {
		return "", nil
	}
	return value, nil
}

// save writes every field independently. Empty fields are removed so a
// later load never mixes old and new values.
func (s *tokenStore) save(ctx context.Context) error {
	expiration := ""
	if !s.set.ExpiresAt.IsZero() {
		expiration = s.set.ExpiresAt.UTC().Format(expirationLayout)
	}

	fields := []struct{ key, value string }{
		{KeyIDToken, s.set.IDToken},
		{KeyAccessToken, s.set.AccessToken},
		{KeyRefreshToken, s.set.RefreshToken},
		{KeyExpiration, expiration},
	}

	var errs []error
	for _, f := range fields {
		var err error
		if f.value == "" {
			err = s.storage.RemoveItem(ctx, f.key)
		} else {
			err = s.storage.SetItem(ctx, f.key, f.value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", f.key, err))
		}
	}
	return errors.Join(errs...)
}

// clear empties memory and deletes every persisted token key.
func (s *tokenStore) clear(ctx context.Context) error {
	s.set = TokenSet{}

	var errs []error
	for _, key := range TokenKeys {
		if err := s.storage.RemoveItem(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
