package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/internal/oauth"
)

const refreshKey = "refresh"

// refreshTimeout bounds a shared refresh round trip, which is detached from
// the request that started it.
const refreshTimeout = 30 * time.Second

// GetAccessToken returns the bearer credential. Without a cached or
// persisted identity token the result is StatusRequiresRedirect. Otherwise
// the token is refreshed first when forced or when it expires within the
// refresh window. Refresh failures clear the session and yield
// StatusRequiresRedirect. The error is non-nil only when ctx ends before
// the result is known, or when the shared refresh times out; the session
// is not cleared in either case.
func (m *Manager) GetAccessToken(ctx context.Context, forceRefresh bool) (AccessTokenResult, error) {
	m.st.mu.Lock()
	if m.st.tokens.set.IDToken == "" {
		m.st.tokens.load(ctx)
	}
	p, changed := m.projectLocked()
	set := m.st.tokens.set
	m.st.mu.Unlock()

	if changed {
		m.notify(p)
	}

	if !set.HasIdentity() {
		return requiresRedirect(), nil
	}

	if m.needsRefresh(set, forceRefresh) {
		return m.refresh(ctx)
	}

	if !set.ExpiresAt.After(m.now()) {
		// Expired with nothing to renew it
		m.logger.Debug("cached token expired without refresh token")
		if err := m.Clear(ctx); err != nil {
			m.logger.Warn("clearing expired session", zap.Error(err))
		}
		return requiresRedirect(), nil
	}

	return m.success(), nil
}

func (m *Manager) needsRefresh(set TokenSet, force bool) bool {
	if set.RefreshToken == "" {
		return false
	}
	if force {
		return true
	}
	return set.ExpiresAt.Sub(m.now()) < m.refreshWindow
}

// refresh runs at most one refresh round-trip at a time; overlapping callers
// share its result. The round trip runs without any caller's cancellation,
// so a caller that goes away only stops waiting.
func (m *Manager) refresh(ctx context.Context) (AccessTokenResult, error) {
	if err := ctx.Err(); err != nil {
		return AccessTokenResult{}, err
	}

	ch := m.st.refresh.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.doRefresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return AccessTokenResult{}, res.Err
		}
		return res.Val.(AccessTokenResult), nil
	case <-ctx.Done():
		return AccessTokenResult{}, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (AccessTokenResult, error) {
	m.st.mu.Lock()
	refreshToken := m.st.tokens.set.RefreshToken
	m.st.mu.Unlock()

	if refreshToken == "" {
		return requiresRedirect(), nil
	}

	tok, err := m.provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return AccessTokenResult{}, ctx.Err()
		}

		m.recorder.RefreshCompleted(false)
		var statusErr *oauth.StatusError
		if errors.As(err, &statusErr) {
			err = errors.Join(ErrRefreshRejected, err)
		}
		m.logger.Warn("token refresh failed, clearing session", zap.Error(err))
		if clearErr := m.Clear(ctx); clearErr != nil {
			m.logger.Warn("clearing session after failed refresh", zap.Error(clearErr))
		}
		return requiresRedirect(), nil
	}

	m.st.mu.Lock()
	if m.st.tokens.set.RefreshToken != refreshToken {
		// Cleared or replaced while the request was in flight
		m.st.mu.Unlock()
		m.logger.Debug("discarding refresh result for a replaced session")
		return m.currentResult(), nil
	}

	m.st.tokens.set = m.newTokenSet(tok, refreshToken)
	saveErr := m.st.tokens.save(ctx)
	p, changed := m.projectLocked()
	m.st.mu.Unlock()

	if saveErr != nil {
		m.logger.Warn("persisting refreshed tokens", zap.Error(saveErr))
	}
	if changed {
		m.notify(p)
	}

	m.recorder.RefreshCompleted(true)
	return m.success(), nil
}

// currentResult reports whatever the session holds now without refreshing.
func (m *Manager) currentResult() AccessTokenResult {
	m.st.mu.Lock()
	ok := m.st.tokens.set.HasIdentity() && m.st.tokens.set.ExpiresAt.After(m.now())
	m.st.mu.Unlock()

	if !ok {
		return requiresRedirect()
	}
	return m.success()
}

func (m *Manager) success() AccessTokenResult {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()

	set := m.st.tokens.set
	if !set.HasIdentity() {
		return requiresRedirect()
	}
	return AccessTokenResult{
		Status: StatusSuccess,
		Token: &AccessToken{
			Value:         set.IDToken,
			Expires:       set.ExpiresAt,
			GrantedScopes: m.st.principal.Scopes(),
		},
	}
}
