// Package session manages the authorization code grant token lifecycle of a
// browser session: it acquires, caches, refreshes, persists and invalidates
// identity, access and refresh tokens and publishes the current identity.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wrale/oauth2-session/internal/oauth"
)

// DefaultRefreshWindow renews tokens this long before they expire so a
// handed-out token never expires during the caller's next request.
const DefaultRefreshWindow = 600 * time.Second

// Manager is the authentication session of one browser session. It is owned
// by the composition root and injected wherever auth is needed.
type Manager struct {
	provider oauth.Provider
	nav      Navigator

	refreshWindow time.Duration
	now           func() time.Time
	logger        *zap.Logger
	recorder      Recorder
	states        StateVerifier

	st *state
}

// state is shared between a Manager and the views created by WithNavigator.
type state struct {
	mu        sync.Mutex
	tokens    tokenStore
	principal Principal
	projected string // identity token the principal was decoded from

	refresh singleflight.Group

	subsMu    sync.Mutex
	subs      map[int]Subscriber
	nextSubID int
}

// Option configures a Manager
type Option func(*Manager)

// WithRefreshWindow sets how long before expiry a token is renewed.
func WithRefreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshWindow = d
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRecorder sets the lifecycle recorder
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithStateVerifier adds a state parameter to the authorize redirect and
// requires it on the callback.
func WithStateVerifier(v StateVerifier) Option {
	return func(m *Manager) {
		m.states = v
	}
}

// NewManager creates a session manager. Nothing is read from storage until
// the first token or state request.
func NewManager(provider oauth.Provider, storage Storage, nav Navigator, opts ...Option) *Manager {
	m := &Manager{
		provider:      provider,
		nav:           nav,
		refreshWindow: DefaultRefreshWindow,
		now:           time.Now,
		logger:        zap.NewNop(),
		recorder:      noopRecorder{},
		st: &state{
			subs: make(map[int]Subscriber),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.st.tokens = tokenStore{storage: storage, logger: m.logger}
	return m
}

// WithNavigator returns a view of the same session that navigates through
// nav. Token state, subscribers and refresh coalescing are shared.
func (m *Manager) WithNavigator(nav Navigator) *Manager {
	view := *m
	view.nav = nav
	return &view
}

// Subscribe registers fn for identity changes and returns a function that
// removes it.
func (m *Manager) Subscribe(fn Subscriber) (unsubscribe func()) {
	m.st.subsMu.Lock()
	defer m.st.subsMu.Unlock()

	id := m.st.nextSubID
	m.st.nextSubID++
	m.st.subs[id] = fn

	return func() {
		m.st.subsMu.Lock()
		defer m.st.subsMu.Unlock()
		delete(m.st.subs, id)
	}
}

// AuthenticationState returns the current principal, loading persisted
// tokens first if nothing is cached.
func (m *Manager) AuthenticationState(ctx context.Context) Principal {
	m.st.mu.Lock()
	if m.st.tokens.set.IDToken == "" {
		m.st.tokens.load(ctx)
	}
	p, changed := m.projectLocked()
	m.st.mu.Unlock()

	if changed {
		m.notify(p)
	}
	return p
}

// Clear drops every cached and persisted token.
func (m *Manager) Clear(ctx context.Context) error {
	m.st.mu.Lock()
	err := m.st.tokens.clear(ctx)
	p, changed := m.projectLocked()
	m.st.mu.Unlock()

	if changed {
		m.notify(p)
	}
	return err
}

// projectLocked re-decodes the principal when the identity token changed.
// The caller holds st.mu and must notify outside the lock when changed.
func (m *Manager) projectLocked() (Principal, bool) {
	idToken := m.st.tokens.set.IDToken
	if idToken == m.st.projected {
		return m.st.principal, false
	}

	p, err := decodePrincipal(idToken)
	if err != nil {
		m.logger.Warn("identity token could not be decoded", zap.Error(err))
	}
	m.st.principal = p
	m.st.projected = idToken
	return p, true
}

func (m *Manager) notify(p Principal) {
	m.st.subsMu.Lock()
	subs := make([]Subscriber, 0, len(m.st.subs))
	for _, fn := range m.st.subs {
		subs = append(subs, fn)
	}
	m.st.subsMu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// newTokenSet builds the set for a token response. The refresh token is
// replaced only when the provider returned one.
func (m *Manager) newTokenSet(tok *oauth.Token, previousRefresh string) TokenSet {
	set := TokenSet{
		IDToken:      tok.IDToken,
		AccessToken:  tok.AccessToken,
		RefreshToken: previousRefresh,
		ExpiresAt:    m.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if tok.RefreshToken != "" {
		set.RefreshToken = tok.RefreshToken
	}
	return set
}
