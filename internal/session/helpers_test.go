package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wrale/oauth2-session/internal/oauth"
)

// errStoreUnhealthy indicates the store is not available
var errStoreUnhealthy = errors.New("store unhealthy")

// mockStorage implements Storage for testing
type mockStorage struct {
	mu      sync.Mutex
	items   map[string]string
	healthy bool
	failSet bool
}

func newMockStorage() *mockStorage {
	return &mockStorage{items: make(map[string]string), healthy: true}
}

func (s *mockStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		return "", false, errStoreUnhealthy
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *mockStorage) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy || s.failSet {
		return errStoreUnhealthy
	}
	s.items[key] = value
	return nil
}

func (s *mockStorage) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		return errStoreUnhealthy
	}
	delete(s.items, key)
	return nil
}

func (s *mockStorage) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// mockNavigator records navigations
type mockNavigator struct {
	uri          string
	baseURI      string
	historyState string
	navigations  []string
}

func newMockNavigator() *mockNavigator {
	return &mockNavigator{
		uri:     "https://app.example.com/",
		baseURI: "https://app.example.com/",
	}
}

func (n *mockNavigator) URI() string               { return n.uri }
func (n *mockNavigator) BaseURI() string           { return n.baseURI }
func (n *mockNavigator) HistoryEntryState() string { return n.historyState }
func (n *mockNavigator) NavigateTo(uri string)     { n.navigations = append(n.navigations, uri) }

func (n *mockNavigator) last() string {
	if len(n.navigations) == 0 {
		return ""
	}
	return n.navigations[len(n.navigations)-1]
}

// mockProvider implements oauth.Provider with canned responses
type mockProvider struct {
	mu sync.Mutex

	exchangeToken *oauth.Token
	exchangeErr   error
	refreshToken  *oauth.Token
	refreshErr    error

	// release, when set, blocks refresh calls until closed
	release chan struct{}

	exchangeCalls []string
	refreshCalls  []string
}

func (p *mockProvider) AuthCodeURL(redirectURI, state string) string {
	u := "https://idp.example.com/login?client_id=client&redirect_uri=" + redirectURI
	if state != "" {
		u += "&state=" + state
	}
	return u
}

func (p *mockProvider) LogoutURL(logoutURI string) string {
	return "https://idp.example.com/logout?client_id=client&logout_uri=" + logoutURI
}

func (p *mockProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls = append(p.exchangeCalls, code)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.exchangeToken, nil
}

func (p *mockProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	p.mu.Lock()
	p.refreshCalls = append(p.refreshCalls, refreshToken)
	release := p.release
	tok, err := p.refreshToken, p.refreshErr
	p.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tok, err
}

func (p *mockProvider) CheckHealth(ctx context.Context) error { return nil }

func (p *mockProvider) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refreshCalls)
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func idToken(t *testing.T, subject, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "email": subject + "@example.com"}
	if scope != "" {
		claims["scope"] = scope
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func tokenResponse(t *testing.T, n int, refresh string) *oauth.Token {
	t.Helper()
	return &oauth.Token{
		IDToken:      idToken(t, fmt.Sprintf("user-%d", n), "openid profile"),
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: refresh,
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	}
}

// persist writes a token set the way a previous page load would have.
func persist(t *testing.T, s *mockStorage, set TokenSet) {
	t.Helper()
	ts := tokenStore{storage: s, set: set}
	if err := ts.save(context.Background()); err != nil {
		t.Fatalf("persisting tokens: %v", err)
	}
}

type fixture struct {
	storage  *mockStorage
	nav      *mockNavigator
	provider *mockProvider
	clock    *testClock
	manager  *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		storage:  newMockStorage(),
		nav:      newMockNavigator(),
		provider: &mockProvider{},
		clock:    newTestClock(),
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.manager = NewManager(f.provider, f.storage, f.nav, opts...)
	return f
}
