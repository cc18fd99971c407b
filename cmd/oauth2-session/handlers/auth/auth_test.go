package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wrale/oauth2-session/internal/oauth"
	"github.com/wrale/oauth2-session/internal/oauth/oauthtest"
	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/storage"
	"github.com/wrale/oauth2-session/internal/templates"
	"github.com/wrale/oauth2-session/internal/websession"
)

const baseURL = "https://app.example.com"

type fixture struct {
	idp     *oauthtest.Server
	store   *storage.MemoryStore
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	idp := oauthtest.NewServer()
	t.Cleanup(idp.Close)

	provider, err := oauth.NewHostedProvider(oauth.Config{ClientID: "client", BaseURL: idp.URL})
	require.NoError(t, err)

	tmpls, err := templates.LoadTemplates()
	require.NoError(t, err)

	store := storage.NewMemoryStore(time.Hour)
	registry := websession.NewRegistry(func(id string) *session.Manager {
		return session.NewManager(provider, storage.Scope(store, id), nil)
	}, time.Minute, nil)

	h := New(Config{Templates: tmpls, BaseURL: baseURL})
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, h.Login)
	mux.HandleFunc(LogoutPath, h.Logout)
	mux.HandleFunc("/me", h.Me)
	mux.HandleFunc(HomePath, h.Home)

	return &fixture{
		idp:     idp,
		store:   store,
		handler: registry.Middleware(websession.Cookies{})(mux),
	}
}

func (f *fixture) do(t *testing.T, sessionID, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.AddCookie(&http.Cookie{Name: websession.DefaultCookieName, Value: sessionID})
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func (f *fixture) items(t *testing.T, sessionID string) map[string]string {
	t.Helper()
	items, err := f.store.Items(context.Background(), sessionID)
	require.NoError(t, err)
	return items
}

func (f *fixture) seed(t *testing.T, sessionID string, claims jwt.MapClaims) {
	t.Helper()
	for k, v := range map[string]string{
		session.KeyIDToken:      oauthtest.SignIDToken(claims),
		session.KeyAccessToken:  "access-0",
		session.KeyRefreshToken: "refresh-0",
		session.KeyExpiration:   time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano),
	} {
		require.NoError(t, f.store.Set(context.Background(), sessionID, k, v))
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	w := f.do(t, id, "/login?returnUrl=%2Fgallery%3Fpage%3D2")
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, f.idp.URL+"/login", loc.Scheme+"://"+loc.Host+loc.Path)
	require.Equal(t, "code", loc.Query().Get("response_type"))
	require.Equal(t, "client", loc.Query().Get("client_id"))
	require.Equal(t, baseURL, loc.Query().Get("redirect_uri"))

	require.Equal(t, map[string]string{session.KeyReturnURL: "/gallery?page=2"}, f.items(t, id))
}

func TestLogin_ForeignReturnURL(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	w := f.do(t, id, "/login?returnUrl=https%3A%2F%2Fevil.example.net%2F")
	require.Equal(t, http.StatusFound, w.Code)
	require.Empty(t, f.items(t, id))
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name      string
		returnURL string
		wantLoc   string
	}{
		{name: "back to the saved page", returnURL: "/gallery", wantLoc: "/gallery"},
		{name: "home without a saved page", wantLoc: HomePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.idp.Set(func(s *oauthtest.Server) { s.Codes["good-code"] = "alice" })
			id := uuid.NewString()
			if tt.returnURL != "" {
				require.NoError(t, f.store.Set(context.Background(), id, session.KeyReturnURL, tt.returnURL))
			}

			w := f.do(t, id, "/?code=good-code")
			require.Equal(t, http.StatusFound, w.Code)
			require.Equal(t, tt.wantLoc, w.Header().Get("Location"))

			reqs := f.idp.Requests()
			require.Len(t, reqs, 1)
			require.Equal(t, "authorization_code", reqs[0].GrantType)
			require.Equal(t, baseURL, reqs[0].RedirectURI)

			items := f.items(t, id)
			require.Equal(t, "access-1", items[session.KeyAccessToken])
			require.Equal(t, "refresh-1", items[session.KeyRefreshToken])
			require.NotEmpty(t, items[session.KeyIDToken])
			require.NotContains(t, items, session.KeyReturnURL)
		})
	}
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		failStatus int
		wantStatus int
	}{
		{name: "provider error", target: "/?error=access_denied&error_description=no", wantStatus: http.StatusForbidden},
		{name: "unknown code", target: "/?code=bogus", wantStatus: http.StatusBadGateway},
		{name: "empty code", target: "/?code=", wantStatus: http.StatusBadRequest},
		{name: "provider down", target: "/?code=bogus", failStatus: http.StatusInternalServerError, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.failStatus != 0 {
				f.idp.Set(func(s *oauthtest.Server) { s.FailStatus = tt.failStatus })
			}
			id := uuid.NewString()

			w := f.do(t, id, tt.target)
			require.Equal(t, tt.wantStatus, w.Code)
			require.Contains(t, w.Body.String(), `href="/login"`)
			require.Empty(t, f.items(t, id))
		})
	}
}

func TestHome(t *testing.T) {
	f := newFixture(t)

	t.Run("anonymous", func(t *testing.T) {
		w := f.do(t, uuid.NewString(), "/")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "You are not signed in")
		require.Contains(t, w.Body.String(), `href="/login?returnUrl=%2F"`)
	})

	t.Run("signed in", func(t *testing.T) {
		id := uuid.NewString()
		f.seed(t, id, jwt.MapClaims{"sub": "alice", "email": "alice@example.com", "scope": "openid profile"})

		w := f.do(t, id, "/")
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		require.Contains(t, body, "Signed in as alice@example.com")
		require.Contains(t, body, "openid profile")
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	f.seed(t, id, jwt.MapClaims{"sub": "alice"})

	w := f.do(t, id, "/logout")
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loc.String(), f.idp.URL+"/logout?"))
	require.Equal(t, baseURL, loc.Query().Get("logout_uri"))
	require.Equal(t, "client", loc.Query().Get("client_id"))
	require.Empty(t, f.items(t, id))
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	t.Run("anonymous", func(t *testing.T) {
		w := f.do(t, uuid.NewString(), "/me")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"authenticated":false,"scopes":[]}`, w.Body.String())
	})

	t.Run("signed in", func(t *testing.T) {
		id := uuid.NewString()
		f.seed(t, id, jwt.MapClaims{"sub": "alice", "email": "alice@example.com", "scope": "openid"})

		w := f.do(t, id, "/me")
		require.Equal(t, http.StatusOK, w.Code)

		var got MeResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.True(t, got.Authenticated)
		require.Equal(t, "alice", got.Subject)
		require.Equal(t, "alice@example.com", got.Name)
		require.Equal(t, []string{"openid"}, got.Scopes)
		require.Equal(t, "alice", got.Claims["sub"])
	})
}
