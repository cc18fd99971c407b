package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/wrale/oauth2-session/internal/oauth/oauthtest"
	"github.com/wrale/oauth2-session/internal/session"
)

const sessionID = "3f1c2a7e-8f4b-4d6e-9a0b-1c2d3e4f5a6b"

func seedSession(t *testing.T, mr *miniredis.Miniredis, expires time.Time) {
	t.Helper()
	key := "session:" + sessionID
	mr.HSet(key, session.KeyIDToken, oauthtest.SignIDToken(jwt.MapClaims{
		"sub":   "alice",
		"email": "alice@example.com",
		"scope": "openid profile",
	}))
	mr.HSet(key, session.KeyAccessToken, "access-0")
	mr.HSet(key, session.KeyRefreshToken, "refresh-0")
	mr.HSet(key, session.KeyExpiration, expires.UTC().Format(time.RFC3339Nano))
	mr.HSet(key, session.KeyReturnURL, "/gallery")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	mr := miniredis.RunT(t)
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	seedSession(t, mr, expires)

	out, err := run(t, "--redis-url", "redis://"+mr.Addr(), "inspect", sessionID)
	require.NoError(t, err)

	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, sessionID, info.SessionID)
	require.True(t, info.Authenticated)
	require.Equal(t, "alice", info.Subject)
	require.Equal(t, "alice@example.com", info.Name)
	require.Equal(t, []string{"openid", "profile"}, info.Scopes)
	require.NotNil(t, info.ExpiresAt)
	require.True(t, expires.Equal(*info.ExpiresAt))
	require.True(t, info.HasRefreshToken)
	require.Equal(t, "/gallery", info.ReturnURL)
	require.Empty(t, info.Status)
}

func TestInspect_UnknownSession(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, "--redis-url", "redis://"+mr.Addr(), "inspect", sessionID)
	require.NoError(t, err)

	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.False(t, info.Authenticated)
	require.Nil(t, info.ExpiresAt)
	require.Equal(t, []string{}, info.Scopes)
}

func TestRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	seedSession(t, mr, time.Now().Add(time.Hour))

	idp := oauthtest.NewServer()
	t.Cleanup(idp.Close)

	out, err := run(t, "--redis-url", "redis://"+mr.Addr(), "refresh", sessionID,
		"--provider-url", idp.URL, "--client-id", "cli")
	require.NoError(t, err)

	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, "success", info.Status)
	require.Equal(t, "refreshed-user", info.Subject)

	reqs := idp.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "refresh_token", reqs[0].GrantType)
	require.Equal(t, "refresh-0", reqs[0].RefreshToken)
	require.Equal(t, "cli", reqs[0].ClientID)
	require.Equal(t, "access-1", mr.HGet("session:"+sessionID, session.KeyAccessToken))
}

func TestRefresh_Rejected(t *testing.T) {
	mr := miniredis.RunT(t)
	seedSession(t, mr, time.Now().Add(time.Hour))

	idp := oauthtest.NewServer()
	t.Cleanup(idp.Close)
	idp.Set(func(s *oauthtest.Server) { s.FailStatus = http.StatusBadRequest })

	out, err := run(t, "--redis-url", "redis://"+mr.Addr(), "refresh", sessionID,
		"--provider-url", idp.URL, "--client-id", "cli")
	require.Error(t, err)

	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, "requires_redirect", info.Status)
	require.False(t, info.Authenticated)
	require.Empty(t, mr.HGet("session:"+sessionID, session.KeyRefreshToken))
}

func TestClear(t *testing.T) {
	mr := miniredis.RunT(t)
	seedSession(t, mr, time.Now().Add(time.Hour))

	out, err := run(t, "--redis-url", "redis://"+mr.Addr(), "clear", sessionID)
	require.NoError(t, err)
	require.Contains(t, out, "cleared")
	require.False(t, mr.Exists("session:"+sessionID))
}

func TestMissingRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	_, err := run(t, "inspect", sessionID)
	require.ErrorContains(t, err, "missing Redis URL")
}
