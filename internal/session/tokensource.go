package session

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource adapts the manager to oauth2.TokenSource. Every call goes
// through GetAccessToken, so the returned token is the identity token and is
// renewed inside the refresh window. ErrNoCredential is returned when the
// user must log in again.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	result, err := s.m.GetAccessToken(s.ctx, false)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{
		AccessToken: result.Token.Value,
		TokenType:   "Bearer",
		Expiry:      result.Token.Expires,
	}, nil
}

// Client returns an HTTP client that attaches the bearer credential to every
// request. base may be nil.
func (m *Manager) Client(ctx context.Context, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: m.TokenSource(ctx),
			Base:   base,
		},
	}
}
