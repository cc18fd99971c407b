// Package oauth provides the identity provider client used by the session
// manager: authorize and logout URLs plus the token endpoint grants.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by providers
var (
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrInvalidTokenResponse = errors.New("invalid token response")
	ErrProviderUnavailable  = errors.New("oauth provider unavailable")
)

// Token is the token endpoint response body.
// RefreshToken may be empty on refresh responses; the other fields are required.
type Token struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (t *Token) validate() error {
	switch {
	case t.IDToken == "":
		return fmt.Errorf("%w: missing id_token", ErrInvalidTokenResponse)
	case t.AccessToken == "":
		return fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	case t.TokenType == "":
		return fmt.Errorf("%w: missing token_type", ErrInvalidTokenResponse)
	case t.ExpiresIn <= 0:
		return fmt.Errorf("%w: missing expires_in", ErrInvalidTokenResponse)
	}
	return nil
}

// StatusError is returned when the token endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token request failed: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("token request failed: %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// Is reports invalid_grant responses as ErrInvalidGrant.
func (e *StatusError) Is(target error) bool {
	return target == ErrInvalidGrant && e.Code == "invalid_grant"
}

//go:generate mockgen -source=types.go -destination=mocks/provider.go -package=mocks Provider

// Provider defines the identity provider operations needed by the
// authorization code flow.
type Provider interface {
	// AuthCodeURL builds the browser redirect to the login endpoint.
	// An empty state omits the state parameter.
	AuthCodeURL(redirectURI, state string) string

	// LogoutURL builds the browser redirect to the logout endpoint.
	LogoutURL(logoutURI string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)

	// RefreshToken exchanges a refresh token for a new token pair
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// CheckHealth verifies the provider is accessible
	CheckHealth(ctx context.Context) error
}

// Config holds identity provider settings
type Config struct {
	ClientID string

	// BaseURL is the hosted login domain, e.g. https://app.auth.eu-west-1.amazoncognito.com
	BaseURL string

	// Authority is the token issuer. When set, CheckHealth fetches its
	// OpenID discovery document.
	Authority string

	// Scopes default to openid and profile.
	Scopes []string

	HTTPClient *http.Client
}

// CognitoDomainURL returns the hosted UI base URL for a Cognito user pool domain.
func CognitoDomainURL(domainName, region string) string {
	return fmt.Sprintf("https://%s.auth.%s.amazoncognito.com", domainName, region)
}
