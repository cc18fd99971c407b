package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// Hosted UI endpoint paths
	loginPath       = "/login"
	logoutPath      = "/logout"
	tokenPath       = "/oauth2/token"
	discoveryPath   = "/.well-known/openid-configuration"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "profile"}

// HostedProvider talks to a hosted-UI identity provider (Cognito style
// /login, /logout and /oauth2/token endpoints) as a public client.
type HostedProvider struct {
	client    *http.Client
	clientID  string
	tokenURL  string
	logoutURL string
	healthURL string
	oauth     oauth2.Config
}

// NewHostedProvider creates a new provider client
func NewHostedProvider(cfg Config) (*HostedProvider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	p := &HostedProvider{
		client:    client,
		clientID:  cfg.ClientID,
		tokenURL:  baseURL + tokenPath,
		logoutURL: baseURL + logoutPath,
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + loginPath,
				TokenURL:  baseURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	if cfg.Authority != "" {
		p.healthURL = strings.TrimSuffix(cfg.Authority, "/") + discoveryPath
	}
	return p, nil
}

// AuthCodeURL builds the login redirect with response_type=code
func (p *HostedProvider) AuthCodeURL(redirectURI, state string) string {
	cfg := p.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

// LogoutURL builds the logout redirect
func (p *HostedProvider) LogoutURL(logoutURI string) string {
	v := url.Values{
		"client_id":  {p.clientID},
		"logout_uri": {logoutURI},
	}
	return p.logoutURL + "?" + v.Encode()
}

// ExchangeCode exchanges an authorization code for tokens
func (p *HostedProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error) {
	return p.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {p.clientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
}

// RefreshToken exchanges a refresh token for a new token pair
func (p *HostedProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	return p.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.clientID},
		"refresh_token": {refreshToken},
	})
}

func (p *HostedProvider) requestToken(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		// Providers are not consistent about error bodies; the status alone is enough.
		if json.Unmarshal(body, &errResp) == nil {
			statusErr.Code = errResp.Error
			statusErr.Description = errResp.ErrorDescription
		}
		return nil, statusErr
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if err := token.validate(); err != nil {
		return nil, err
	}

	return &token, nil
}

// CheckHealth verifies the provider's discovery document is reachable.
// Without a configured authority there is nothing to probe.
func (p *HostedProvider) CheckHealth(ctx context.Context) error {
	if p.healthURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrProviderUnavailable
	}

	return nil
}
