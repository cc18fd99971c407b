package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/wrale/oauth2-session/internal/oauth"
)

// Config holds server configuration loaded from environment variables
type Config struct {
	Port    int    `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" required:"true"`

	// Identity provider
	ClientID          string `envconfig:"CLIENT_ID" required:"true"`
	ProviderURL       string `envconfig:"PROVIDER_URL"`
	CognitoDomainName string `envconfig:"COGNITO_DOMAIN_NAME"`
	CognitoRegion     string `envconfig:"COGNITO_REGION"`
	Authority         string `envconfig:"AUTHORITY"`

	// Session storage; an empty REDIS_URL keeps sessions in memory
	RedisURL      string        `envconfig:"REDIS_URL"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	SessionIdle   time.Duration `envconfig:"SESSION_IDLE" default:"30m"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"oauth2_session"`
	RefreshWindow time.Duration `envconfig:"REFRESH_WINDOW" default:"10m"`

	// Login state; an empty CSRF_SECRET disables the state parameter
	CSRFSecret  string        `envconfig:"CSRF_SECRET"`
	StateExpiry time.Duration `envconfig:"STATE_EXPIRY" default:"10m"`

	APIUpstreamURL string `envconfig:"API_UPSTREAM_URL"`

	// Login attempts per client address; zero disables the limit
	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"30"`
	LoginRateBurst int `envconfig:"LOGIN_RATE_BURST" default:"10"`

	LogEnv   string `envconfig:"LOG_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
}

// loadConfig reads an optional .env file and then the environment
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if _, err := c.providerURL(); err != nil {
		return err
	}
	if c.RefreshWindow < 0 {
		return fmt.Errorf("REFRESH_WINDOW must not be negative")
	}
	return nil
}

// providerURL returns PROVIDER_URL or the Cognito hosted UI domain
func (c Config) providerURL() (string, error) {
	if c.ProviderURL != "" {
		return strings.TrimSuffix(c.ProviderURL, "/"), nil
	}
	if c.CognitoDomainName != "" && c.CognitoRegion != "" {
		return oauth.CognitoDomainURL(c.CognitoDomainName, c.CognitoRegion), nil
	}
	return "", errors.New("PROVIDER_URL or COGNITO_DOMAIN_NAME and COGNITO_REGION are required")
}

// secureCookies reports whether the application is served over https
func (c Config) secureCookies() bool {
	return strings.HasPrefix(strings.ToLower(c.BaseURL), "https://")
}
