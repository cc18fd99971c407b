// Package integration exercises a running oauth2-session deployment over
// HTTP. Set OAUTH2_SESSION_URL to the service's public base URL to run it.
package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"
)

// Configuration for integration tests
const (
	// EndpointEnv names the variable holding the service base URL
	EndpointEnv = "OAUTH2_SESSION_URL"

	// Timeouts and delays
	ServiceTimeout = 60 * time.Second
	RetryInterval  = 2 * time.Second
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T        *testing.T
	Client   *http.Client
	Ctx      context.Context
	Endpoint string
}

// NewSuite creates a new test suite with timeout. The client keeps cookies
// and does not follow redirects, so each hop of the login flow can be
// inspected.
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	endpoint := os.Getenv(EndpointEnv)
	if endpoint == "" {
		t.Skipf("Skipping integration test: %s is not set", EndpointEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}

	return &TestSuite{
		T: t,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Ctx:      ctx,
		Endpoint: strings.TrimSuffix(endpoint, "/"),
	}
}

// WaitForServices waits until the service reports itself healthy, which
// includes its storage and identity provider.
func (s *TestSuite) WaitForServices() error {
	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	for {
		resp, err := s.Get("/health")
		var lastErr error
		if err != nil {
			lastErr = fmt.Errorf("checking health: %w", err)
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("health returned status %d", resp.StatusCode)
		}

		select {
		case <-s.Ctx.Done():
			return fmt.Errorf("timeout waiting for services: %w", lastErr)
		case <-ticker.C:
			continue
		}
	}
}

// Get requests path on the service
func (s *TestSuite) Get(path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, s.Endpoint+path, nil)
	if err != nil {
		return nil, err
	}
	return s.Client.Do(req)
}

// ReadBody reads and closes the response body
func (s *TestSuite) ReadBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	return string(body), nil
}
