// Package proxy forwards first-party API calls with the session's bearer
// credential attached.
package proxy

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/common"
	"github.com/wrale/oauth2-session/internal/logging"
	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/websession"
)

// Config contains handler configuration
type Config struct {
	Upstream *url.URL
	LoginURL string
	// Transport is the base transport, http.DefaultTransport when nil
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// New returns a reverse proxy to cfg.Upstream. Requests leave without the
// browser's cookies and with Authorization set from the session; a session
// without a credential gets 401 and the request is not forwarded.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(cfg.Upstream)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
		},
		Transport: &sessionTransport{base: cfg.Transport},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, session.ErrNoCredential) {
				common.WriteLoginRequired(w, cfg.LoginURL)
				return
			}
			logging.From(r.Context(), logger).Warn("api proxy request failed", zap.Error(err))
			common.WriteError(w, http.StatusBadGateway, common.ErrorCodeBadGateway, "upstream request failed")
		},
	}
}

// sessionTransport attaches the bearer of the request's session
type sessionTransport struct {
	base http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	_, m, ok := websession.FromContext(req.Context())
	if !ok {
		return nil, common.ErrNoSession
	}
	tr := &oauth2.Transport{
		Source: m.TokenSource(req.Context()),
		Base:   t.base,
	}
	return tr.RoundTrip(req)
}
