package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/auth"
	confighandler "github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/config"
	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/health"
	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/proxy"
	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/token"
	"github.com/wrale/oauth2-session/internal/csrf"
	"github.com/wrale/oauth2-session/internal/logging"
	"github.com/wrale/oauth2-session/internal/metrics"
	"github.com/wrale/oauth2-session/internal/oauth"
	"github.com/wrale/oauth2-session/internal/ratelimit"
	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/storage"
	"github.com/wrale/oauth2-session/internal/templates"
	"github.com/wrale/oauth2-session/internal/websession"
)

// requestTimeout bounds every request, including provider round trips
const requestTimeout = 30 * time.Second

// dependencies are built by main. states is nil when CSRF_SECRET is unset
// and upstreamTransport is the base transport of the API proxy.
type dependencies struct {
	provider          oauth.Provider
	store             storage.Store
	states            *csrf.Manager
	logger            *zap.Logger
	registry          prometheus.Registerer
	gatherer          prometheus.Gatherer
	upstreamTransport http.RoundTripper
}

type server struct {
	cfg      Config
	router   *chi.Mux
	sessions *websession.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func newServer(cfg Config, deps dependencies) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	logger := deps.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.registry == nil {
		reg := prometheus.NewRegistry()
		deps.registry, deps.gatherer = reg, reg
	}

	srv := &server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: logger,
	}

	srv.sessions = websession.NewRegistry(func(sessionID string) *session.Manager {
		opts := []session.Option{
			session.WithRefreshWindow(cfg.RefreshWindow),
			session.WithLogger(logger.With(zap.String("session_id", sessionID))),
			session.WithRecorder(srv.metrics),
		}
		if deps.states != nil {
			opts = append(opts, session.WithStateVerifier(deps.states.Bind(sessionID)))
		}
		return session.NewManager(deps.provider, storage.Scope(deps.store, sessionID), nil, opts...)
	}, cfg.SessionIdle, logger)

	srv.metrics = metrics.New(deps.registry, func() float64 {
		return float64(srv.sessions.Len())
	})

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(logging.Middleware(logger))
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(requestTimeout))

	checks := map[string]health.Checker{
		"storage":  deps.store,
		"provider": deps.provider,
	}
	if deps.states != nil {
		checks["state"] = deps.states
	}
	srv.router.Method(http.MethodGet, "/health", health.New(checks).WithVersion(Version))
	if deps.gatherer != nil {
		srv.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))
	}
	srv.router.Method(http.MethodGet, "/config", confighandler.New(confighandler.Response{
		Authority:         cfg.Authority,
		ClientID:          cfg.ClientID,
		CognitoDomainName: cfg.CognitoDomainName,
		CognitoRegion:     cfg.CognitoRegion,
	}))

	authHandler := auth.New(auth.Config{
		Templates: tmpls,
		BaseURL:   cfg.BaseURL,
		Logger:    logger,
	})
	tokenHandler := token.New(token.Config{
		BaseURL:  cfg.BaseURL,
		LoginURL: auth.LoginPath,
		Observer: srv.metrics,
		Logger:   logger,
	})

	var upstream *url.URL
	if cfg.APIUpstreamURL != "" {
		if upstream, err = url.Parse(cfg.APIUpstreamURL); err != nil {
			return nil, fmt.Errorf("parsing API upstream URL: %w", err)
		}
	}

	loginLimit := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.LoginRateLimit,
		Burst:             cfg.LoginRateBurst,
	}, logger)

	cookies := websession.Cookies{
		Name:   cfg.SessionCookie,
		Secure: cfg.secureCookies(),
	}

	srv.router.Group(func(r chi.Router) {
		r.Use(srv.sessions.Middleware(cookies))

		r.Get(auth.HomePath, authHandler.Home)
		r.With(loginLimit.Middleware).Get(auth.LoginPath, authHandler.Login)
		r.Get(auth.LogoutPath, authHandler.Logout)
		r.Post(auth.LogoutPath, authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Method(http.MethodGet, "/token", tokenHandler)

		if upstream != nil {
			r.Mount("/api", http.StripPrefix("/api", proxy.New(proxy.Config{
				Upstream:  upstream,
				LoginURL:  auth.LoginPath,
				Transport: deps.upstreamTransport,
				Logger:    logger,
			})))
		}
	})

	return srv, nil
}

// ServeHTTP lets the server be used directly as a handler
func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
