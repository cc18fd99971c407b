// Package main runs the OAuth2 session service: a backend for a browser
// application that signs users in with the authorization code grant and keeps
// their tokens fresh on the server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/internal/csrf"
	"github.com/wrale/oauth2-session/internal/logging"
	"github.com/wrale/oauth2-session/internal/oauth"
	"github.com/wrale/oauth2-session/internal/storage"
)

// Version is set by the build process
var Version = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Env:     cfg.LogEnv,
		Level:   cfg.LogLevel,
		Service: "oauth2-session",
		Version: Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	providerURL, err := cfg.providerURL()
	if err != nil {
		return err
	}
	provider, err := oauth.NewHostedProvider(oauth.Config{
		ClientID:  cfg.ClientID,
		BaseURL:   providerURL,
		Authority: cfg.Authority,
	})
	if err != nil {
		return fmt.Errorf("creating provider client: %w", err)
	}

	deps := dependencies{
		provider: provider,
		logger:   logger,
		registry: prometheus.DefaultRegisterer,
		gatherer: prometheus.DefaultGatherer,
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing Redis URL: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("closing Redis connection", zap.Error(err))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		deps.store = storage.NewRedisStore(redisClient, cfg.SessionTTL)
	} else {
		logger.Warn("REDIS_URL not set, sessions are kept in memory")
		deps.store = storage.NewMemoryStore(cfg.SessionTTL)
	}

	if cfg.CSRFSecret != "" {
		var stateStore csrf.Store = csrf.NewMemoryStore()
		if redisClient != nil {
			stateStore = csrf.NewRedisStore(redisClient)
		}
		deps.states = csrf.NewManager(stateStore, []byte(cfg.CSRFSecret), cfg.StateExpiry)
	}

	srv, err := newServer(cfg, deps)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Port), zap.String("base_url", cfg.BaseURL))
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("starting server: %w", err)

	case sig := <-shutdown:
		logger.Info("starting shutdown", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutting down server", zap.Error(err))
			if err := httpServer.Close(); err != nil {
				logger.Error("closing server", zap.Error(err))
			}
		}
	}
	return nil
}
