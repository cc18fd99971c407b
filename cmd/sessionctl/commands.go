package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wrale/oauth2-session/internal/oauth"
	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/storage"
)

type options struct {
	redisURL    string
	providerURL string
	clientID    string
	sessionTTL  time.Duration
	timeout     time.Duration
}

// sessionInfo is what inspect and refresh print
type sessionInfo struct {
	SessionID       string     `json:"session_id"`
	Authenticated   bool       `json:"authenticated"`
	Subject         string     `json:"subject,omitempty"`
	Name            string     `json:"name,omitempty"`
	Scopes          []string   `json:"scopes"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	ReturnURL       string     `json:"return_url,omitempty"`
	Status          string     `json:"status,omitempty"`
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{
		redisURL:    os.Getenv("REDIS_URL"),
		providerURL: os.Getenv("PROVIDER_URL"),
		clientID:    os.Getenv("CLIENT_ID"),
		sessionTTL:  storage.DefaultTTL,
		timeout:     10 * time.Second,
	}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and maintain persisted oauth2-session sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.redisURL == "" {
				return errors.New("missing Redis URL (flag --redis-url or env REDIS_URL)")
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.redisURL, "redis-url", opts.redisURL, "Redis URL (env REDIS_URL)")
	root.PersistentFlags().DurationVar(&opts.sessionTTL, "session-ttl", opts.sessionTTL, "Session expiry applied on writes, as configured for the server")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Timeout for each command")

	root.AddCommand(newInspectCmd(opts), newRefreshCmd(opts), newClearCmd(opts))
	return root
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SESSION_ID",
		Short: "Show the identity and token state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store storage.Store) error {
				info, err := inspect(ctx, store, nil, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
}

func newRefreshCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh SESSION_ID",
		Short: "Redeem the session's refresh token now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := oauth.NewHostedProvider(oauth.Config{
				ClientID: opts.clientID,
				BaseURL:  opts.providerURL,
			})
			if err != nil {
				return fmt.Errorf("creating provider client: %w", err)
			}

			return withStore(cmd, opts, func(ctx context.Context, store storage.Store) error {
				m := session.NewManager(provider, storage.Scope(store, args[0]), nil)
				result, err := m.GetAccessToken(ctx, true)
				if err != nil {
					return err
				}

				info, err := inspect(ctx, store, m, args[0])
				if err != nil {
					return err
				}
				info.Status = result.Status.String()
				if err := printJSON(cmd.OutOrStdout(), info); err != nil {
					return err
				}
				if !result.Succeeded() {
					return errors.New("refresh failed, the session was signed out")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.providerURL, "provider-url", opts.providerURL, "Identity provider base URL (env PROVIDER_URL)")
	cmd.Flags().StringVar(&opts.clientID, "client-id", opts.clientID, "OAuth client id (env CLIENT_ID)")
	return cmd
}

func newClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear SESSION_ID",
		Short: "Delete every item of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store storage.Store) error {
				if err := store.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", args[0])
				return nil
			})
		},
	}
}

func withStore(cmd *cobra.Command, opts *options, fn func(ctx context.Context, store storage.Store) error) error {
	redisOpts, err := redis.ParseURL(opts.redisURL)
	if err != nil {
		return fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	return fn(ctx, storage.NewRedisStore(client, opts.sessionTTL))
}

// inspect reads the session without refreshing it. m may be nil.
func inspect(ctx context.Context, store storage.Store, m *session.Manager, sessionID string) (sessionInfo, error) {
	items, err := store.Items(ctx, sessionID)
	if err != nil {
		return sessionInfo{}, err
	}
	if m == nil {
		m = session.NewManager(nil, storage.Scope(store, sessionID), nil)
	}

	p := m.AuthenticationState(ctx)
	info := sessionInfo{
		SessionID:       sessionID,
		Authenticated:   p.IsAuthenticated(),
		Subject:         p.Subject(),
		Name:            p.Name(),
		Scopes:          p.Scopes(),
		HasRefreshToken: items[session.KeyRefreshToken] != "",
		ReturnURL:       items[session.KeyReturnURL],
	}
	if exp, err := time.Parse(time.RFC3339Nano, items[session.KeyExpiration]); err == nil {
		info.ExpiresAt = &exp
	}
	return info, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
