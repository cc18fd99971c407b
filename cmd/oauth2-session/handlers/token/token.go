// Package token serves the session's bearer credential to the browser
package token

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/common"
	"github.com/wrale/oauth2-session/internal/logging"
)

// Observer records the status of each token request
type Observer interface {
	ObserveTokenRequest(status string)
}

// Handler processes access token requests
type Handler struct {
	baseURL  string
	loginURL string
	observer Observer
	logger   *zap.Logger
}

// Config contains handler configuration options
type Config struct {
	BaseURL  string
	LoginURL string
	Observer Observer
	Logger   *zap.Logger
}

// New creates a new token request handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		baseURL:  cfg.BaseURL,
		loginURL: cfg.LoginURL,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// ServeHTTP returns the AccessTokenResult. force=true skips the cached
// token. A session that must log in again gets 401 with the login URL.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		common.WriteError(w, http.StatusMethodNotAllowed, common.ErrorCodeInvalidRequest, "GET method required")
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		var err error
		if force, err = strconv.ParseBool(raw); err != nil {
			common.WriteError(w, http.StatusBadRequest, common.ErrorCodeInvalidRequest, "force must be a boolean")
			return
		}
	}

	m, _, err := common.Session(r, h.baseURL)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServerError, err.Error())
		return
	}

	result, err := m.GetAccessToken(r.Context(), force)
	if err != nil {
		logging.From(r.Context(), h.logger).Info("token request abandoned", zap.Error(err))
		h.observe("cancelled")
		common.WriteError(w, http.StatusServiceUnavailable, common.ErrorCodeServerError, "request cancelled")
		return
	}

	h.observe(result.Status.String())
	if !result.Succeeded() {
		common.WriteLoginRequired(w, h.loginURL)
		return
	}
	common.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(status string) {
	if h.observer != nil {
		h.observer.ObserveTokenRequest(status)
	}
}
