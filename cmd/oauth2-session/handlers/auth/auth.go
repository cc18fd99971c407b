// Package auth serves the browser-facing login, callback, logout and
// identity routes.
package auth

import (
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/common"
	"github.com/wrale/oauth2-session/internal/logging"
	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/templates"
	"github.com/wrale/oauth2-session/internal/websession"
)

// Routes served by this package
const (
	LoginPath  = "/login"
	LogoutPath = "/logout"
	HomePath   = "/"
)

// Handler processes the authorization code flow for browser sessions
type Handler struct {
	templates *templates.Templates
	baseURL   string
	logger    *zap.Logger
}

// Config contains handler configuration
type Config struct {
	Templates *templates.Templates
	BaseURL   string
	Logger    *zap.Logger
}

// New creates a new auth handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		templates: cfg.Templates,
		baseURL:   cfg.BaseURL,
		logger:    logger,
	}
}

// Login starts the redirect to the provider. The optional returnUrl query
// parameter is where the browser lands after the callback.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	m, nav, err := common.Session(r, h.baseURL)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Sign-in unavailable", "The session could not be loaded.", err)
		return
	}

	if err := m.StartLogin(r.Context()); err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Sign-in unavailable", "The sign-in request could not be prepared.", err)
		return
	}
	nav.Redirect(w, r, HomePath)
}

// Home completes a provider callback when the URL carries one and otherwise
// renders the session status page.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("code") || query.Has("error") {
		h.callback(w, r)
		return
	}

	m, _, err := common.Session(r, h.baseURL)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Session unavailable", "The session could not be loaded.", err)
		return
	}

	data := templates.HomeData{
		LoginURL:  LoginPath + "?" + url.Values{websession.ReturnURLParam: {HomePath}}.Encode(),
		LogoutURL: LogoutPath,
	}

	result, err := m.GetAccessToken(r.Context(), false)
	if err != nil {
		h.renderError(w, r, http.StatusServiceUnavailable, "Session unavailable", "The request was cancelled.", err)
		return
	}
	if result.Succeeded() {
		p := m.AuthenticationState(r.Context())
		data.Authenticated = p.IsAuthenticated()
		data.Name = p.Name()
		data.Subject = p.Subject()
		data.Scopes = result.Token.GrantedScopes
		data.ExpiresAt = result.Token.Expires
	}

	if err := h.templates.RenderHome(w, data); err != nil {
		logging.From(r.Context(), h.logger).Error("rendering home page", zap.Error(err))
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	m, nav, err := common.Session(r, h.baseURL)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Sign-in failed", "The session could not be loaded.", err)
		return
	}

	if err := m.CompleteLogin(r.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrAuthorizationDenied):
			h.renderError(w, r, http.StatusForbidden, "Sign-in cancelled", "The identity provider did not authorize the sign-in.", err)
		case errors.Is(err, session.ErrMissingCode), errors.Is(err, session.ErrInvalidState):
			h.renderError(w, r, http.StatusBadRequest, "Sign-in failed", "The sign-in response was not valid for this session.", err)
		case errors.Is(err, session.ErrCallbackExchangeFailed):
			h.renderError(w, r, http.StatusBadGateway, "Sign-in failed", "The identity provider rejected the sign-in.", err)
		default:
			h.renderError(w, r, http.StatusInternalServerError, "Sign-in failed", "The session could not be saved.", err)
		}
		return
	}

	// Without a saved return URL, drop the code from the address bar
	nav.Redirect(w, r, HomePath)
}

// Logout clears the session and redirects to the provider's logout endpoint
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	m, nav, err := common.Session(r, h.baseURL)
	if err != nil {
		h.renderError(w, r, http.StatusInternalServerError, "Sign-out failed", "The session could not be loaded.", err)
		return
	}

	if err := m.Logout(r.Context()); err != nil {
		// Navigation already happened; stale storage expires with the session
		logging.From(r.Context(), h.logger).Warn("logout left persisted tokens", zap.Error(err))
	}
	nav.Redirect(w, r, HomePath)
}

// MeResponse describes the current principal
type MeResponse struct {
	Authenticated bool           `json:"authenticated"`
	Subject       string         `json:"subject,omitempty"`
	Name          string         `json:"name,omitempty"`
	Scopes        []string       `json:"scopes"`
	Claims        map[string]any `json:"claims,omitempty"`
}

// Me returns the current principal as JSON
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	m, _, err := common.Session(r, h.baseURL)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServerError, err.Error())
		return
	}

	p := m.AuthenticationState(r.Context())
	common.WriteJSON(w, http.StatusOK, MeResponse{
		Authenticated: p.IsAuthenticated(),
		Subject:       p.Subject(),
		Name:          p.Name(),
		Scopes:        p.Scopes(),
		Claims:        p.Claims(),
	})
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string, cause error) {
	logger := logging.From(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		logger.Error(title, zap.Error(cause))
	} else {
		logger.Info(title, zap.Error(cause))
	}

	if err := h.templates.RenderError(w, templates.ErrorData{
		Status:   status,
		Title:    title,
		Message:  message,
		RetryURL: LoginPath,
	}); err != nil {
		logger.Error("rendering error page", zap.Error(err))
		http.Error(w, title+": "+message, status)
	}
}
