// Package common holds response helpers shared by the HTTP handlers
package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wrale/oauth2-session/internal/session"
	"github.com/wrale/oauth2-session/internal/websession"
)

// ErrNoSession indicates the session middleware did not run
var ErrNoSession = errors.New("no browser session bound to request")

// Error codes used in JSON error responses
const (
	ErrorCodeLoginRequired  = "login_required"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeServerError    = "server_error"
	ErrorCodeBadGateway     = "bad_gateway"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	LoginURL         string `json:"login_url,omitempty"`
}

// SetJSONHeaders sets headers for JSON responses carrying credentials
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

// WriteJSON sends v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	SetJSONHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing more can be reported to the client
		return
	}
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, status int, code string, description string) {
	WriteJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	})
}

// WriteLoginRequired sends 401 with the login route to restart the flow
func WriteLoginRequired(w http.ResponseWriter, loginURL string) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:            ErrorCodeLoginRequired,
		ErrorDescription: "no usable credential, sign in again",
		LoginURL:         loginURL,
	})
}

// Session returns the request's session manager bound to a navigator for r
func Session(r *http.Request, baseURL string) (*session.Manager, *websession.Navigator, error) {
	_, m, ok := websession.FromContext(r.Context())
	if !ok {
		return nil, nil, ErrNoSession
	}
	nav := websession.NewNavigator(baseURL, r)
	return m.WithNavigator(nav), nav, nil
}
