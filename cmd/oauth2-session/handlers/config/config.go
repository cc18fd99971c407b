// Package config publishes the identity provider settings a browser client
// needs to talk to the provider directly.
package config

import (
	"net/http"

	"github.com/wrale/oauth2-session/cmd/oauth2-session/handlers/common"
)

// Response is the public client configuration
type Response struct {
	Authority         string `json:"authority"`
	ClientID          string `json:"clientId"`
	CognitoDomainName string `json:"cognitoDomainName,omitempty"`
	CognitoRegion     string `json:"cognitoRegion,omitempty"`
}

// Handler serves the client configuration
type Handler struct {
	resp Response
}

// New creates a config handler for resp
func New(resp Response) *Handler {
	return &Handler{resp: resp}
}

// ServeHTTP writes the configuration as JSON
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.resp)
}
