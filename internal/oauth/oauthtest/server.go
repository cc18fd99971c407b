// Package oauthtest provides an in-process identity provider for tests.
package oauthtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("oauthtest-signing-key")

// Request records one call to the token endpoint.
type Request struct {
	GrantType    string
	ClientID     string
	Code         string
	RedirectURI  string
	RefreshToken string
}

// Server is a fake hosted-UI provider serving /oauth2/token and the
// discovery document.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Codes maps accepted authorization codes to the subject they log in.
	Codes map[string]string

	// ExpiresIn is returned as expires_in. Defaults to 3600.
	ExpiresIn int

	// RotateRefresh issues a new refresh token on every refresh grant.
	RotateRefresh bool

	// FailStatus, when non-zero, is returned for every token request.
	FailStatus int

	// Delay is applied before answering token requests.
	Delay time.Duration

	requests []Request
	issued   int
}

// NewServer starts a fake provider. Call Close when done.
func NewServer() *Server {
	s := &Server{
		Codes:     map[string]string{},
		ExpiresIn: 3600,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"issuer":                 s.URL,
			"authorization_endpoint": s.URL + "/login",
			"token_endpoint":         s.URL + "/oauth2/token",
		})
	})
	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns the token requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// CountGrant returns how many token requests used the given grant type.
func (s *Server) CountGrant(grantType string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.GrantType == grantType {
			n++
		}
	}
	return n
}

// Set mutates server settings under its lock.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "invalid_request"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	req := Request{
		GrantType:    r.PostForm.Get("grant_type"),
		ClientID:     r.PostForm.Get("client_id"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	delay := s.Delay
	failStatus := s.FailStatus
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failStatus != 0 {
		writeJSON(w, failStatus, map[string]string{
			"error":             "invalid_grant",
			"error_description": "rejected by test server",
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.GrantType {
	case "authorization_code":
		subject, ok := s.Codes[req.Code]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		delete(s.Codes, req.Code)
		s.issued++
		writeJSON(w, http.StatusOK, s.tokenBody(subject, fmt.Sprintf("refresh-%d", s.issued)))
	case "refresh_token":
		if req.RefreshToken == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
			return
		}
		s.issued++
		refresh := ""
		if s.RotateRefresh {
			refresh = fmt.Sprintf("refresh-%d", s.issued)
		}
		writeJSON(w, http.StatusOK, s.tokenBody("refreshed-user", refresh))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) tokenBody(subject, refreshToken string) map[string]any {
	body := map[string]any{
		"id_token": SignIDToken(jwt.MapClaims{
			"sub":   subject,
			"email": subject + "@example.com",
			"scope": "openid profile",
			"n":     s.issued,
		}),
		"access_token": fmt.Sprintf("access-%d", s.issued),
		"expires_in":   s.ExpiresIn,
		"token_type":   "Bearer",
	}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	return body
}

// SignIDToken returns an HS256 identity token carrying the given claims.
// Consumers decode it without verifying the signature.
func SignIDToken(claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("signing test token: %v", err))
	}
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
