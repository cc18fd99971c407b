// Package websession binds browser sessions to token lifecycle managers: a
// cookie carries the session id, a registry keeps one manager per id and a
// request-scoped navigator turns navigation into HTTP redirects.
package websession

import (
	"net/http"

	"github.com/google/uuid"
)

// DefaultCookieName names the session cookie
const DefaultCookieName = "oauth2_session"

// Cookies issues and reads the session id cookie
type Cookies struct {
	Name   string
	Secure bool
}

func (c Cookies) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// SessionID returns the session id carried by r, issuing a new one on w when
// the cookie is missing or not a valid id.
func (c Cookies) SessionID(w http.ResponseWriter, r *http.Request) (id string, created bool) {
	if cookie, err := r.Cookie(c.name()); err == nil {
		if parsed, err := uuid.Parse(cookie.Value); err == nil {
			return parsed.String(), false
		}
	}

	id = uuid.NewString()
	http.SetCookie(w, c.cookie(id, 0))
	return id, true
}

// Expire removes the session cookie from the browser
func (c Cookies) Expire(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c Cookies) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
