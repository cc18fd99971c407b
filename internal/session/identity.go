package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimScope   = "scope"
	claimSubject = "sub"
	claimName    = "email"
)

// Principal is the application-facing view of the identity token. The zero
// value is the anonymous principal.
type Principal struct {
	claims jwt.MapClaims
	scopes []string
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// IsAuthenticated reports whether the principal came from an identity token.
func (p Principal) IsAuthenticated() bool {
	return p.claims != nil
}

// Claim returns a single claim value.
func (p Principal) Claim(name string) (any, bool) {
	v, ok := p.claims[name]
	return v, ok
}

// Claims returns a copy of all claims.
func (p Principal) Claims() map[string]any {
	if p.claims == nil {
		return nil
	}
	out := make(map[string]any, len(p.claims))
	for k, v := range p.claims {
		out[k] = v
	}
	return out
}

// Subject returns the sub claim.
func (p Principal) Subject() string {
	return p.stringClaim(claimSubject)
}

// Name returns the display name, taken from the email claim.
func (p Principal) Name() string {
	return p.stringClaim(claimName)
}

// Scopes returns a copy of the granted scopes, never nil.
func (p Principal) Scopes() []string {
	if len(p.scopes) == 0 {
		return []string{}
	}
	return slices.Clone(p.scopes)
}

// HasScope reports whether scope was granted.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.scopes, scope)
}

func (p Principal) stringClaim(name string) string {
	s, _ := p.claims[name].(string)
	return s
}

// decodePrincipal projects an identity token into a Principal. Signatures are
// not checked: the token came straight from the provider's token endpoint.
func decodePrincipal(idToken string) (Principal, error) {
	if idToken == "" {
		return Anonymous(), nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return Anonymous(), fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	return Principal{claims: claims, scopes: parseScopes(claims[claimScope])}, nil
}

// parseScopes splits the scope claim on whitespace. Some providers send a
// list instead of a string.
func parseScopes(v any) []string {
	switch s := v.(type) {
	case string:
		return strings.Fields(s)
	case []any:
		scopes := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				scopes = append(scopes, str)
			}
		}
		return scopes
	default:
		return []string{}
	}
}
