package session

import "time"

// Persisted storage keys
const (
	KeyIDToken      = "id_token"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiration   = "expiration"
	KeyReturnURL    = "returnUrl"
)

// TokenKeys lists every key the token store persists.
var TokenKeys = []string{KeyIDToken, KeyAccessToken, KeyRefreshToken, KeyExpiration}

// TokenSet holds the cached credentials. Empty strings and the zero time
// stand for absent values. ExpiresAt is set exactly when both IDToken and
// AccessToken are set.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// HasIdentity reports whether the identity/access pair with its expiry is present.
func (t TokenSet) HasIdentity() bool {
	return t.IDToken != "" && t.AccessToken != "" && !t.ExpiresAt.IsZero()
}

// normalize drops a partial identity/access/expiry triple, keeping the refresh token.
func (t TokenSet) normalize() TokenSet {
	if t.HasIdentity() {
		return t
	}
	return TokenSet{RefreshToken: t.RefreshToken}
}

// Status is the outcome of an access token request
type Status int

const (
	// StatusRequiresRedirect means no usable credential exists; the caller must start login.
	StatusRequiresRedirect Status = iota
	// StatusSuccess means a bearer credential is attached.
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	default:
		return "requires_redirect"
	}
}

// MarshalText encodes the status as its string form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AccessToken is the bearer credential handed to callers. Value carries the
// identity token, which first-party APIs expect as the bearer.
type AccessToken struct {
	Value         string    `json:"value"`
	Expires       time.Time `json:"expires"`
	GrantedScopes []string  `json:"granted_scopes"`
}

// AccessTokenResult is returned by GetAccessToken.
type AccessTokenResult struct {
	Status Status       `json:"status"`
	Token  *AccessToken `json:"token,omitempty"`
}

// Succeeded reports whether a credential is attached.
func (r AccessTokenResult) Succeeded() bool {
	return r.Status == StatusSuccess && r.Token != nil
}

func requiresRedirect() AccessTokenResult {
	return AccessTokenResult{Status: StatusRequiresRedirect}
}
