// Package validation checks user-supplied navigation targets
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// Validation settings
const (
	MaxReturnURLLength = 2048
)

// ValidationError represents a rejected return URL
type ValidationError struct {
	URL     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid return url %q: %s", e.URL, e.Message)
}

// ValidateReturnURL accepts a path relative to the application or an
// absolute URL with the same origin as baseURL. Anything else could be used
// to bounce the user to another site after login.
func ValidateReturnURL(baseURL, target string) error {
	if target == "" {
		return &ValidationError{URL: target, Message: "must not be empty"}
	}
	if len(target) > MaxReturnURLLength {
		return &ValidationError{
			URL:     target[:32] + "...",
			Message: fmt.Sprintf("length must not exceed %d characters", MaxReturnURLLength),
		}
	}
	if strings.ContainsAny(target, "\\\r\n\t") {
		return &ValidationError{URL: target, Message: "contains forbidden characters"}
	}

	u, err := url.Parse(target)
	if err != nil {
		return &ValidationError{URL: target, Message: "not a valid url"}
	}

	// Relative reference: must be a rooted path, not scheme-relative
	if !u.IsAbs() {
		if u.Host != "" || strings.HasPrefix(target, "//") {
			return &ValidationError{URL: target, Message: "scheme-relative urls are not allowed"}
		}
		if !strings.HasPrefix(target, "/") {
			return &ValidationError{URL: target, Message: "relative urls must start with /"}
		}
		return nil
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return &ValidationError{URL: target, Message: "absolute urls need a valid base url"}
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return &ValidationError{URL: target, Message: "must share the application origin"}
	}

	return nil
}
