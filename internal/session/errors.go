package session

import "errors"

// Errors surfaced by the session manager. Refresh failures never reach the
// caller as errors; they end in StatusRequiresRedirect.
var (
	// ErrNoCredential indicates nothing is cached or persisted
	ErrNoCredential = errors.New("no credential available")

	// ErrRefreshRejected indicates the provider refused the refresh token
	ErrRefreshRejected = errors.New("refresh rejected")

	// ErrCallbackExchangeFailed indicates the authorization code exchange failed
	ErrCallbackExchangeFailed = errors.New("callback code exchange failed")

	// ErrMalformedToken indicates an identity token that could not be decoded
	ErrMalformedToken = errors.New("malformed identity token")

	// ErrMissingCode indicates a callback URL without a code parameter
	ErrMissingCode = errors.New("callback is missing the code parameter")

	// ErrAuthorizationDenied indicates the provider redirected back with an error
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrInvalidState indicates the callback state did not validate
	ErrInvalidState = errors.New("invalid callback state")
)
