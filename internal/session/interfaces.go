package session

import "context"

// Storage is the persistent key-value store scoped to one browser session.
// GetItem reports found=false for missing keys. A write either lands or
// returns an error.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Navigator reads the current location and triggers full-page navigation.
type Navigator interface {
	// URI returns the current absolute URL
	URI() string

	// BaseURI returns the application base URL
	BaseURI() string

	// HistoryEntryState returns the JSON history state of the current
	// entry, or an empty string.
	HistoryEntryState() string

	// NavigateTo issues a full-page navigation
	NavigateTo(uri string)
}

// Subscriber is notified with the new principal whenever the identity changes.
type Subscriber func(Principal)

// StateVerifier issues and validates the authorize request state parameter.
type StateVerifier interface {
	GenerateToken(ctx context.Context) (string, error)
	ValidateToken(ctx context.Context, token string) error
}

// Recorder receives lifecycle outcomes, typically for metrics.
type Recorder interface {
	LoginStarted()
	CallbackCompleted(ok bool)
	RefreshCompleted(ok bool)
	LoggedOut()
}

type noopRecorder struct{}

func (noopRecorder) LoginStarted()          {}
func (noopRecorder) CallbackCompleted(bool) {}
func (noopRecorder) RefreshCompleted(bool)  {}
func (noopRecorder) LoggedOut()             {}
