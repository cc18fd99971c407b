package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/internal/validation"
)

// interactiveRequestOptions is the history entry state written by the
// application before asking for login.
type interactiveRequestOptions struct {
	ReturnURL string `json:"returnUrl"`
}

// StartLogin persists the return URL found in the navigation history state
// and redirects to the provider's login endpoint. This is the first half of
// the login handshake; CompleteLogin runs after the page reload.
func (m *Manager) StartLogin(ctx context.Context) error {
	storage := m.st.tokens.storage

	returnURL := m.returnURLFromHistory()
	if returnURL != "" {
		if err := storage.SetItem(ctx, KeyReturnURL, returnURL); err != nil {
			return fmt.Errorf("saving return url: %w", err)
		}
	} else if err := storage.RemoveItem(ctx, KeyReturnURL); err != nil {
		return fmt.Errorf("removing stale return url: %w", err)
	}

	var stateToken string
	if m.states != nil {
		var err error
		if stateToken, err = m.states.GenerateToken(ctx); err != nil {
			return fmt.Errorf("generating login state: %w", err)
		}
	}

	m.recorder.LoginStarted()
	m.nav.NavigateTo(m.provider.AuthCodeURL(m.redirectURI(), stateToken))
	return nil
}

// CompleteLogin exchanges the code on the current URL for tokens, publishes
// the new identity and navigates back to the saved return URL. Exchange
// failures are returned and leave the session unchanged.
func (m *Manager) CompleteLogin(ctx context.Context) error {
	u, err := url.Parse(m.nav.URI())
	if err != nil {
		m.recorder.CallbackCompleted(false)
		return fmt.Errorf("parsing callback url: %w", err)
	}
	query := u.Query()

	if code := query.Get("error"); code != "" {
		m.recorder.CallbackCompleted(false)
		return fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, code, query.Get("error_description"))
	}

	code := query.Get("code")
	if code == "" {
		m.recorder.CallbackCompleted(false)
		return ErrMissingCode
	}

	if m.states != nil {
		if err := m.states.ValidateToken(ctx, query.Get("state")); err != nil {
			m.recorder.CallbackCompleted(false)
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}

	tok, err := m.provider.ExchangeCode(ctx, code, m.redirectURI())
	if err != nil {
		m.recorder.CallbackCompleted(false)
		return fmt.Errorf("%w: %w", ErrCallbackExchangeFailed, err)
	}

	m.st.mu.Lock()
	m.st.tokens.set = m.newTokenSet(tok, "")
	saveErr := m.st.tokens.save(ctx)
	p, changed := m.projectLocked()
	m.st.mu.Unlock()

	if changed {
		m.notify(p)
	}
	m.recorder.CallbackCompleted(true)

	if saveErr != nil {
		return fmt.Errorf("persisting tokens: %w", saveErr)
	}

	storage := m.st.tokens.storage
	returnURL, found, err := storage.GetItem(ctx, KeyReturnURL)
	if err != nil {
		return fmt.Errorf("reading return url: %w", err)
	}
	if !found || returnURL == "" {
		return nil
	}
	if err := storage.RemoveItem(ctx, KeyReturnURL); err != nil {
		return fmt.Errorf("removing return url: %w", err)
	}
	m.nav.NavigateTo(returnURL)
	return nil
}

// Logout clears local tokens and then redirects to the provider's logout
// endpoint, so a cancelled provider logout cannot leave usable tokens behind.
func (m *Manager) Logout(ctx context.Context) error {
	clearErr := m.Clear(ctx)
	if clearErr != nil {
		m.logger.Warn("clearing session before logout", zap.Error(clearErr))
	}

	m.recorder.LoggedOut()
	m.nav.NavigateTo(m.provider.LogoutURL(m.redirectURI()))

	if clearErr != nil {
		return fmt.Errorf("clearing session: %w", clearErr)
	}
	return nil
}

// redirectURI is the application base URL without its trailing slash.
func (m *Manager) redirectURI() string {
	return strings.TrimSuffix(m.nav.BaseURI(), "/")
}

func (m *Manager) returnURLFromHistory() string {
	raw := m.nav.HistoryEntryState()
	if raw == "" {
		return ""
	}

	var opts interactiveRequestOptions
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		m.logger.Debug("ignoring unreadable history state", zap.Error(err))
		return ""
	}
	if opts.ReturnURL == "" {
		return ""
	}

	if err := validation.ValidateReturnURL(m.nav.BaseURI(), opts.ReturnURL); err != nil {
		m.logger.Warn("ignoring return url", zap.Error(err))
		return ""
	}
	return opts.ReturnURL
}
