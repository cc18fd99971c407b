package websession

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// ReturnURLParam is the query parameter the login route reads the return URL from
const ReturnURLParam = "returnUrl"

// Navigator is a session.Navigator for a single HTTP request. NavigateTo
// records the target; the handler turns it into a redirect.
type Navigator struct {
	baseURI   string
	uri       string
	returnURL string
	target    string
}

// NewNavigator creates a navigator for r. baseURL is the public application
// URL; the current URI is rebuilt from it so proxies cannot alter the
// callback address.
func NewNavigator(baseURL string, r *http.Request) *Navigator {
	base := strings.TrimSuffix(baseURL, "/") + "/"

	uri := base
	if u, err := url.Parse(base); err == nil {
		u.Path = r.URL.Path
		u.RawPath = r.URL.RawPath
		u.RawQuery = r.URL.RawQuery
		uri = u.String()
	}

	return &Navigator{
		baseURI:   base,
		uri:       uri,
		returnURL: r.URL.Query().Get(ReturnURLParam),
	}
}

// URI returns the absolute URL of the current request
func (n *Navigator) URI() string { return n.uri }

// BaseURI returns the application base URL with a trailing slash
func (n *Navigator) BaseURI() string { return n.baseURI }

// HistoryEntryState carries the requested return URL the way a browser
// history entry would.
func (n *Navigator) HistoryEntryState() string {
	if n.returnURL == "" {
		return ""
	}
	data, err := json.Marshal(struct {
		ReturnURL string `json:"returnUrl"`
	}{n.returnURL})
	if err != nil {
		return ""
	}
	return string(data)
}

// NavigateTo records uri as the redirect target
func (n *Navigator) NavigateTo(uri string) { n.target = uri }

// Target returns the last navigation target, or an empty string
func (n *Navigator) Target() string { return n.target }

// Redirect sends the recorded target, or fallback when nothing navigated.
func (n *Navigator) Redirect(w http.ResponseWriter, r *http.Request, fallback string) {
	target := n.target
	if target == "" {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusFound)
}
