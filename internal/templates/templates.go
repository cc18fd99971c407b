// Package templates renders the HTML pages of the session service
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
)

//go:embed html/*.html
var content embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"rfc3339": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	},
}

// Templates manages the HTML templates
type Templates struct {
	home  *template.Template
	error *template.Template
}

// TemplateError wraps a template execution failure
type TemplateError struct {
	Cause   error
	Message string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// LoadTemplates loads and parses all HTML templates
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.home, err = parse("html/home.html"); err != nil {
		return nil, err
	}
	if t.error, err = parse("html/error.html"); err != nil {
		return nil, err
	}

	return t, nil
}

func parse(page string) (*template.Template, error) {
	tmpl, err := template.New("layout").Funcs(funcs).ParseFS(content, "html/layout.html", page)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", page, err)
	}
	return tmpl, nil
}

// HomeData holds data for the session status page
type HomeData struct {
	Authenticated bool
	Name          string
	Subject       string
	Scopes        []string
	ExpiresAt     time.Time
	LoginURL      string
	LogoutURL     string
}

// RenderHome renders the session status page
func (t *Templates) RenderHome(w http.ResponseWriter, data HomeData) error {
	return t.render(w, t.home, http.StatusOK, data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Status   int
	Title    string
	Message  string
	RetryURL string
}

// RenderError renders the error page. Status defaults to 400.
func (t *Templates) RenderError(w http.ResponseWriter, data ErrorData) error {
	status := data.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	if data.RetryURL == "" {
		data.RetryURL = "/"
	}
	return t.render(w, t.error, status, data)
}

// RenderToString renders a template to a string
func (t *Templates) RenderToString(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", &TemplateError{Cause: err, Message: "failed to render template"}
	}
	return buf.String(), nil
}

// render executes into a buffer first so a failing template never leaves a
// half-written page behind.
func (t *Templates) render(w http.ResponseWriter, tmpl *template.Template, status int, data any) error {
	page, err := t.RenderToString(tmpl, data)
	if err != nil {
		return err
	}

	sw := t.NewSafeWriter(w)
	sw.SetStatusCode(status)
	if _, err := sw.Write([]byte(page)); err != nil {
		return fmt.Errorf("writing page: %w", err)
	}
	return nil
}
