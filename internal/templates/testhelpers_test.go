package templates

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// pageRecorder records a rendered page and counts how often the header was
// sent, which httptest.ResponseRecorder does not report.
type pageRecorder struct {
	*httptest.ResponseRecorder
	headerCalls int
}

func newPageRecorder() *pageRecorder {
	return &pageRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (r *pageRecorder) WriteHeader(status int) {
	r.headerCalls++
	r.ResponseRecorder.WriteHeader(status)
}

func (r *pageRecorder) Write(b []byte) (int, error) {
	if r.headerCalls == 0 {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseRecorder.Write(b)
}

// missing returns the wanted substrings absent from the page
func (r *pageRecorder) missing(want ...string) []string {
	var out []string
	body := r.Body.String()
	for _, s := range want {
		if !strings.Contains(body, s) {
			out = append(out, s)
		}
	}
	return out
}

func setupTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpls, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	return tmpls
}
