package templates

import "net/http"

// SafeWriter writes HTML responses, sending headers exactly once
type SafeWriter struct {
	w       http.ResponseWriter
	status  int
	written bool
}

// NewSafeWriter wraps w with status 200
func (t *Templates) NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{w: w, status: http.StatusOK}
}

// Header returns the underlying header map
func (s *SafeWriter) Header() http.Header {
	return s.w.Header()
}

// SetStatusCode sets the status used by the first write
func (s *SafeWriter) SetStatusCode(status int) {
	s.status = status
}

// WriteHeader sends the content type and status unless already sent
func (s *SafeWriter) WriteHeader(status int) {
	if s.written {
		return
	}
	s.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.w.WriteHeader(status)
	s.written = true
}

// Write sends headers if needed and writes b
func (s *SafeWriter) Write(b []byte) (int, error) {
	if !s.written {
		s.WriteHeader(s.status)
	}
	return s.w.Write(b)
}

// Written reports whether headers were sent
func (s *SafeWriter) Written() bool {
	return s.written
}
