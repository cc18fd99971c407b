package websession

import (
	"context"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/wrale/oauth2-session/internal/session"
)

// DefaultIdleTimeout evicts managers of sessions without requests
const DefaultIdleTimeout = 30 * time.Minute

// Factory creates the manager for a new session id
type Factory func(sessionID string) *session.Manager

// Registry keeps one long-lived session.Manager per browser session so that
// concurrent requests of the same browser share cached tokens, subscribers
// and refresh coalescing. Managers idle for longer than the idle timeout are
// evicted and rebuilt from storage; a manager held by an in-flight request
// is never evicted.
type Registry struct {
	mu      sync.Mutex
	c       *gocache.Cache
	held    map[string]*heldManager
	idle    time.Duration
	factory Factory
	logger  *zap.Logger
}

// heldManager is a manager pinned by requests still using it
type heldManager struct {
	m    *session.Manager
	refs int
}

// NewRegistry creates a registry. A non-positive idle uses DefaultIdleTimeout.
func NewRegistry(factory Factory, idle time.Duration, logger *zap.Logger) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		c:       gocache.New(idle, time.Minute),
		held:    make(map[string]*heldManager),
		idle:    idle,
		factory: factory,
		logger:  logger,
	}
}

// Get returns the manager for sessionID, creating it on first use. Every
// call restarts the idle timer.
func (r *Registry) Get(sessionID string) *session.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(sessionID)
}

func (r *Registry) getLocked(sessionID string) *session.Manager {
	var m *session.Manager
	if h, ok := r.held[sessionID]; ok {
		m = h.m
	} else if v, ok := r.c.Get(sessionID); ok {
		m = v.(*session.Manager)
	} else {
		m = r.factory(sessionID)
		r.logger.Debug("session manager created", zap.String("session_id", sessionID))
	}
	r.c.Set(sessionID, m, r.idle)
	return m
}

// acquire returns the manager for sessionID and pins it until release is
// called.
func (r *Registry) acquire(sessionID string) (*session.Manager, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.getLocked(sessionID)
	h, ok := r.held[sessionID]
	if !ok {
		h = &heldManager{m: m}
		r.held[sessionID] = h
	}
	h.refs++

	var once sync.Once
	return m, func() {
		once.Do(func() { r.release(sessionID, h) })
	}
}

func (r *Registry) release(sessionID string, h *heldManager) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h.refs--
	if h.refs > 0 || r.held[sessionID] != h {
		return
	}
	delete(r.held, sessionID)
	// The idle timer starts when the last request is done
	r.c.Set(sessionID, h.m, r.idle)
}

// Remove drops the manager for sessionID, held or not. The next request
// builds a new one from storage.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.held, sessionID)
	r.c.Delete(sessionID)
}

// Len returns the number of live managers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.c.Items()
	n := len(items)
	for id := range r.held {
		if _, ok := items[id]; !ok {
			n++
		}
	}
	return n
}

type contextKey struct{}

type binding struct {
	id      string
	manager *session.Manager
}

// Middleware resolves the session cookie and attaches the session's manager
// to the request context.
func (r *Registry) Middleware(cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, _ := cookies.SessionID(w, req)
			m, release := r.acquire(id)
			defer release()

			ctx := context.WithValue(req.Context(), contextKey{}, binding{id: id, manager: m})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// FromContext returns the session id and manager attached by Middleware.
func FromContext(ctx context.Context) (sessionID string, m *session.Manager, ok bool) {
	b, ok := ctx.Value(contextKey{}).(binding)
	if !ok {
		return "", nil, false
	}
	return b.id, b.manager, true
}
