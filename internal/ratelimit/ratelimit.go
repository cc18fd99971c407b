// Package ratelimit throttles requests per client address with token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wrale/oauth2-session/internal/logging"
)

// idleExpiry drops buckets of clients that stopped sending requests
const idleExpiry = 10 * time.Minute

// Config defines the allowed request rate per client
type Config struct {
	// RequestsPerMinute is the sustained rate. Zero disables limiting.
	RequestsPerMinute int
	// Burst is the number of requests allowed at once. Defaults to RequestsPerMinute.
	Burst int
}

// Limiter keeps one token bucket per key
type Limiter struct {
	mu      sync.Mutex
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a limiter. It returns nil when cfg disables limiting; a nil
// Limiter allows everything.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		buckets: gocache.New(idleExpiry, time.Minute),
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / time.Minute.Seconds()),
		burst:   burst,
		now:     time.Now,
		logger:  logger,
	}
}

// Allow takes a token for key. When none is left it reports how long until
// the next one.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	l.mu.Lock()
	var bucket *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		bucket = v.(*rate.Limiter)
	} else {
		bucket = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Set(key, bucket, idleExpiry)
	l.mu.Unlock()

	now := l.now()
	r := bucket.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware rejects requests over the limit with 429 and Retry-After.
// Requests are keyed by remote address, so chi's RealIP middleware should
// run first behind a proxy.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		ok, delay := l.Allow(key)
		if !ok {
			retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
			logging.From(r.Context(), l.logger).Warn("rate limit exceeded",
				zap.String("client", key),
				zap.Int("retry_after", retryAfter),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
