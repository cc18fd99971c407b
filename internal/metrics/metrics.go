// Package metrics exposes Prometheus counters for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics records login, callback, refresh and logout outcomes. It
// implements session.Recorder.
type Metrics struct {
	LoginsStarted  prometheus.Counter
	Callbacks      *prometheus.CounterVec
	Refreshes      *prometheus.CounterVec
	Logouts        prometheus.Counter
	TokenRequests  *prometheus.CounterVec
	ActiveManagers prometheus.GaugeFunc
}

// New registers all session metrics with reg. activeManagers reports the
// number of cached session managers and may be nil.
func New(reg prometheus.Registerer, activeManagers func() float64) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		LoginsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "oauth2_session_logins_started_total",
			Help: "Total number of redirects to the provider's login endpoint",
		}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_session_callbacks_total",
			Help: "Total number of authorization callbacks by result",
		}, []string{"result"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_session_refreshes_total",
			Help: "Total number of refresh token grants by result",
		}, []string{"result"}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "oauth2_session_logouts_total",
			Help: "Total number of logouts",
		}),
		TokenRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth2_session_token_requests_total",
			Help: "Total number of access token requests by status",
		}, []string{"status"}),
	}

	if activeManagers != nil {
		m.ActiveManagers = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "oauth2_session_active_managers",
			Help: "Number of browser sessions with a cached manager",
		}, activeManagers)
	}

	return m
}

// LoginStarted records a login redirect.
func (m *Metrics) LoginStarted() {
	m.LoginsStarted.Inc()
}

// CallbackCompleted records a callback outcome.
func (m *Metrics) CallbackCompleted(ok bool) {
	m.Callbacks.WithLabelValues(result(ok)).Inc()
}

// RefreshCompleted records a refresh outcome.
func (m *Metrics) RefreshCompleted(ok bool) {
	m.Refreshes.WithLabelValues(result(ok)).Inc()
}

// LoggedOut records a logout.
func (m *Metrics) LoggedOut() {
	m.Logouts.Inc()
}

// ObserveTokenRequest records the status returned by the token endpoint.
func (m *Metrics) ObserveTokenRequest(status string) {
	m.TokenRequests.WithLabelValues(status).Inc()
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailure
}
