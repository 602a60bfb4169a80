// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskdesk"

// Consume outcomes recorded by ResetConsumed.
const (
	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultExpired  = "expired"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics groups the application's collectors.
type Metrics struct {
	resetIssued   prometheus.Counter
	resetConsumed *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resetIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_tokens_issued_total",
			Help:      "Password reset tokens created for registered emails.",
		}),
		resetConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_reset_consume_total",
			Help:      "Password reset attempts by outcome.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(m.resetIssued, m.resetConsumed, m.httpDuration)
	return m
}

// ResetIssued counts one issued reset token.
func (m *Metrics) ResetIssued() {
	if m == nil {
		return
	}
	m.resetIssued.Inc()
}

// ResetConsumed counts one consume attempt with the given result.
func (m *Metrics) ResetConsumed(result string) {
	if m == nil {
		return
	}
	m.resetConsumed.WithLabelValues(result).Inc()
}

// Middleware observes request latency labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
