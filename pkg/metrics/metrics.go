// Package metrics exposes Prometheus collectors for checkout attempts,
// identity resolution and the intent API.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	checkout "github.com/payelement/checkout/go"
	"github.com/payelement/checkout/go/decoupled"
)

// Attempt outcomes
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Metrics holds the checkout collectors
type Metrics struct {
	AttemptsTotal       *prometheus.CounterVec
	AttemptDuration     *prometheus.HistogramVec
	IdentityOutcomes    *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg under namespace
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_attempts_total",
				Help:      "Total number of payment attempts by outcome",
			},
			[]string{"kind", "outcome", "error_kind"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_attempt_duration_seconds",
				Help:      "Payment attempt duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		IdentityOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_resolutions_total",
				Help:      "Total number of decoupled identity resolutions by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Attach counts the orchestrator's attempts
func (m *Metrics) Attach(o *checkout.ConfirmationOrchestrator) {
	o.OnAfterConfirm(func(rc checkout.ConfirmResultContext) error {
		outcome := OutcomeSucceeded
		if rc.Duplicate {
			outcome = OutcomeDuplicate
		}
		m.AttemptsTotal.WithLabelValues(string(rc.Kind), outcome, "").Inc()
		m.AttemptDuration.WithLabelValues(string(rc.Kind)).Observe(rc.Duration.Seconds())
		return nil
	})
	o.OnConfirmFailure(func(fc checkout.ConfirmFailureContext) error {
		m.AttemptsTotal.WithLabelValues(string(fc.Kind), OutcomeFailed, string(checkout.KindOf(fc.Error))).Inc()
		m.AttemptDuration.WithLabelValues(string(fc.Kind)).Observe(fc.Duration.Seconds())
		return nil
	})
}

// IdentityObserver counts resolver outcomes
func (m *Metrics) IdentityObserver() decoupled.Observer {
	return func(ctx context.Context, outcome decoupled.Outcome) {
		m.IdentityOutcomes.WithLabelValues(string(outcome)).Inc()
	}
}

// Middleware records request counts and durations by route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
