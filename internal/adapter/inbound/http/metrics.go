// Package http provides the dev/admin HTTP surface: the prometheus
// metrics endpoint and the health check.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/verdant-market/storecore/internal/domain/monitor"
	"github.com/verdant-market/storecore/internal/service"
)

// Metrics exposes the security layer's counters and gauges. The
// domain stays prometheus-free: it publishes monotonic counts and
// snapshots, and the collectors registered here sample them.
type Metrics struct {
	SignInSuccesses       prometheus.CounterFunc
	SignInFailures        prometheus.CounterFunc
	RateLimitDenials      prometheus.CounterFunc
	CSRFFailures          prometheus.CounterFunc
	SanitizerDegradations prometheus.CounterFunc
	SecuritySweeps        prometheus.CounterFunc
	RateLimitKeys         prometheus.GaugeFunc
	RateLimitBlockedKeys  prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given
// registry. stats and security are sampled on every scrape.
func NewMetrics(reg prometheus.Registerer, stats func() service.Stats, security func() monitor.Snapshot) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignInSuccesses: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "sign_in_successes_total",
			Help:      "Total successful sign-ins",
		}, func() float64 { return float64(stats().SignInSuccesses) }),
		SignInFailures: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "sign_in_failures_total",
			Help:      "Total rejected sign-in attempts",
		}, func() float64 { return float64(stats().SignInFailures) }),
		RateLimitDenials: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "rate_limit_denials_total",
			Help:      "Total operations denied by the rate limiter",
		}, func() float64 { return float64(stats().RateLimitDenials) }),
		CSRFFailures: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "csrf_failures_total",
			Help:      "Total mutations rejected for a stale or wrong CSRF token",
		}, func() float64 { return float64(stats().CSRFFailures) }),
		SanitizerDegradations: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "sanitizer_degradations_total",
			Help:      "Total inputs degraded by the sanitizer",
		}, func() float64 { return float64(stats().SanitizerDegradations) }),
		SecuritySweeps: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "storecore",
			Name:      "security_sweeps_total",
			Help:      "Total security monitor sweep passes",
		}, func() float64 { return float64(security().Sweeps) }),
		RateLimitKeys: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "storecore",
			Name:      "rate_limit_keys",
			Help:      "Number of tracked rate limit keys",
		}, func() float64 { return float64(security().TrackedKeys) }),
		RateLimitBlockedKeys: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "storecore",
			Name:      "rate_limit_blocked_keys",
			Help:      "Number of currently blocked rate limit keys",
		}, func() float64 { return float64(security().BlockedKeys) }),
	}
}
