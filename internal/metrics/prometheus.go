package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "horde"

// Collector exposes gateway and session metrics in Prometheus format.
//
// Each Collector owns its registry so tests and multiple gateways in one
// process do not collide. All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	attemptsTotal    *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	attemptPhase     *prometheus.HistogramVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
	inflight         *prometheus.GaugeVec

	activeSessions prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	sessionSteps   prometheus.Histogram
}

// NewCollector creates a collector with its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Logical gateway requests by route and outcome.",
			},
			[]string{"route", "outcome"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_attempts_total",
				Help:      "Outbound attempts by route and status code (0 for network errors).",
			},
			[]string{"route", "status"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_retries_total",
				Help:      "Attempts beyond the first by route.",
			},
			[]string{"route"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_errors_total",
				Help:      "Failed logical requests by route and error kind.",
			},
			[]string{"route", "kind"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_attempt_duration_seconds",
				Help:      "Outbound attempt latency in seconds by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		attemptPhase: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_attempt_phase_seconds",
				Help:      "Outbound attempt network phases in seconds by route and phase (dns, connect, tls, ttfb, transfer).",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"route", "phase"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Logical request latency in seconds by route, including retries and backoff.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_rate_limited_total",
				Help:      "Requests rejected or abandoned by the route rate limiter.",
			},
			[]string{"route"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gateway_inflight",
				Help:      "Outbound calls currently in flight by route.",
			},
			[]string{"route"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Current active session count.",
			},
		),
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Finished sessions by terminal state and reason.",
			},
			[]string{"state", "reason"},
		),
		sessionSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_steps",
				Help:      "Executed steps per finished session.",
				Buckets:   prometheus.LinearBuckets(1, 2, 15),
			},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.attemptsTotal,
		c.retriesTotal,
		c.errorsTotal,
		c.attemptDuration,
		c.attemptPhase,
		c.requestDuration,
		c.rateLimitedTotal,
		c.inflight,
		c.activeSessions,
		c.sessionsTotal,
		c.sessionSteps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveAttempt records one outbound attempt. status is 0 when the attempt
// produced no response.
func (c *Collector) ObserveAttempt(route string, attempt, status int, latency time.Duration) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.attemptDuration.WithLabelValues(route).Observe(latency.Seconds())
	if attempt > 1 {
		c.retriesTotal.WithLabelValues(route).Inc()
	}
}

// Phases is the network breakdown of one attempt. Zero phases were skipped,
// e.g. DNS and connect on a reused connection.
type Phases struct {
	DNS      time.Duration
	Connect  time.Duration
	TLS      time.Duration
	TTFB     time.Duration
	Transfer time.Duration
}

// ObservePhases records the network phases of one attempt.
func (c *Collector) ObservePhases(route string, p Phases) {
	if c == nil {
		return
	}
	for _, ph := range []struct {
		name string
		d    time.Duration
	}{
		{"dns", p.DNS},
		{"connect", p.Connect},
		{"tls", p.TLS},
		{"ttfb", p.TTFB},
		{"transfer", p.Transfer},
	} {
		if ph.d > 0 {
			c.attemptPhase.WithLabelValues(route, ph.name).Observe(ph.d.Seconds())
		}
	}
}

// ObserveRequest records the outcome of one logical request. kind is empty
// for success.
func (c *Collector) ObserveRequest(route, kind string, latency time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = kind
		c.errorsTotal.WithLabelValues(route, kind).Inc()
	}
	c.requestsTotal.WithLabelValues(route, outcome).Inc()
	c.requestDuration.WithLabelValues(route).Observe(latency.Seconds())
}

// ObserveRateLimited records a request refused by the route's rate limiter.
func (c *Collector) ObserveRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimitedTotal.WithLabelValues(route).Inc()
}

// InflightAdd adjusts the in-flight gauge of a route by delta.
func (c *Collector) InflightAdd(route string, delta float64) {
	if c == nil {
		return
	}
	c.inflight.WithLabelValues(route).Add(delta)
}

// SessionStarted increments the active session gauge.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionFinished records a terminal session.
func (c *Collector) SessionFinished(state, reason string, steps int) {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
	c.sessionsTotal.WithLabelValues(state, reason).Inc()
	c.sessionSteps.Observe(float64(steps))
}
