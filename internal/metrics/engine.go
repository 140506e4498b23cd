// Package metrics aggregates run statistics: HDR latency histograms for the
// end-of-run report and Prometheus collectors for the gateway's /metrics.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects step latencies using HDR histograms.
//
// Key features:
// - HDR histogram for accurate latency percentiles (O(1) calculation)
// - Per-route histograms for the run report breakdown
// - Lock-free counter updates for high concurrency
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms use mutex protection.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	routeHists   map[string]*hdrhistogram.Histogram
	routeHistsMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	activeSessions atomic.Int32

	startTime time.Time

	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		latencyHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		routeHists:  make(map[string]*hdrhistogram.Histogram),
		startTime:   time.Now(),
		config:      config,
	}
}

// RecordLatency records one executed step.
//
// Parameters:
//   - duration: end-to-end gateway execution time including retries
//   - route: route name for the per-route breakdown (empty string to skip)
//   - success: whether the step succeeded
//   - bytes: number of body bytes received
func (e *Engine) RecordLatency(duration time.Duration, route string, success bool, bytes int64) {
	latencyMicros := duration.Microseconds()
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if route != "" {
		e.recordRouteHistogram(route, latencyMicros)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}
}

// HDR histogram RecordValue is not thread-safe, so the lock is held throughout.
func (e *Engine) recordRouteHistogram(route string, latencyMicros int64) {
	e.routeHistsMu.Lock()
	defer e.routeHistsMu.Unlock()

	hist, exists := e.routeHists[route]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.routeHists[route] = hist
	}
	_ = hist.RecordValue(latencyMicros)
}

// SessionStarted increments the active session gauge.
func (e *Engine) SessionStarted() {
	e.activeSessions.Add(1)
}

// SessionFinished decrements the active session gauge.
func (e *Engine) SessionFinished() {
	e.activeSessions.Add(-1)
}

// ActiveSessions returns the current active session count.
func (e *Engine) ActiveSessions() int {
	return int(e.activeSessions.Load())
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsOf(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		Routes:          e.GetRouteStats(),
		RPS:             rps,
		ErrorRate:       errorRate,
		ActiveSessions:  e.ActiveSessions(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// GetRouteStats returns per-route latency statistics sorted by route name.
func (e *Engine) GetRouteStats() []RouteStats {
	e.routeHistsMu.Lock()
	defer e.routeHistsMu.Unlock()

	result := make([]RouteStats, 0, len(e.routeHists))
	for name, hist := range e.routeHists {
		result = append(result, RouteStats{Route: name, Latency: statsOf(hist)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Route < result[j].Route })
	return result
}

// Reset resets all metrics to initial state.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.routeHistsMu.Lock()
	e.routeHists = make(map[string]*hdrhistogram.Histogram)
	e.routeHistsMu.Unlock()

	e.totalRequests.Store(0)
	e.successRequests.Store(0)
	e.failedRequests.Store(0)
	e.totalBytes.Store(0)
	e.activeSessions.Store(0)
	e.startTime = time.Now()
}

func statsOf(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes"`
	Latency         LatencyStats  `json:"latency"`
	Routes          []RouteStats  `json:"routes"`
	RPS             float64       `json:"rps"`
	ErrorRate       float64       `json:"errorRate"`
	ActiveSessions  int           `json:"activeSessions"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}

// RouteStats is the latency breakdown of one route.
type RouteStats struct {
	Route   string       `json:"route"`
	Latency LatencyStats `json:"latency"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
