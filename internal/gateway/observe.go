package gateway

import (
	"time"

	"github.com/rs/zerolog"

	hordehttp "github.com/wesleyorama2/horde/internal/http"
	"github.com/wesleyorama2/horde/internal/metrics"
)

// Attempt is the observability record emitted for every outbound attempt.
type Attempt struct {
	Route     string
	TraceID   string
	SessionID string
	Method    string
	Path      string
	Number    int
	// Status is 0 when no response was received.
	Status  int
	Latency time.Duration
	Bytes   int64
	// Timing is the network phase breakdown; zero when no response arrived.
	Timing hordehttp.TimingInfo
	Err    error
}

// AttemptObserver receives one record per outbound attempt. Observers are
// called synchronously on the request goroutine and must be safe for
// concurrent use.
type AttemptObserver interface {
	ObserveAttempt(a Attempt)
}

// ObserverFunc adapts a function to AttemptObserver.
type ObserverFunc func(a Attempt)

// ObserveAttempt implements AttemptObserver.
func (f ObserverFunc) ObserveAttempt(a Attempt) { f(a) }

// emit hands the record to every observer. A panicking observer is logged
// and skipped.
func (g *Gateway) emit(log zerolog.Logger, a Attempt) {
	ev := log.Debug()
	if a.Err != nil || a.Status >= 400 {
		ev = log.Warn()
	}
	ev.Int("attempt", a.Number).
		Int("status", a.Status).
		Dur("latency", a.Latency).
		Int64("bytes", a.Bytes).
		Dur("dns", a.Timing.DNSLookupTime).
		Dur("connect", a.Timing.TCPConnectTime).
		Dur("tls", a.Timing.TLSHandshakeTime).
		Dur("ttfb", a.Timing.TimeToFirstByte).
		AnErr("error", a.Err).
		Msg("gateway attempt")

	g.collector.ObserveAttempt(a.Route, a.Number, a.Status, a.Latency)
	if a.Status != 0 {
		g.collector.ObservePhases(a.Route, metrics.Phases{
			DNS:      a.Timing.DNSLookupTime,
			Connect:  a.Timing.TCPConnectTime,
			TLS:      a.Timing.TLSHandshakeTime,
			TTFB:     a.Timing.TimeToFirstByte,
			Transfer: a.Timing.ContentTransferTime,
		})
	}

	for _, o := range g.observers {
		notify(log, o, a)
	}
}

func notify(log zerolog.Logger, o AttemptObserver, a Attempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("attempt", a.Number).Msg("attempt observer panicked")
		}
	}()
	o.ObserveAttempt(a)
}
