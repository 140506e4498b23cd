// Package orchestrator runs a population of sessions and aggregates their
// outcomes into a run report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/oracle"
	"github.com/wesleyorama2/horde/internal/rate"
	"github.com/wesleyorama2/horde/internal/session"
)

// ReasonPanic marks a session whose goroutine panicked.
const ReasonPanic = "panic"

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("orchestrator is already running")

// Config controls the session population.
type Config struct {
	Name string

	// Sessions is the total to start; zero keeps starting sessions until
	// Duration elapses.
	Sessions int

	// Concurrency bounds how many sessions run at once.
	Concurrency int

	// Duration bounds the whole run (0 = until all sessions finish).
	Duration time.Duration

	// Goals are assigned to sessions round-robin.
	Goals []string

	Session session.Config
}

// ConfigFrom converts a validated run file.
func ConfigFrom(c *config.RunConfig) Config {
	return Config{
		Name:        c.Name,
		Sessions:    c.Sessions,
		Concurrency: c.Concurrency,
		Duration:    c.Duration.GetDuration(0),
		Goals:       c.Goals,
		Session:     session.ConfigFrom(c.Session),
	}
}

// Orchestrator manages the lifecycle of sessions.
//
// It provides:
// - a bounded pool of concurrently running sessions
// - round-robin goal assignment
// - stop and graceful shutdown coordination
// - aggregation of outcomes into a Report
type Orchestrator struct {
	cfg      Config
	oracle   oracle.Oracle
	executor *executor.Executor
	mediator gateway.Mediator
	routes   []oracle.Route

	engine    *metrics.Engine
	collector *metrics.Collector
	logger    zerolog.Logger

	// Running sessions
	active   map[string]*session.Session
	activeMu sync.RWMutex

	outcomes   []*session.Outcome
	outcomesMu sync.Mutex

	started atomic.Int64
	running atomic.Bool

	shutdownWg sync.WaitGroup

	// mu guards the fields below
	mu         sync.Mutex
	cancel     context.CancelFunc
	stopped    bool
	startedAt  time.Time
	finishedAt time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRoutes sets the route catalogue shown to the oracle.
func WithRoutes(routes []oracle.Route) Option {
	return func(o *Orchestrator) {
		o.routes = routes
	}
}

// WithLogger sets the logger handed to every session.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEngine records step latencies into engine instead of a private one.
func WithEngine(engine *metrics.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithCollector exports session counts to Prometheus.
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = c
	}
}

// New creates an orchestrator. Sessions share the oracle, executor and
// mediator, which must be safe for concurrent use.
func New(cfg Config, o oracle.Oracle, exec *executor.Executor, m gateway.Mediator, opts ...Option) (*Orchestrator, error) {
	if len(cfg.Goals) == 0 {
		return nil, fmt.Errorf("at least one goal is required")
	}
	if cfg.Sessions <= 0 && cfg.Duration <= 0 {
		return nil, fmt.Errorf("either sessions or duration must be set")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.Sessions
		if cfg.Concurrency <= 0 {
			cfg.Concurrency = 1
		}
	}

	orch := &Orchestrator{
		cfg:      cfg,
		oracle:   o,
		executor: exec,
		mediator: m,
		logger:   zerolog.Nop(),
		active:   make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(orch)
	}
	if orch.engine == nil {
		orch.engine = metrics.NewEngine()
	}
	return orch, nil
}

// Engine returns the latency engine the run records into.
func (o *Orchestrator) Engine() *metrics.Engine {
	return o.engine
}

// Run starts sessions until the configured total has started or the run
// duration elapses, waits for all of them to finish and returns the report.
// Cancelling ctx or calling Stop ends every session with reason "stopped".
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	startedAt := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.cfg.Duration > 0 {
		var cancelDuration context.CancelFunc
		runCtx, cancelDuration = context.WithDeadline(runCtx, startedAt.Add(o.cfg.Duration))
		defer cancelDuration()
	}

	o.engine.Reset()

	o.mu.Lock()
	o.cancel = cancel
	if o.stopped {
		cancel()
	}
	o.startedAt = startedAt
	o.mu.Unlock()

	o.logger.Info().
		Str("run", o.cfg.Name).
		Int("sessions", o.cfg.Sessions).
		Int("concurrency", o.cfg.Concurrency).
		Dur("duration", o.cfg.Duration).
		Msg("run started")

	slots := rate.NewInflight(o.cfg.Concurrency)
	for i := 0; o.cfg.Sessions <= 0 || i < o.cfg.Sessions; i++ {
		if runCtx.Err() != nil {
			break
		}
		if err := slots.Acquire(runCtx); err != nil {
			break
		}
		if runCtx.Err() != nil {
			slots.Release()
			break
		}

		// Add under mu so Shutdown never waits before a session it must see.
		o.mu.Lock()
		if o.stopped {
			o.mu.Unlock()
			slots.Release()
			break
		}
		o.shutdownWg.Add(1)
		o.mu.Unlock()

		s := o.spawn(i)
		go func() {
			defer o.shutdownWg.Done()
			defer slots.Release()
			o.runSession(runCtx, s)
		}()
	}

	o.shutdownWg.Wait()
	o.mu.Lock()
	o.finishedAt = time.Now()
	o.mu.Unlock()

	report := o.Report()
	o.logger.Info().
		Str("run", o.cfg.Name).
		Int("started", report.Started).
		Int("completed", report.States[session.Completed.String()]).
		Dur("elapsed", report.Duration).
		Msg("run finished")
	return report, nil
}

// spawn creates and registers the i-th session. The caller runs it.
func (o *Orchestrator) spawn(i int) *session.Session {
	goal := o.cfg.Goals[i%len(o.cfg.Goals)]
	s := session.New(goal, o.cfg.Session, o.oracle, o.executor, o.mediator,
		session.WithRoutes(o.routes),
		session.WithLogger(o.logger),
		session.WithStepHook(o.recordStep),
	)

	o.started.Add(1)
	o.activeMu.Lock()
	o.active[s.ID] = s
	o.activeMu.Unlock()
	return s
}

func (o *Orchestrator) runSession(ctx context.Context, s *session.Session) {
	o.engine.SessionStarted()
	o.collector.SessionStarted()

	out := o.safeRun(ctx, s)

	o.engine.SessionFinished()
	o.collector.SessionFinished(out.State.String(), out.Reason, out.Steps)

	o.activeMu.Lock()
	delete(o.active, s.ID)
	o.activeMu.Unlock()

	o.outcomesMu.Lock()
	o.outcomes = append(o.outcomes, out)
	o.outcomesMu.Unlock()
}

// safeRun keeps a panicking session from taking down the others.
func (o *Orchestrator) safeRun(ctx context.Context, s *session.Session) (out *session.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("session_id", s.ID).
				Str("trace_id", s.TraceID).
				Interface("panic", r).
				Msg("session panicked")
			out = &session.Outcome{
				SessionID: s.ID,
				Goal:      s.Goal,
				TraceID:   s.TraceID,
				State:     session.Failed,
				Reason:    ReasonPanic,
				Context:   s.Context(),
				StartedAt: start,
				Duration:  time.Since(start),
			}
		}
	}()
	return s.Run(ctx)
}

func (o *Orchestrator) recordStep(e executor.Entry) {
	if e.Action == nil {
		return
	}
	route := e.Action.APIName
	if e.Observation.Kind == string(gateway.KindRouteNotFound) {
		route = "unknown"
	}
	o.engine.RecordLatency(e.Observation.Latency, route, e.Observation.OK, e.Observation.Bytes)
}

// Active returns the number of sessions currently running.
func (o *Orchestrator) Active() int {
	o.activeMu.RLock()
	defer o.activeMu.RUnlock()
	return len(o.active)
}

// Stop cancels every running session and prevents new ones from starting.
// Run still returns a report covering every session that was started.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

// Shutdown stops the run and waits up to timeout for sessions to finish.
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	o.Stop()

	done := make(chan struct{})
	go func() {
		o.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%d sessions still running after %s", o.Active(), timeout)
	}
}

// Report aggregates the outcomes collected so far. It is safe to call while
// the run is in progress.
func (o *Orchestrator) Report() *Report {
	o.outcomesMu.Lock()
	outcomes := append([]*session.Outcome(nil), o.outcomes...)
	o.outcomesMu.Unlock()

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].StartedAt.Before(outcomes[j].StartedAt)
	})

	o.mu.Lock()
	startedAt, end := o.startedAt, o.finishedAt
	o.mu.Unlock()
	if end.IsZero() {
		end = time.Now()
	}
	var elapsed time.Duration
	if !startedAt.IsZero() {
		elapsed = end.Sub(startedAt)
	}

	r := newReport(o.cfg.Name, startedAt, elapsed, outcomes)
	r.Started = int(o.started.Load())
	r.Active = o.Active()
	r.Latency = o.engine.GetSnapshot()
	return r
}
