// Package session runs one simulated user journey as a state machine:
// ask the oracle, execute through the gateway, merge the result, repeat
// until the goal is met or a budget runs out.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/oracle"
	"github.com/wesleyorama2/horde/internal/tracing"
)

// KindHTTPStatus tallies calls that reached the target but got an error
// status that was not retried.
const KindHTTPStatus = "HTTPStatus"

// Config bounds a session. Zero MaxSteps or MaxConsecutiveFailures take the
// run defaults; zero Deadline means none.
type Config struct {
	MaxSteps               int
	MaxConsecutiveFailures int
	Deadline               time.Duration
	ThinkTime              time.Duration
}

// ConfigFrom converts the run file section.
func ConfigFrom(c config.SessionConfig) Config {
	return Config{
		MaxSteps:               c.MaxSteps,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		Deadline:               c.Deadline.GetDuration(0),
		ThinkTime:              c.ThinkTime.GetDuration(0),
	}
}

// Session is one simulated user. Its fields are mutated only by the
// goroutine calling Run; State and Context are safe to call concurrently.
type Session struct {
	ID      string
	Goal    string
	TraceID string

	cfg      Config
	oracle   oracle.Oracle
	executor *executor.Executor
	mediator gateway.Mediator
	routes   []oracle.Route
	logger   zerolog.Logger
	hook     func(from, to State)
	onStep   func(e executor.Entry)

	state atomic.Int32
	ran   atomic.Bool

	mu        sync.RWMutex
	context   []executor.Entry
	variables map[string]string

	stepCount           int
	decisions           int
	consecutiveFailures int
	failures            map[string]int
	startedAt           time.Time
	deadlineAt          time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		s.ID = id
	}
}

// WithTraceID overrides the generated trace id.
func WithTraceID(id string) Option {
	return func(s *Session) {
		s.TraceID = id
	}
}

// WithRoutes sets the route catalogue shown to the oracle.
func WithRoutes(routes []oracle.Route) Option {
	return func(s *Session) {
		s.routes = routes
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTransitionHook is called synchronously on every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(s *Session) {
		s.hook = fn
	}
}

// WithStepHook is called synchronously after every executed step.
func WithStepHook(fn func(e executor.Entry)) Option {
	return func(s *Session) {
		s.onStep = fn
	}
}

// New creates a session in the Created state.
func New(goal string, cfg Config, o oracle.Oracle, exec *executor.Executor, m gateway.Mediator, opts ...Option) *Session {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = config.DefaultMaxSteps
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = config.DefaultMaxConsecutiveFailures
	}

	s := &Session{
		ID:        tracing.NewSessionID(),
		Goal:      goal,
		TraceID:   tracing.NewTraceID(),
		cfg:       cfg,
		oracle:    o,
		executor:  exec,
		mediator:  m,
		logger:    zerolog.Nop(),
		variables: make(map[string]string),
		failures:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Context returns a copy of the context so far.
func (s *Session) Context() []executor.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]executor.Entry(nil), s.context...)
}

// Run drives the session to a terminal state and returns its outcome.
//
// ctx ending counts as a stop; the session deadline is applied on top of it
// and cancels any in-flight oracle or gateway call. Run may only be called
// once.
func (s *Session) Run(ctx context.Context) *Outcome {
	if !s.ran.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("session %s: Run called twice", s.ID))
	}

	s.startedAt = time.Now()
	runCtx := ctx
	if s.cfg.Deadline > 0 {
		s.deadlineAt = s.startedAt.Add(s.cfg.Deadline)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, s.deadlineAt)
		defer cancel()
	}
	runCtx = tracing.WithTraceID(tracing.WithSessionID(runCtx, s.ID), s.TraceID)
	log := tracing.Logger(runCtx, s.logger)

	log.Debug().Str("goal", s.Goal).Msg("session started")

	for {
		if reason, over := s.expired(ctx, runCtx); over {
			return s.finish(log, TimedOut, reason)
		}

		s.transition(Deciding)
		s.decisions++
		decision, err := s.oracle.Decide(runCtx, s.input())

		if reason, over := s.expired(ctx, runCtx); over {
			return s.finish(log, TimedOut, reason)
		}
		if err == nil && decision == nil {
			err = fmt.Errorf("oracle returned no decision")
		}
		if err == nil && decision.Done {
			return s.finish(log, Completed, ReasonGoalSatisfied)
		}

		var req *gateway.ActionRequest
		if err == nil {
			req, err = s.executor.ToAction(decision.Action, s.vars(), s.TraceID)
		}
		if err != nil {
			s.decisionFailed(log, err)
			if s.consecutiveFailures >= s.cfg.MaxConsecutiveFailures {
				return s.finish(log, Failed, ReasonConsecutiveFailures)
			}
			continue
		}

		if s.stepCount >= s.cfg.MaxSteps {
			return s.finish(log, TimedOut, ReasonStepBudget)
		}

		s.transition(Executing)
		s.stepCount++
		res := s.mediator.Execute(runCtx, req)

		s.transition(Updating)
		s.update(log, req, res)

		if reason, over := s.expired(ctx, runCtx); over {
			return s.finish(log, TimedOut, reason)
		}
		if s.consecutiveFailures >= s.cfg.MaxConsecutiveFailures {
			return s.finish(log, Failed, ReasonConsecutiveFailures)
		}

		s.think(runCtx)
	}
}

// expired reports whether the session must stop, and why. A cancelled
// parent is a stop; anything else past the deadline is a deadline.
func (s *Session) expired(parent, runCtx context.Context) (string, bool) {
	if parent.Err() != nil {
		return ReasonStopped, true
	}
	if runCtx.Err() != nil || (!s.deadlineAt.IsZero() && !time.Now().Before(s.deadlineAt)) {
		return ReasonDeadline, true
	}
	return "", false
}

func (s *Session) input() *oracle.Input {
	return &oracle.Input{
		SessionID: s.ID,
		Goal:      s.Goal,
		History:   s.Context(),
		Variables: s.vars(),
		Routes:    s.routes,
	}
}

func (s *Session) vars() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

func (s *Session) decisionFailed(log zerolog.Logger, err error) {
	s.consecutiveFailures++
	s.failures[executor.KindDecision]++
	s.appendEntry(nil, executor.DecisionObservation(err))

	log.Debug().
		Err(err).
		Int("consecutive_failures", s.consecutiveFailures).
		Msg("decision rejected")
}

func (s *Session) update(log zerolog.Logger, req *gateway.ActionRequest, res *gateway.Result) {
	obs := s.executor.FromResult(res)
	entry := s.appendEntry(req, obs)
	if s.onStep != nil {
		s.onStep(entry)
	}

	if len(obs.Extracted) > 0 {
		s.mu.Lock()
		for k, v := range obs.Extracted {
			s.variables[k] = v
		}
		s.mu.Unlock()
	}

	if obs.OK {
		s.consecutiveFailures = 0
	} else {
		s.consecutiveFailures++
		kind := obs.Kind
		if kind == "" {
			kind = KindHTTPStatus
		}
		s.failures[kind]++
	}

	log.Debug().
		Int("step", s.stepCount).
		Str("route", req.APIName).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", obs.Status).
		Str("error_kind", obs.Kind).
		Int("attempts", obs.Attempts).
		Dur("latency", obs.Latency).
		Msg("step executed")
}

func (s *Session) appendEntry(req *gateway.ActionRequest, obs executor.Observation) executor.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := executor.Entry{
		Step:        len(s.context) + 1,
		Action:      req,
		Observation: obs,
		At:          time.Now(),
	}
	s.context = append(s.context, e)
	return e
}

func (s *Session) think(ctx context.Context) {
	if s.cfg.ThinkTime <= 0 {
		return
	}
	timer := time.NewTimer(s.cfg.ThinkTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Session) transition(to State) {
	from := s.State()
	if from.Terminal() || !canTransition(from, to) {
		panic(fmt.Sprintf("session %s: illegal transition %s -> %s", s.ID, from, to))
	}
	s.state.Store(int32(to))
	if s.hook != nil {
		s.hook(from, to)
	}
}

func (s *Session) finish(log zerolog.Logger, state State, reason string) *Outcome {
	s.transition(state)
	out := s.outcome(reason)

	ev := log.Info()
	if state != Completed {
		ev = log.Warn()
	}
	ev.Str("state", state.String()).
		Str("reason", reason).
		Int("steps", out.Steps).
		Int("decisions", out.Decisions).
		Dur("duration", out.Duration).
		Msg("session finished")
	return out
}
