package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	hordehttp "github.com/wesleyorama2/horde/internal/http"
	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/registry"
	"github.com/wesleyorama2/horde/internal/tracing"
)

// unknownRoute labels metrics for requests that never resolved a route.
const unknownRoute = "unknown"

// Gateway is the in-process protocol mediation gateway. It is safe for
// concurrent use by any number of sessions.
type Gateway struct {
	registry  *registry.Registry
	client    *hordehttp.Client
	logger    zerolog.Logger
	collector *metrics.Collector
	observers []AttemptObserver
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for per-attempt records.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithClient replaces the outbound HTTP client.
func WithClient(client *hordehttp.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithCollector exports attempts and outcomes to Prometheus.
func WithCollector(c *metrics.Collector) Option {
	return func(g *Gateway) {
		g.collector = c
	}
}

// WithObserver registers additional per-attempt observers.
func WithObserver(observers ...AttemptObserver) Option {
	return func(g *Gateway) {
		g.observers = append(g.observers, observers...)
	}
}

// New creates a gateway over an immutable route registry.
func New(reg *registry.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: reg,
		client:   hordehttp.NewClient(),
		logger:   zerolog.Nop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the registry the gateway routes through.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// Collector returns the Prometheus collector, which may be nil.
func (g *Gateway) Collector() *metrics.Collector {
	return g.collector
}

// Execute runs one logical request: validate, resolve, rate-limit, call with
// retries. It never returns nil and never panics on bad input.
func (g *Gateway) Execute(ctx context.Context, req *ActionRequest) *Result {
	start := time.Now()

	var apiName, traceID string
	if req != nil {
		apiName = req.APIName
		traceID = req.TraceID
		if traceID == "" {
			traceID = headerValue(req.Headers, tracing.Header)
		}
	}
	traceID = tracing.EnsureTraceID(ctx, traceID)
	ctx = tracing.WithTraceID(ctx, traceID)

	log := tracing.Logger(ctx, g.logger).With().Str("route", apiName).Logger()

	res := g.execute(ctx, log, req, traceID)
	res.TraceID = traceID
	res.ExecutionTime = time.Since(start)
	if res.Headers == nil {
		res.Headers = map[string]string{}
	}

	label := unknownRoute
	if _, ok := g.registry.Resolve(apiName); ok {
		label = apiName
	}
	g.collector.ObserveRequest(label, string(res.Kind()), res.ExecutionTime)

	if res.Error != nil {
		log.Warn().
			Str("kind", string(res.Error.Kind)).
			Int("attempts", res.Attempts).
			Int("status", res.StatusCode).
			Dur("elapsed", res.ExecutionTime).
			Msg(res.Error.Message)
	} else {
		log.Debug().
			Int("attempts", res.Attempts).
			Int("status", res.StatusCode).
			Dur("elapsed", res.ExecutionTime).
			Msg("gateway request completed")
	}
	return res
}

func (g *Gateway) execute(ctx context.Context, log zerolog.Logger, req *ActionRequest, traceID string) *Result {
	if verr := Validate(req); verr != nil {
		return &Result{Attempts: 1, Error: verr}
	}

	route, ok := g.registry.Resolve(req.APIName)
	if !ok {
		return &Result{Attempts: 1, Error: newError(KindRouteNotFound, "no route named %q", req.APIName)}
	}
	if !route.Allows(req.Path) {
		return &Result{Attempts: 1, Error: newError(KindValidation, "path %q is not an endpoint of route %q", req.Path, route.Name)}
	}
	target, err := route.URL(req.Path, req.Query)
	if err != nil {
		return &Result{Attempts: 1, Error: newError(KindValidation, "%v", err)}
	}

	return g.run(ctx, log, route, req, &outbound{
		method: req.Method,
		url:    target,
		header: outboundHeader(req, route, traceID),
		body:   req.Data,
	})
}

type outbound struct {
	method string
	url    string
	header http.Header
	body   interface{}
}

// run is the bounded retry loop. Attempt k that fails with a retryable
// status or a network error is followed by route.Retry.Backoff(k).
func (g *Gateway) run(ctx context.Context, log zerolog.Logger, route *registry.Route, req *ActionRequest, out *outbound) *Result {
	res := &Result{}
	maxAttempts := route.Retry.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		if kerr := g.admit(ctx, route); kerr != nil {
			res.Error = kerr
			return res
		}

		resp, terminal, err := g.attempt(ctx, log, route, req, out, attempt)
		switch {
		case terminal != nil:
			res.Error = terminal
			return res
		case err != nil:
			lastErr = err
			res.StatusCode, res.Headers, res.Body, res.BodySize = 0, nil, nil, 0
		default:
			lastErr = nil
			res.StatusCode = resp.StatusCode
			res.Headers = flattenHeader(resp.Headers)
			res.Body = resp.DecodeBody()
			res.BodySize = int64(len(resp.Body))
			if !retryable(route, resp.StatusCode) {
				return res
			}
		}

		if attempt == maxAttempts {
			break
		}

		delay := route.Retry.Backoff(attempt)
		log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("backing off before retry")
		if err := g.sleep(ctx, delay); err != nil {
			res.Error = newError(KindTimeout, "context ended during backoff after attempt %d: %v", attempt, err)
			return res
		}
	}

	if lastErr != nil {
		res.Error = newError(KindUpstream, "giving up after %d attempts: %v", res.Attempts, lastErr)
	} else {
		res.Error = newError(KindUpstream, "giving up after %d attempts: last status %d", res.Attempts, res.StatusCode)
	}
	return res
}

// retryable reports whether an error status is in the route's retry set.
// Successful and redirect statuses are never retried.
func retryable(route *registry.Route, status int) bool {
	return status >= 400 && route.Retry.Retryable(status)
}

// admit applies the route's rate limit before an attempt.
func (g *Gateway) admit(ctx context.Context, route *registry.Route) *Error {
	w := route.Window()
	if w == nil {
		return nil
	}

	if route.RateLimit.Reject {
		if w.Allow() {
			return nil
		}
		g.collector.ObserveRateLimited(route.Name)
		return newError(KindRateLimited, "rate limit of %d per %s exhausted", w.Max(), w.Length())
	}

	waitCtx, cancel := context.WithTimeout(ctx, route.Timeout)
	defer cancel()
	if err := w.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return newError(KindTimeout, "context ended while waiting for a rate limit slot: %v", ctx.Err())
		}
		g.collector.ObserveRateLimited(route.Name)
		return newError(KindRateLimited, "no rate limit slot within %s", route.Timeout)
	}
	return nil
}

// attempt performs one outbound call bounded by the route timeout.
//
// A non-nil terminal error ends the sequence (Timeout). A non-nil err is a
// retryable network failure.
func (g *Gateway) attempt(ctx context.Context, log zerolog.Logger, route *registry.Route, req *ActionRequest, out *outbound, n int) (*hordehttp.Response, *Error, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, route.Timeout)
	defer cancel()

	inflight := route.Inflight()
	if err := inflight.Acquire(attemptCtx); err != nil {
		return nil, timeoutError(ctx, route, n, "waiting for an in-flight slot"), nil
	}
	g.collector.InflightAdd(route.Name, 1)
	defer func() {
		inflight.Release()
		g.collector.InflightAdd(route.Name, -1)
	}()

	call := hordehttp.NewRequest(out.method, out.url)
	call.Header = out.header
	if out.body != nil {
		call.WithBody(out.body)
	}

	start := time.Now()
	resp, err := g.client.Do(attemptCtx, call)
	record := Attempt{
		Route:     route.Name,
		TraceID:   tracing.TraceID(ctx),
		SessionID: tracing.SessionID(ctx),
		Method:    req.Method,
		Path:      req.Path,
		Number:    n,
		Latency:   time.Since(start),
		Err:       err,
	}
	if resp != nil {
		record.Status = resp.StatusCode
		record.Bytes = int64(len(resp.Body))
		record.Timing = resp.Timing
	}
	g.emit(log, record)

	if err != nil {
		if ctx.Err() != nil || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(ctx, route, n, "waiting for a response"), nil
		}
		return nil, nil, err
	}
	return resp, nil, nil
}

func timeoutError(ctx context.Context, route *registry.Route, attempt int, while string) *Error {
	if err := ctx.Err(); err != nil {
		return newError(KindTimeout, "attempt %d: caller context ended %s: %v", attempt, while, err)
	}
	return newError(KindTimeout, "attempt %d: route timeout of %s elapsed %s", attempt, route.Timeout, while)
}

// outboundHeader builds the headers of every attempt. The caller's map is
// copied, so auth injection never leaks back into the request.
func outboundHeader(req *ActionRequest, route *registry.Route, traceID string) http.Header {
	h := make(http.Header, len(req.Headers)+2)
	for k, v := range req.Headers {
		h.Set(k, v)
	}
	route.Auth.Apply(h)
	h.Set(tracing.Header, traceID)
	return h
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
