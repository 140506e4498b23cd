// Package tracing carries trace and session identifiers across the gateway
// and session boundaries and binds them to structured loggers.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header is the HTTP header that carries the trace ID on every hop.
const Header = "X-Trace-ID"

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	sessionIDKey contextKey = "session_id"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewSessionID generates a new session ID
func NewSessionID() string {
	return "ses_" + uuid.New().String()[:8]
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// TraceID retrieves the trace ID from the context
func TraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// SessionID retrieves the session ID from the context
func SessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// EnsureTraceID returns id unchanged when set, otherwise the trace ID carried
// by ctx, otherwise a freshly generated one.
func EnsureTraceID(ctx context.Context, id string) string {
	if id != "" {
		return id
	}
	if fromCtx := TraceID(ctx); fromCtx != "" {
		return fromCtx
	}
	return NewTraceID()
}

// Logger adds the tracing fields found in ctx to a zerolog logger.
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if traceID := TraceID(ctx); traceID != "" {
		logger = logger.With().Str("trace_id", traceID).Logger()
	}
	if sessionID := SessionID(ctx); sessionID != "" {
		logger = logger.With().Str("session_id", sessionID).Logger()
	}
	return logger
}
