// Package oracle decides a session's next action.
//
// The session treats an Oracle as an opaque function from context to
// decision. Script is the deterministic implementation used in tests and
// scripted runs; LLM asks a language model through a Completer.
package oracle

import (
	"context"
	"encoding/json"

	"github.com/wesleyorama2/horde/internal/executor"
)

// Route is the part of a route definition an oracle may see.
type Route struct {
	Name      string   `json:"name"`
	Endpoints []string `json:"endpoints,omitempty"`
}

// Input is everything an oracle gets to decide on.
type Input struct {
	SessionID string
	Goal      string
	// History is the session context so far, oldest first. It must not be
	// modified.
	History   []executor.Entry
	Variables map[string]string
	Routes    []Route
}

// Decision is either Done or a raw action for the executor to validate.
type Decision struct {
	Done   bool            `json:"done"`
	Action json.RawMessage `json:"action,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Oracle returns exactly one decision per call. An error is treated by the
// session as a failed decision, not as a fatal condition.
type Oracle interface {
	Decide(ctx context.Context, in *Input) (*Decision, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, in *Input) (*Decision, error)

// Decide implements Oracle.
func (f Func) Decide(ctx context.Context, in *Input) (*Decision, error) {
	return f(ctx, in)
}
