// Package executor translates oracle decisions into gateway requests and
// gateway results back into session context.
//
// It is the conformance boundary of the agent loop: nothing reaches the
// gateway unless it matches the decision schema.
package executor

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/horde/internal/gateway"
)

// KindDecision tags observations produced by a failed decision.
const KindDecision = "DecisionError"

// DecisionError reports an oracle decision that could not be turned into a
// valid action.
type DecisionError struct {
	Reason string
	// Raw is the offending decision, possibly truncated.
	Raw string
	Err error
}

func (e *DecisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision error: %s: %v", e.Reason, e.Err)
	}
	return "decision error: " + e.Reason
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

// Observation is what a session learns from one step.
type Observation struct {
	Status   int           `json:"status"`
	OK       bool          `json:"ok"`
	Kind     string        `json:"error_kind,omitempty"`
	Message  string        `json:"error,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Latency  time.Duration `json:"-"`
	Bytes    int64         `json:"-"`
	TraceID  string        `json:"trace_id,omitempty"`

	// Body is a preview of the response body, cut at MaxBodyPreview bytes.
	Body string `json:"body,omitempty"`

	// Extracted holds the variables captured from the response.
	Extracted map[string]string `json:"extracted,omitempty"`
}

// Entry is one append-only record of a session's context. Action is nil
// when the step failed at the decision stage.
type Entry struct {
	Step        int                    `json:"step"`
	Action      *gateway.ActionRequest `json:"action,omitempty"`
	Observation Observation            `json:"observation"`
	At          time.Time              `json:"at"`
}

// Failed reports whether the entry counts as a failed step.
func (e Entry) Failed() bool {
	return !e.Observation.OK
}
