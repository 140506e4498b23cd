package session

import (
	"time"

	"github.com/wesleyorama2/horde/internal/executor"
)

// Outcome is the terminal report of a session, kept for audit.
type Outcome struct {
	SessionID string `json:"session_id"`
	Goal      string `json:"goal"`
	TraceID   string `json:"trace_id"`
	State     State  `json:"state"`
	Reason    string `json:"reason"`

	// Steps is the number of executed actions; Decisions counts every oracle
	// call including rejected ones.
	Steps               int `json:"steps"`
	Decisions           int `json:"decisions"`
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Failures tallies failed steps by kind.
	Failures map[string]int `json:"failures,omitempty"`

	Context   []executor.Entry  `json:"context"`
	Variables map[string]string `json:"variables,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (s *Session) outcome(reason string) *Outcome {
	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}

	return &Outcome{
		SessionID:           s.ID,
		Goal:                s.Goal,
		TraceID:             s.TraceID,
		State:               s.State(),
		Reason:              reason,
		Steps:               s.stepCount,
		Decisions:           s.decisions,
		ConsecutiveFailures: s.consecutiveFailures,
		Failures:            failures,
		Context:             s.Context(),
		Variables:           s.vars(),
		StartedAt:           s.startedAt,
		Duration:            time.Since(s.startedAt),
	}
}
