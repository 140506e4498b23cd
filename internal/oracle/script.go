package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wesleyorama2/horde/internal/config"
)

// Step is one scripted decision.
type Step struct {
	Action json.RawMessage
	Err    error
	Done   bool
}

// Act scripts a well-formed action.
func Act(apiName, method, path string, data interface{}) Step {
	action := map[string]interface{}{
		"api_name": apiName,
		"method":   method,
		"path":     path,
	}
	if data != nil {
		action["data"] = data
	}
	raw, err := json.Marshal(action)
	if err != nil {
		return Fail(err)
	}
	return Step{Action: raw}
}

// Raw scripts an action verbatim, malformed or not.
func Raw(action string) Step {
	return Step{Action: json.RawMessage(action)}
}

// Fail scripts an oracle error.
func Fail(err error) Step {
	return Step{Err: err}
}

// Finish scripts the goal-satisfied signal.
func Finish() Step {
	return Step{Done: true}
}

// Script replays a fixed sequence of decisions and then signals Done.
//
// It keeps no state of its own: the step to replay is the number of entries
// already in the session history, failed decisions included. One Script can
// therefore serve any number of sessions concurrently.
type Script struct {
	steps []Step
}

// NewScript creates a script oracle.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// ScriptFromConfig builds a script from run file steps.
func ScriptFromConfig(steps []config.ScriptStep) (*Script, error) {
	out := make([]Step, 0, len(steps))
	for i, s := range steps {
		action := map[string]interface{}{
			"api_name": s.APIName,
			"method":   strings.ToUpper(s.Method),
			"path":     s.Path,
		}
		if len(s.Headers) > 0 {
			action["headers"] = s.Headers
		}
		if len(s.Query) > 0 {
			action["query"] = s.Query
		}
		if len(s.Data) > 0 {
			action["data"] = s.Data
		}
		raw, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("script step %d: %w", i, err)
		}
		out = append(out, Step{Action: raw})
	}
	return NewScript(out...), nil
}

// Len returns the number of scripted steps.
func (s *Script) Len() int {
	return len(s.steps)
}

// Decide implements Oracle.
func (s *Script) Decide(ctx context.Context, in *Input) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i := len(in.History)
	if i >= len(s.steps) {
		return &Decision{Done: true, Reason: "script finished"}, nil
	}

	step := s.steps[i]
	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.Done:
		return &Decision{Done: true, Reason: "script finished"}, nil
	default:
		return &Decision{Action: step.Action}, nil
	}
}
