package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/tracing"
)

// Completer sends one system + user prompt pair to a language model and
// returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// SystemPrompt instructs the model to act as one user of the target system.
const SystemPrompt = `You are simulating one user of a web application in order to load test it.
You pursue a goal by calling the application's HTTP API one request at a time.
After each request you see the outcome and decide the next request.

Reply with a single JSON object and nothing else:
  {"done": false, "action": {"api_name": "<route>", "method": "GET|POST|PUT|DELETE|PATCH", "path": "/...", "headers": {}, "query": {}, "data": {}}, "reason": "<short>"}
or, once the goal is achieved:
  {"done": true, "reason": "<short>"}

Only use routes listed below. Paths must start with "/". You may write {{name}} in path, headers,
query or data to insert a captured variable. When a request fails you may retry it or take another path.`

// MaxHistoryInPrompt bounds how many recent context entries are sent.
const MaxHistoryInPrompt = 20

// LLM decides through a language model.
type LLM struct {
	completer Completer
	logger    zerolog.Logger
}

// LLMOption configures an LLM oracle.
type LLMOption func(*LLM)

// WithLLMLogger sets the logger for prompts and replies.
func WithLLMLogger(logger zerolog.Logger) LLMOption {
	return func(o *LLM) {
		o.logger = logger
	}
}

// NewLLM creates an LLM oracle on top of a completer.
func NewLLM(c Completer, opts ...LLMOption) *LLM {
	o := &LLM{completer: c, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Decide implements Oracle.
func (o *LLM) Decide(ctx context.Context, in *Input) (*Decision, error) {
	log := tracing.Logger(ctx, o.logger)
	prompt := BuildPrompt(in)

	reply, err := o.completer.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("oracle completion failed: %w", err)
	}
	log.Trace().Str("prompt", prompt).Str("reply", reply).Msg("oracle exchange")

	d, err := ParseDecision(reply)
	if err != nil {
		log.Debug().Err(err).Msg("oracle reply rejected")
		return nil, err
	}
	return d, nil
}

// BuildPrompt renders the user prompt for one decision.
func BuildPrompt(in *Input) string {
	var sb strings.Builder

	sb.WriteString("Goal: ")
	sb.WriteString(in.Goal)
	sb.WriteString("\n\nRoutes:\n")
	if len(in.Routes) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, r := range in.Routes {
		sb.WriteString("  - ")
		sb.WriteString(r.Name)
		if len(r.Endpoints) > 0 {
			sb.WriteString(": ")
			sb.WriteString(strings.Join(r.Endpoints, ", "))
		} else {
			sb.WriteString(": any path")
		}
		sb.WriteString("\n")
	}

	if len(in.Variables) > 0 {
		sb.WriteString("\nCaptured variables:\n")
		names := make([]string, 0, len(in.Variables))
		for name := range in.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  %s = %s\n", name, in.Variables[name])
		}
	}

	sb.WriteString("\nHistory:\n")
	history := in.History
	if len(history) > MaxHistoryInPrompt {
		fmt.Fprintf(&sb, "  (%d earlier steps omitted)\n", len(history)-MaxHistoryInPrompt)
		history = history[len(history)-MaxHistoryInPrompt:]
	}
	if len(history) == 0 {
		sb.WriteString("  (no steps yet)\n")
	}
	for _, e := range history {
		writeEntry(&sb, e)
	}

	sb.WriteString("\nDecide the next step.")
	return sb.String()
}

func writeEntry(sb *strings.Builder, e executor.Entry) {
	fmt.Fprintf(sb, "  %d. ", e.Step)
	if e.Action == nil {
		sb.WriteString("(invalid decision)")
	} else {
		fmt.Fprintf(sb, "%s %s %s", e.Action.APIName, e.Action.Method, e.Action.Path)
		if e.Action.Data != nil {
			if data, err := json.Marshal(e.Action.Data); err == nil {
				fmt.Fprintf(sb, " data=%s", data)
			}
		}
	}

	obs := e.Observation
	sb.WriteString(" -> ")
	switch {
	case obs.Kind != "":
		fmt.Fprintf(sb, "%s: %s", obs.Kind, obs.Message)
		if obs.Status > 0 {
			fmt.Fprintf(sb, " (status %d)", obs.Status)
		}
	default:
		fmt.Fprintf(sb, "status %d", obs.Status)
	}
	if obs.Body != "" {
		body := obs.Body
		if len(body) > 500 {
			body = strings.ToValidUTF8(body[:500], "") + "..."
		}
		fmt.Fprintf(sb, " body=%s", body)
	}
	sb.WriteString("\n")
}
