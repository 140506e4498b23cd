package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/pkg/jsonschema"
)

// DecisionSchema is the shape an oracle action must have. Method matching is
// case-insensitive; everything else is strict.
const DecisionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["api_name", "method", "path"],
  "additionalProperties": false,
  "properties": {
    "api_name": {"type": "string", "minLength": 1},
    "method": {"type": "string", "pattern": "^(?i:get|post|put|delete|patch|head|options)$"},
    "path": {"type": "string", "pattern": "^/"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "query": {"type": "object", "additionalProperties": {"type": ["string", "number", "boolean"]}},
    "data": {}
  }
}`

var decisionSchema = jsonschema.MustCompile("decision-action.json", DecisionSchema)

// MaxBodyPreview bounds how much of a response body is kept in context.
const MaxBodyPreview = 2048

// Executor is stateless apart from its extraction rules and is safe for
// concurrent use.
type Executor struct {
	rules []Rule
}

// New creates an executor. Configured extraction rules are applied before
// the default ones and win on name clashes.
func New(extract []config.ExtractConfig) *Executor {
	rules := make([]Rule, 0, len(extract)+len(DefaultRules))
	for _, ec := range extract {
		rules = append(rules, Rule{Name: ec.Name, Source: ec.Source, Path: ec.Path})
	}
	rules = append(rules, DefaultRules...)
	return &Executor{rules: rules}
}

// Rules returns the effective extraction rules in evaluation order.
func (e *Executor) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

type wireAction struct {
	APIName string                 `json:"api_name"`
	Method  string                 `json:"method"`
	Path    string                 `json:"path"`
	Headers map[string]string      `json:"headers"`
	Query   map[string]interface{} `json:"query"`
	Data    interface{}            `json:"data"`
}

// ToAction validates a raw oracle action, substitutes {{var}} placeholders
// from vars and stamps traceID. Every failure is a *DecisionError.
func (e *Executor) ToAction(raw json.RawMessage, vars map[string]string, traceID string) (*gateway.ActionRequest, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &DecisionError{Reason: "decision carries no action"}
	}

	if errs := decisionSchema.ValidateBytes(raw); len(errs) > 0 {
		return nil, &DecisionError{Reason: "action does not match schema", Raw: preview(raw), Err: errs}
	}

	var a wireAction
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return nil, &DecisionError{Reason: "action could not be decoded", Raw: preview(raw), Err: err}
	}

	req := &gateway.ActionRequest{
		APIName: a.APIName,
		Method:  strings.ToUpper(a.Method),
		Path:    Substitute(a.Path, vars),
		Data:    substituteValue(a.Data, vars),
		TraceID: traceID,
	}
	if len(a.Headers) > 0 {
		req.Headers = make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			req.Headers[k] = Substitute(v, vars)
		}
	}
	if len(a.Query) > 0 {
		req.Query = make(map[string]string, len(a.Query))
		for k, v := range a.Query {
			req.Query[k] = Substitute(fmt.Sprint(v), vars)
		}
	}

	if verr := gateway.Validate(req); verr != nil {
		return nil, &DecisionError{Reason: "action is not a valid request", Raw: preview(raw), Err: verr}
	}
	return req, nil
}

// FromResult summarizes a gateway result for the session context.
// Variables are only extracted from successful responses.
func (e *Executor) FromResult(res *gateway.Result) Observation {
	obs := Observation{
		Status:   res.StatusCode,
		OK:       res.OK(),
		Attempts: res.Attempts,
		Latency:  res.ExecutionTime,
		TraceID:  res.TraceID,
	}
	if res.Error != nil {
		obs.Kind = string(res.Error.Kind)
		obs.Message = res.Error.Message
	}

	body := bodyBytes(res.Body)
	obs.Body = preview(body)
	obs.Bytes = res.BodySize
	if obs.Bytes == 0 {
		obs.Bytes = int64(len(body))
	}
	if obs.OK {
		obs.Extracted = e.extract(res, body)
	}
	return obs
}

// DecisionObservation records a failed decision in context.
func DecisionObservation(err error) Observation {
	return Observation{Kind: KindDecision, Message: err.Error()}
}

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Substitute replaces {{name}} placeholders with values from vars in a single
// pass, so substituted values are never expanded again. Unknown placeholders
// are left as they are.
func Substitute(input string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(input, "{{") {
		return input
	}
	return placeholder.ReplaceAllStringFunc(input, func(m string) string {
		if v, ok := vars[m[2:len(m)-2]]; ok {
			return v
		}
		return m
	})
}

func substituteValue(v interface{}, vars map[string]string) interface{} {
	switch t := v.(type) {
	case string:
		return Substitute(t, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = substituteValue(val, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = substituteValue(val, vars)
		}
		return out
	default:
		return v
	}
}

func bodyBytes(body interface{}) []byte {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		return []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return []byte(fmt.Sprint(b))
		}
		return data
	}
}

func preview(data []byte) string {
	if len(data) <= MaxBodyPreview {
		return string(data)
	}
	return strings.ToValidUTF8(string(data[:MaxBodyPreview]), "") + "...(truncated)"
}
