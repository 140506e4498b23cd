package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds the JSON object in a model reply. It accepts a bare
// object, an object inside a markdown code fence, or an object surrounded
// by prose (first '{' to last '}').
func extractJSON(reply string) (string, error) {
	reply = stripCodeFence(reply)

	if json.Valid([]byte(reply)) {
		return reply, nil
	}

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start != -1 && end > start {
		candidate := reply[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in reply: %q", preview)
}

func stripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}

// ParseDecision reads a model reply of the form
// {"done": bool, "action": {...}, "reason": "..."}.
//
// The action itself is returned raw; conformance is the executor's job.
func ParseDecision(reply string) (*Decision, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("reply is not a decision object: %w", err)
	}
	if d.Done {
		d.Action = nil
		return &d, nil
	}
	if len(d.Action) == 0 || string(d.Action) == "null" {
		return nil, fmt.Errorf("reply has neither done nor an action")
	}
	return &d, nil
}
