package registry

import (
	"strings"
)

// Endpoint is a compiled allowed-path pattern such as /products/{id} or
// /cart/*.
type Endpoint struct {
	Pattern  string
	segments []string
	wildcard bool
}

// ParseEndpoint compiles a pattern. Patterns are validated at config load.
func ParseEndpoint(pattern string) *Endpoint {
	ep := &Endpoint{Pattern: pattern}

	p := strings.TrimSuffix(pattern, "*")
	if p != pattern {
		ep.wildcard = true
	}
	p = strings.Trim(p, "/")
	if p != "" {
		ep.segments = strings.Split(p, "/")
	}
	return ep
}

// Match reports whether path (without query) satisfies the pattern.
//
// {name} matches exactly one non-empty segment. A trailing * matches any
// remainder, including nothing: /cart/* matches /cart and /cart/a/b.
func (e *Endpoint) Match(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	trimmed := strings.Trim(path, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	if len(parts) < len(e.segments) {
		return false
	}
	if !e.wildcard && len(parts) != len(e.segments) {
		return false
	}

	for i, seg := range e.segments {
		if isParam(seg) {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}

func isParam(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}
