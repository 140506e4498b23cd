package executor

import (
	"strconv"
	"strings"

	"github.com/wesleyorama2/horde/internal/config"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/pkg/jsonpath"
)

// Rule captures one session variable from a response.
type Rule struct {
	Name   string
	Source string
	Path   string
}

// DefaultRules pick up the identifiers most journeys need without any
// configuration.
var DefaultRules = []Rule{
	{Name: "token", Source: config.SourceBody, Path: "$.token"},
	{Name: "access_token", Source: config.SourceBody, Path: "$.access_token"},
	{Name: "id", Source: config.SourceBody, Path: "$.id"},
}

// extract applies the rules in order; the first rule to capture a name wins.
func (e *Executor) extract(res *gateway.Result, body []byte) map[string]string {
	var out map[string]string
	for _, r := range e.rules {
		if _, taken := out[r.Name]; taken {
			continue
		}

		var value string
		switch r.Source {
		case config.SourceBody:
			v, ok := jsonpath.Lookup(body, r.Path)
			if !ok || v == "null" {
				continue
			}
			value = v
		case config.SourceHeader:
			value = lookupHeader(res.Headers, r.Path)
		case config.SourceStatus:
			value = strconv.Itoa(res.StatusCode)
		}

		if value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[r.Name] = value
	}
	return out
}

func lookupHeader(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
