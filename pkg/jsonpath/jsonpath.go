// Package jsonpath resolves a practical subset of JSONPath ($.a.b[0].c)
// against JSON documents using gjson.
package jsonpath

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup resolves path against a raw JSON document.
//
// It returns the value as a string (objects and arrays keep their raw JSON
// form) and whether the path exists. A JSON null exists and yields "null".
func Lookup(data []byte, path string) (string, bool) {
	if len(data) == 0 || path == "" || !gjson.ValidBytes(data) {
		return "", false
	}

	result := gjson.GetBytes(data, ToGjson(path))
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.Null {
		return "null", true
	}
	return result.String(), true
}

// Extract extracts a value from a JSON string using a JSONPath expression
func Extract(json string, path string) (string, error) {
	if json == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	value, ok := Lookup([]byte(json), path)
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	return value, nil
}

// ExtractMultiple resolves several named paths at once. Values that resolve
// are returned even when others fail; the error lists every failure in name
// order.
func ExtractMultiple(json string, paths map[string]string) (map[string]string, error) {
	if json == "" {
		return nil, fmt.Errorf("empty JSON string")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no JSONPath expressions provided")
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(paths))
	var failures []string
	for _, name := range names {
		value, err := Extract(json, paths[name])
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		results[name] = value
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(failures, "; "))
	}
	return results, nil
}

// ToGjson converts a JSONPath expression to gjson path syntax.
//
//	$.users[0].name  -> users.0.name
//	$['user']["id"]  -> user.id
//	$                -> @this
//
// Paths without a leading $ are assumed to already be gjson paths.
func ToGjson(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return strings.TrimPrefix(sb.String(), ".")
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			sb.WriteByte('.')
			sb.WriteString(key)
			i += end
		default:
			sb.WriteByte(c)
		}
	}

	return strings.TrimPrefix(sb.String(), ".")
}
