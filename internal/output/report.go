package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/horde/internal/orchestrator"
)

// Format represents the available report formats
type Format string

const (
	// FormatText is the human-readable console summary
	FormatText Format = "text"
	// FormatJSON outputs the full report, outcomes included, as JSON
	FormatJSON Format = "json"
	// FormatYAML outputs the same document as YAML
	FormatYAML Format = "yaml"
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// WriteReport renders r to w in the given format.
func WriteReport(w io.Writer, r *orchestrator.Report, format Format, noColor bool) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	default:
		NewConsole(w, noColor).PrintReport(r)
		return nil
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *orchestrator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteYAML writes the report as YAML. The document goes through its JSON
// form first so both formats share field names.
func WriteYAML(w io.Writer, r *orchestrator.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
