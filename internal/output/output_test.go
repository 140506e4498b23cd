package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/horde/internal/executor"
	"github.com/wesleyorama2/horde/internal/gateway"
	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/orchestrator"
	"github.com/wesleyorama2/horde/internal/session"
)

func sampleReport() *orchestrator.Report {
	return &orchestrator.Report{
		Name:     "checkout",
		Duration: 90 * time.Second,
		Started:  4,
		Finished: 4,
		States:   map[string]int{"Completed": 3, "Failed": 1},
		Reasons:  map[string]int{session.ReasonGoalSatisfied: 3, session.ReasonConsecutiveFailures: 1},
		Failures: map[string]int{string(gateway.KindTimeout): 3, executor.KindDecision: 1},
		Steps:    14,
		Latency: &metrics.Snapshot{
			TotalRequests:   14,
			SuccessRequests: 11,
			FailedRequests:  3,
			ErrorRate:       3.0 / 14,
			RPS:             0.2,
			Latency:         metrics.LatencyStats{Min: time.Millisecond, P50: 12 * time.Millisecond, P95: 80 * time.Millisecond, Max: 2 * time.Second, Count: 14},
			Routes: []metrics.RouteStats{
				{Route: "shop", Latency: metrics.LatencyStats{P50: 12 * time.Millisecond, Count: 14}},
			},
		},
		Outcomes: []*session.Outcome{
			{SessionID: "s-1", Goal: "buy", TraceID: "t-1", State: session.Completed, Reason: session.ReasonGoalSatisfied, Steps: 3},
		},
	}
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, false).PrintReport(sampleReport())
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "a buffer is not a terminal")
	for _, want := range []string{
		"checkout - Finished with failures ✗",
		"Duration:       1m 30s",
		"Sessions:       4 started, 4 finished",
		"Completion:     75.0%",
		"Steps:          14 (avg 3.5 per session, 0 decisions)",
		"Completed              3",
		"TimedOut               0",
		"consecutive_failures   1",
		"Timeout                3",
		"DecisionError          1",
		"P95:       80ms",
		"Max:       2.00s",
		"shop",
	} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Timeout "), strings.Index(out, "DecisionError"), "failure kinds are ordered by count")
}

func TestConsole_AllCompleted(t *testing.T) {
	r := sampleReport()
	r.States = map[string]int{"Completed": 4}
	r.Failures = nil
	r.Latency = nil

	var buf bytes.Buffer
	NewConsole(&buf, true).PrintReport(r)
	assert.Contains(t, buf.String(), "checkout - Completed ✓")
	assert.NotContains(t, buf.String(), "Failure kinds")
	assert.NotContains(t, buf.String(), "Latency Distribution")
}

func TestConsole_PrintProgress(t *testing.T) {
	r := sampleReport()
	r.Active = 2

	var buf bytes.Buffer
	NewConsole(&buf, true).PrintProgress(r)
	assert.Equal(t, "[1m 30s] Sessions: 2 active, 4 done | Completed: 3 | Steps: 14 (3 failed) | P95: 80ms\n", buf.String())
}

func TestConsole_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)
	c.PrintHeader("soak", 0, 10, 5*time.Minute)
	assert.Contains(t, buf.String(), "soak - Running")
	assert.Contains(t, buf.String(), "sessions until 5m 00s, 10 at a time")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), FormatJSON, true))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "checkout", doc["name"])
	assert.Equal(t, float64(4), doc["started"])
	assert.Equal(t, map[string]interface{}{"Completed": float64(3), "Failed": float64(1)}, doc["states"])

	outcomes := doc["outcomes"].([]interface{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Completed", outcomes[0].(map[string]interface{})["state"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), FormatYAML, true))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "checkout", doc["name"])
	assert.Equal(t, 14, doc["steps"])
	assert.Contains(t, buf.String(), "goal_satisfied: 3")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDurationShort(tt.duration))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatNumber(tt.number))
		})
	}
}

func TestNoColorScheme(t *testing.T) {
	s := NoColorScheme()
	assert.Equal(t, "x", s.Bad.Sprint("x"))
	assert.Same(t, s.Good, s.rate(1, 0.99, 0.9))
	assert.Same(t, s.Warn, s.rate(0.95, 0.99, 0.9))
	assert.Same(t, s.Bad, s.rate(0.5, 0.99, 0.9))
}
