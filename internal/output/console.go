// Package output renders run reports for the console and as JSON or YAML.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/horde/internal/metrics"
	"github.com/wesleyorama2/horde/internal/orchestrator"
	"github.com/wesleyorama2/horde/internal/session"
)

const ruleWidth = 56

// Console prints progress lines and the final summary of a run.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	scheme *ColorScheme
}

// NewConsole creates a console writer. Colors are used only when w is a
// terminal that supports them and noColor is false.
func NewConsole(w io.Writer, noColor bool) *Console {
	scheme := DefaultColorScheme()
	if !UseColors(w, noColor) {
		scheme = NoColorScheme()
	}
	return &Console{w: w, scheme: scheme}
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(name string, sessions, concurrency int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	budget := fmt.Sprintf("%d sessions", sessions)
	if sessions <= 0 {
		budget = "sessions until " + formatDuration(duration)
	} else if duration > 0 {
		budget += " within " + formatDuration(duration)
	}

	c.rule()
	c.writeln(c.scheme.Title.Sprintf("%s - Running", name))
	c.writeln(c.scheme.Dim.Sprintf("%s, %d at a time", budget, concurrency))
	c.rule()
	c.writeln("")
}

// PrintProgress prints a one-line status update.
func (c *Console) PrintProgress(r *orchestrator.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reqs, failed int64
	var p95 time.Duration
	if r.Latency != nil {
		reqs, failed, p95 = r.Latency.TotalRequests, r.Latency.FailedRequests, r.Latency.Latency.P95
	}
	c.writeln(fmt.Sprintf("[%s] Sessions: %d active, %d done | Completed: %d | Steps: %s (%d failed) | P95: %s",
		formatDuration(r.Duration),
		r.Active,
		r.Finished,
		r.States[session.Completed.String()],
		formatNumber(reqs),
		failed,
		formatDurationShort(p95)))
}

// PrintReport prints the final summary.
func (c *Console) PrintReport(r *orchestrator.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scheme
	completed := r.States[session.Completed.String()]
	status, statusColor := "Completed ✓", s.Good
	if completed < r.Finished {
		status, statusColor = "Finished with failures ✗", s.Bad
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", s.Title.Sprint(r.Name), statusColor.Sprint(status)))
	c.rule()
	c.writeln("")

	c.field("Duration", s.Value.Sprint(formatDuration(r.Duration)))
	c.field("Sessions", s.Value.Sprintf("%d started, %d finished", r.Started, r.Finished))
	rate := r.CompletionRate()
	c.field("Completion", s.rate(rate, 0.99, 0.9).Sprintf("%.1f%%", rate*100))
	c.field("Steps", s.Value.Sprintf("%s (avg %.1f per session, %d decisions)", formatNumber(int64(r.Steps)), r.AvgSteps(), r.Decisions))
	if r.Latency != nil && r.Latency.TotalRequests > 0 {
		success := 1 - r.Latency.ErrorRate
		c.field("Step success", s.rate(success, 0.99, 0.95).Sprintf("%.1f%%", success*100))
		c.field("Throughput", s.Value.Sprintf("%.1f steps/s", r.Latency.RPS))
	}
	c.writeln("")

	c.section("Outcomes", countRows([]string{
		session.Completed.String(), session.Failed.String(), session.TimedOut.String(),
	}, r.States), func(k string) *color.Color {
		switch k {
		case session.Completed.String():
			return s.Good
		case session.Failed.String():
			return s.Bad
		default:
			return s.Warn
		}
	})

	c.section("End reasons", countRows(sortedKeys(r.Reasons), r.Reasons), nil)

	if len(r.Failures) > 0 {
		c.section("Failure kinds", countRows(r.FailureKinds(), r.Failures), func(string) *color.Color { return s.Bad })
	}

	if r.Latency != nil && r.Latency.Latency.Count > 0 {
		c.printLatency(r.Latency)
	}
}

func (c *Console) printLatency(snap *metrics.Snapshot) {
	s := c.scheme
	l := snap.Latency
	c.writeln(s.Title.Sprint("Latency Distribution:"))
	c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(l.Min)))
	c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(l.P50)))
	c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(l.P90)))
	c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(l.P95)))
	c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(l.P99)))
	c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(l.Max)))
	c.writeln("")

	if len(snap.Routes) == 0 {
		return
	}
	c.writeln(s.Title.Sprint("Routes:"))
	c.writeln(s.Dim.Sprintf("  %-16s %8s %9s %9s %9s", "ROUTE", "STEPS", "P50", "P95", "P99"))
	for _, rs := range snap.Routes {
		c.writeln(fmt.Sprintf("  %-16s %8s %9s %9s %9s",
			s.Highlight.Sprint(padRight(rs.Route, 16)),
			formatNumber(rs.Latency.Count),
			formatDurationShort(rs.Latency.P50),
			formatDurationShort(rs.Latency.P95),
			formatDurationShort(rs.Latency.P99)))
	}
	c.writeln("")
}

type countRow struct {
	key   string
	count int
}

func countRows(keys []string, counts map[string]int) []countRow {
	rows := make([]countRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, countRow{k, counts[k]})
	}
	return rows
}

func (c *Console) section(title string, rows []countRow, colorFor func(string) *color.Color) {
	if len(rows) == 0 {
		return
	}
	c.writeln(c.scheme.Title.Sprint(title + ":"))
	for _, row := range rows {
		value := c.scheme.Value
		if colorFor != nil && row.count > 0 {
			value = colorFor(row.key)
		}
		c.writeln(fmt.Sprintf("  %-22s %s", row.key, value.Sprint(row.count)))
	}
	c.writeln("")
}

func (c *Console) field(label, value string) {
	c.writeln(fmt.Sprintf("%-15s %s", label+":", value))
}

func (c *Console) rule() {
	c.writeln(c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth)))
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.w, s)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// padRight pads before coloring so ANSI codes do not break alignment.
func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
