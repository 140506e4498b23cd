package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the report
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Good      *color.Color
	Warn      *color.Color
	Bad       *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Good:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Bad:       color.New(color.FgRed),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Label, s.Value, s.Good, s.Warn, s.Bad, s.Dim, s.Highlight}
}

// rate picks good, warn or bad for a share where higher is better.
func (s *ColorScheme) rate(v, warnBelow, badBelow float64) *color.Color {
	switch {
	case v < badBelow:
		return s.Bad
	case v < warnBelow:
		return s.Warn
	default:
		return s.Good
	}
}
