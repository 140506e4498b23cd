// Package cli implements the horde command line.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/horde/internal/output"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// tests can execute commands independently.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "horde",
		Short:   "Agent-driven load testing through a mediating gateway",
		Version: version,
		Long: `Horde runs a population of goal-directed sessions against a system under
test. Each session asks a decision oracle (an LLM or a fixed script) for its
next action and executes it through a gateway that validates, routes,
rate-limits, authenticates, retries and traces every call.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "Log format (console or json)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newRoutesCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// commandLogger builds the logger selected by the persistent flags. Logs go
// to the command's stderr so reports on stdout stay machine-readable.
func commandLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return newLogger(cmd.ErrOrStderr(), level, format)
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}

	out := w
	switch format {
	case "json":
	case "console", "":
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !output.UseColors(w, false),
		}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want console or json)", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
