// Package cli implements the spapi-sync command tree. Every sync
// subcommand follows the same arc: load configuration, build the
// signed rate-limited client stack and the Postgres sink, derive the
// job's backlog, drain it through the orchestrator, and print the run
// summary.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	EnvFile     string
	LogLevel    string
	LogPretty   bool
	MetricsAddr string
	Format      string // "text" | "json"
}

// ValidFormats defines the allowed summary output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the spapi-sync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "spapi-sync",
		Short: "Selling Partner API sync engine",
		Long: `spapi-sync drains Selling Partner API data into Postgres.

Each subcommand runs one sync job: it builds the signed, rate-limited
client stack, derives the job's work backlog, fans the items through a
bounded worker pool, and prints the run summary. Credentials and
tunables come from the environment (see --env-file).`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "env file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); empty uses LOG_LEVEL")
	cmd.PersistentFlags().BoolVar(&opts.LogPretty, "log-pretty", false, "human-readable console logs")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "run summary format (text|json)")

	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewPricingCommand(opts))
	cmd.AddCommand(NewFinancesCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// Execute runs the root command and reports the error once on stderr.
// Callers map the returned error to a process exit code with
// GetExitCode.
func Execute(version string) error {
	cmd := NewRootCommand()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// signalContext derives a context cancelled by SIGINT or SIGTERM so an
// interrupted run still drains its in-flight items and prints the
// partial summary.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
