package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// FinancesOptions holds flags for the finances command.
type FinancesOptions struct {
	*RootOptions
	Since time.Duration
}

// NewFinancesCommand creates the finances command.
func NewFinancesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FinancesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "finances",
		Short: "Sync financial events posted inside the window",
		Long: `Sync shipment charges, fees, refunds, and service fees posted inside
the trailing window.

Events flatten into one sink row per money component keyed by their
natural identity, so replaying an overlapping window converges.

Example:
  spapi-sync finances --since 72h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFinances(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Since, "since", 24*time.Hour, "trailing window of event posted time")

	return cmd
}

func runFinances(cmd *cobra.Command, opts *FinancesOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eng, err := buildEngine(ctx, cmd, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}
	defer eng.Close()

	postedAfter := time.Now().Add(-opts.Since)
	proc := func(ctx context.Context, item sync.Item) (int, error) {
		pager := eng.api.ListFinancialEvents(postedAfter)
		written := 0
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return written, err
			}
			n, err := eng.store.UpsertFinancialEvents(ctx, page.Records)
			written += n
			if err != nil {
				return written, err
			}
		}
		return written, nil
	}

	window := postedAfter.UTC().Format(time.RFC3339)
	run, err := eng.runJob(ctx, "finances", windowBacklog(window), proc, 1)
	return finishRun(cmd, opts.Format, run, err)
}
