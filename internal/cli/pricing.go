package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// PricingOptions holds flags for the pricing command.
type PricingOptions struct {
	*RootOptions
	StaleAfter time.Duration
}

// NewPricingCommand creates the pricing command.
func NewPricingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PricingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Refresh competitive pricing for stale ASINs",
		Long: `Refresh competitive pricing for every synced ASIN whose snapshot is
older than the staleness window.

The backlog groups ASINs into request batches, so one work item costs
one pricing call.

Example:
  spapi-sync pricing --stale-after 6h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPricing(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", 24*time.Hour, "refresh snapshots older than this")

	return cmd
}

func runPricing(cmd *cobra.Command, opts *PricingOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eng, err := buildEngine(ctx, cmd, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}
	defer eng.Close()

	proc := func(ctx context.Context, item sync.Item) (int, error) {
		results, err := eng.api.GetCompetitivePricing(ctx, item.Keys)
		if err != nil {
			return 0, err
		}
		return eng.store.UpsertPricing(ctx, results)
	}

	run, err := eng.runJob(ctx, "pricing", eng.store.PricingBacklog(opts.StaleAfter), proc, 0)
	return finishRun(cmd, opts.Format, run, err)
}
