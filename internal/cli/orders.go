package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// OrdersOptions holds flags for the orders command.
type OrdersOptions struct {
	*RootOptions
	Since time.Duration
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrdersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Sync recently created orders",
		Long: `Sync orders created inside the trailing window into the sink.

The job walks the order pages oldest first and upserts each page on its
natural key, so rerunning the same window converges instead of
duplicating rows. Newly seen orders enter the order-items backlog.

Example:
  spapi-sync orders --since 48h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrders(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Since, "since", 24*time.Hour, "trailing window of order creation time")

	return cmd
}

func runOrders(cmd *cobra.Command, opts *OrdersOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eng, err := buildEngine(ctx, cmd, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}
	defer eng.Close()

	createdAfter := time.Now().Add(-opts.Since)
	proc := func(ctx context.Context, item sync.Item) (int, error) {
		pager := eng.api.GetOrders(createdAfter)
		written := 0
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return written, err
			}
			n, err := eng.store.UpsertOrders(ctx, page.Records)
			written += n
			if err != nil {
				return written, err
			}
		}
		return written, nil
	}

	window := createdAfter.UTC().Format(time.RFC3339)
	run, err := eng.runJob(ctx, "orders", windowBacklog(window), proc, 1)
	return finishRun(cmd, opts.Format, run, err)
}
