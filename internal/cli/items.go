package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// NewItemsCommand creates the items command.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Sync line items for orders missing them",
		Long: `Fetch line items for every synced order that has none yet.

The backlog is keyset-paged over order ids, so interrupted runs resume
where they left off. An order leaves the backlog only after all of its
item pages landed in the sink.

Example:
  spapi-sync items`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItems(cmd, rootOpts)
		},
	}

	return cmd
}

func runItems(cmd *cobra.Command, opts *RootOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eng, err := buildEngine(ctx, cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}
	defer eng.Close()

	proc := func(ctx context.Context, item sync.Item) (int, error) {
		pager := eng.api.GetOrderItems(item.ID)
		written := 0
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return written, err
			}
			n, err := eng.store.UpsertOrderItems(ctx, item.ID, page.Records)
			written += n
			if err != nil {
				return written, err
			}
		}
		if err := eng.store.MarkOrderItemsSynced(ctx, item.ID); err != nil {
			return written, err
		}
		return written, nil
	}

	run, err := eng.runJob(ctx, "order-items", eng.store.ItemsBacklog(), proc, 0)
	return finishRun(cmd, opts.Format, run, err)
}
