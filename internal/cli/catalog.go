package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/spapi"
	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	StaleAfter time.Duration
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Refresh catalog details for stale ASINs",
		Long: `Refresh catalog summaries, product types, and sales ranks for every
synced ASIN whose record is older than the staleness window.

Catalog data moves slowly; the default window refreshes each ASIN
weekly.

Example:
  spapi-sync catalog --stale-after 336h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", 7*24*time.Hour, "refresh records older than this")

	return cmd
}

func runCatalog(cmd *cobra.Command, opts *CatalogOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	eng, err := buildEngine(ctx, cmd, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}
	defer eng.Close()

	proc := func(ctx context.Context, item sync.Item) (int, error) {
		detail, err := eng.api.GetCatalogItem(ctx, item.ID)
		if err != nil {
			return 0, err
		}
		return eng.store.UpsertCatalogItems(ctx, []spapi.CatalogItem{*detail})
	}

	run, err := eng.runJob(ctx, "catalog", eng.store.CatalogBacklog(opts.StaleAfter), proc, 0)
	return finishRun(cmd, opts.Format, run, err)
}
