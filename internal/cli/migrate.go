package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/logging"
	"github.com/FridaySalami/spapi-sync/pkg/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	DatabaseURL string
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the sink schema",
		Long: `Apply the sink schema to the configured Postgres database.

Only the database URL is needed; partner API credentials are not
read. The statements are idempotent, so rerunning is safe.

Example:
  spapi-sync migrate --database-url postgres://spapi@localhost:5432/spapi`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres DSN; empty uses DATABASE_URL")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("load env file %s", opts.EnvFile), err)
		}
	} else {
		_ = godotenv.Load()
	}

	dsn := opts.DatabaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return NewExitError(ExitCommandError, "database url is required (--database-url or DATABASE_URL)")
	}

	level := opts.LogLevel
	if level == "" {
		level = "info"
	}
	logging.Setup(logging.Config{Level: logging.LogLevel(level), Pretty: opts.LogPretty})

	st, err := store.New(ctx, store.Config{DatabaseURL: dsn})
	if err != nil {
		return WrapExitError(ExitCommandError, "connect database", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return WrapExitError(ExitCommandError, "apply schema", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Schema ready.")
	return nil
}
