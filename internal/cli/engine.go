package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
	"github.com/FridaySalami/spapi-sync/pkg/cache"
	"github.com/FridaySalami/spapi-sync/pkg/client"
	"github.com/FridaySalami/spapi-sync/pkg/config"
	"github.com/FridaySalami/spapi-sync/pkg/logging"
	"github.com/FridaySalami/spapi-sync/pkg/ratelimit"
	"github.com/FridaySalami/spapi-sync/pkg/signing"
	"github.com/FridaySalami/spapi-sync/pkg/spapi"
	"github.com/FridaySalami/spapi-sync/pkg/store"
	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

// userAgent identifies this integration on every outbound request.
const userAgent = "spapi-sync/0.1.0 (Language=Go; github.com/FridaySalami/spapi-sync)"

// engine bundles the collaborators a sync job needs.
type engine struct {
	cfg         *config.Config
	api         *spapi.API
	store       *store.Store
	redisClient *redis.Client
	metricsSrv  *http.Server
	logger      zerolog.Logger
}

// buildEngine loads configuration, applies flag overrides, and wires
// the full stack: token manager, signer, limiter, optional response
// cache, client, API facade, and sink.
func buildEngine(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*engine, error) {
	cfg, err := config.LoadFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, opts, cfg)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	tokens, err := auth.NewManager(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
		TokenURL:     cfg.TokenURL,
		SafetyMargin: cfg.TokenSafetyMargin,
	}, logging.NewLogger("auth"))
	if err != nil {
		return nil, err
	}

	signer, err := signing.New(signing.Identity{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Region:          cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.Rates, logging.NewLogger("ratelimit"))
	if err != nil {
		return nil, err
	}

	eng := &engine{cfg: cfg, logger: logger}

	var responseCache *cache.Manager
	if cfg.RedisAddr != "" {
		eng.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := eng.redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			eng.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		responseCache = cache.NewManager(eng.redisClient)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Response cache enabled")
	}

	httpClient, err := client.New(client.Config{
		Endpoint:  cfg.Endpoint,
		UserAgent: userAgent,
		Tokens:    tokens,
		Signer:    signer,
		Limiter:   limiter,
		Cache:     responseCache,
		Retry: client.RetryConfig{
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.BackoffBase,
			BackoffCap:  cfg.BackoffCap,
		},
	})
	if err != nil {
		eng.Close()
		return nil, err
	}

	api, err := spapi.New(spapi.Config{
		Client:        httpClient,
		MarketplaceID: cfg.MarketplaceID,
		MaxPages:      cfg.MaxPages,
	})
	if err != nil {
		eng.Close()
		return nil, err
	}
	eng.api = api

	st, err := store.New(ctx, store.Config{
		DatabaseURL: cfg.DatabaseURL,
		BatchSize:   cfg.BatchSize,
	})
	if err != nil {
		eng.Close()
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		eng.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	eng.store = st

	if cfg.MetricsAddr != "" {
		eng.metricsSrv = startMetrics(cfg.MetricsAddr, logger)
	}

	return eng, nil
}

// applyFlags overlays explicitly set global flags onto the loaded
// configuration. Flags outrank the environment.
func applyFlags(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) {
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if cmd != nil && cmd.Root().PersistentFlags().Changed("log-pretty") {
		cfg.LogPretty = opts.LogPretty
	}
}

// Close releases the engine's collaborators in reverse build order.
func (e *engine) Close() {
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.metricsSrv.Shutdown(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("Metrics listener shutdown")
		}
		cancel()
	}
	if e.store != nil {
		e.store.Close()
	}
	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Redis close")
		}
	}
}

// runJob drains one backlog through the orchestrator. A concurrency of
// zero uses the configured default.
func (e *engine) runJob(ctx context.Context, job string, backlog sync.Backlog, proc sync.Processor, concurrency int) (*sync.Run, error) {
	if concurrency <= 0 {
		concurrency = e.cfg.Concurrency
	}

	orch, err := sync.New(sync.Config{
		Job:           job,
		Backlog:       backlog,
		Processor:     proc,
		Concurrency:   concurrency,
		PageSize:      e.cfg.BatchSize,
		ProgressEvery: e.cfg.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx)
}

// startMetrics serves /metrics on addr until the engine closes.
func startMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics listener failed")
		}
	}()

	logger.Info().Str("addr", addr).Msg("Metrics listener started")
	return srv
}

// windowBacklog feeds a single work item covering one time window, so
// windowed jobs share the orchestrator's summary and metrics path.
func windowBacklog(id string) sync.Backlog {
	return sync.BacklogFunc(func(ctx context.Context, after string, limit int) ([]sync.Item, string, error) {
		return []sync.Item{{ID: id}}, "", nil
	})
}

// runView is the JSON shape of a printed run summary.
type runView struct {
	ID        string   `json:"id"`
	Job       string   `json:"job"`
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Written   int      `json:"written"`
	Elapsed   string   `json:"elapsed"`
	Errors    []string `json:"errors,omitempty"`
}

// printRun writes the run summary in the requested format.
func printRun(w io.Writer, format string, run *sync.Run) error {
	if format == "json" {
		view := runView{
			ID:        run.ID,
			Job:       run.Job,
			Attempted: run.Attempted,
			Succeeded: run.Succeeded,
			Failed:    run.Failed,
			Written:   run.Written,
			Elapsed:   run.Elapsed.Round(time.Millisecond).String(),
		}
		for _, ie := range run.Errors {
			view.Errors = append(view.Errors, fmt.Sprintf("%s: %v", ie.ItemID, ie.Err))
		}
		return json.NewEncoder(w).Encode(view)
	}

	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Job)
	fmt.Fprintf(w, "  attempted: %d\n", run.Attempted)
	fmt.Fprintf(w, "  succeeded: %d\n", run.Succeeded)
	fmt.Fprintf(w, "  failed:    %d\n", run.Failed)
	fmt.Fprintf(w, "  written:   %d\n", run.Written)
	fmt.Fprintf(w, "  elapsed:   %s\n", run.Elapsed.Round(time.Millisecond))
	if len(run.Errors) > 0 {
		fmt.Fprintln(w, "  sampled failures:")
		for _, ie := range run.Errors {
			fmt.Fprintf(w, "    %s: %v\n", ie.ItemID, ie.Err)
		}
	}
	return nil
}

// finishRun prints the summary and maps the outcome to an exit error.
// A run that completed but left items failed exits nonzero so cron and
// CI surface it.
func finishRun(cmd *cobra.Command, format string, run *sync.Run, err error) error {
	if run != nil {
		if perr := printRun(cmd.OutOrStdout(), format, run); perr != nil {
			return perr
		}
	}
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}
	if run != nil && run.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d items failed", run.Failed, run.Attempted))
	}
	return nil
}
