// Package sync drains a work backlog through a bounded worker pool and
// reports a per-run summary. The backlog is paged keyset-style so the
// whole of it is never held in memory, per-item failures are tallied
// without stopping the run, and a failed credential refresh aborts the
// run as a whole.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
	"github.com/FridaySalami/spapi-sync/pkg/logging"
)

var (
	itemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spapi_sync_items_total",
			Help: "Backlog items processed by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	recordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spapi_sync_records_written_total",
			Help: "Records reported written to the sink by job.",
		},
		[]string{"job"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spapi_sync_run_duration_seconds",
			Help:    "Wall-clock duration of sync runs.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"job"},
	)
)

// Item is one unit of backlog work. Keys optionally carries a batch of
// natural keys when the job groups several records into one request.
type Item struct {
	ID   string
	Keys []string
}

// Backlog produces work items in keyset pages: Next returns the items
// after the given cursor and the cursor for the following page. An
// empty next cursor or an empty page ends the feed.
type Backlog interface {
	Next(ctx context.Context, after string, limit int) ([]Item, string, error)
}

// BacklogFunc adapts a function to the Backlog interface.
type BacklogFunc func(ctx context.Context, after string, limit int) ([]Item, string, error)

// Next calls f.
func (f BacklogFunc) Next(ctx context.Context, after string, limit int) ([]Item, string, error) {
	return f(ctx, after, limit)
}

// Processor handles one item and reports how many records it wrote to
// the sink.
type Processor func(ctx context.Context, item Item) (int, error)

// Config holds the settings for an orchestrated run.
type Config struct {
	// Job names the run in logs, metrics, and the summary.
	Job string

	// Backlog supplies the work items.
	Backlog Backlog

	// Processor handles each item.
	Processor Processor

	// Concurrency is the worker count (default 2).
	Concurrency int

	// PageSize is how many items one backlog page requests
	// (default 100).
	PageSize int

	// ProgressEvery logs a progress line every N processed items
	// (default 25).
	ProgressEvery int

	// SampleErrors caps the per-item failures kept on the Run
	// (default 5).
	SampleErrors int
}

// Orchestrator drains one backlog through a bounded worker pool.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an orchestrator for the given job.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Job == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if cfg.Backlog == nil {
		return nil, fmt.Errorf("backlog is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 25
	}
	if cfg.SampleErrors <= 0 {
		cfg.SampleErrors = 5
	}

	return &Orchestrator{
		cfg:    cfg,
		logger: logging.NewLogger("sync").With().Str("job", cfg.Job).Logger(),
	}, nil
}

// Run drains the backlog and returns the run summary. Per-item
// failures are tallied on the summary; only run-level failures (a
// failed credential refresh, a backlog query error, cancellation)
// produce a non-nil error, and the partial summary is returned with it.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Job: o.cfg.Job}
	start := time.Now()

	logger := o.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("concurrency", o.cfg.Concurrency).Msg("Sync run starting")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan Item)

	var (
		mu        stdsync.Mutex
		attempted int
		succeeded int
		failed    int
		written   int
		samples   []ItemError
		feedErr   error
		abortErr  error
	)

	// Feeder: pages the backlog cursor into the channel so the whole
	// backlog is never loaded at once.
	go func() {
		defer close(items)

		after := ""
		for {
			page, next, err := o.cfg.Backlog.Next(runCtx, after, o.cfg.PageSize)
			if err != nil {
				if runCtx.Err() == nil {
					mu.Lock()
					feedErr = fmt.Errorf("backlog page after %q: %w", after, err)
					mu.Unlock()
				}
				cancel()
				return
			}

			for _, item := range page {
				select {
				case items <- item:
				case <-runCtx.Done():
					return
				}
			}

			if next == "" || len(page) == 0 {
				return
			}
			after = next
		}
	}()

	var wg stdsync.WaitGroup
	for i := 0; i < o.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for item := range items {
				if runCtx.Err() != nil {
					return
				}

				n, err := o.cfg.Processor(runCtx, item)

				mu.Lock()
				attempted++
				count := attempted
				if err != nil {
					failed++
					if len(samples) < o.cfg.SampleErrors {
						samples = append(samples, ItemError{ItemID: item.ID, Err: err})
					}
					if errors.Is(err, auth.ErrAuthFailed) && abortErr == nil {
						abortErr = err
					}
				} else {
					succeeded++
					written += n
				}
				mu.Unlock()

				if err != nil {
					itemsProcessed.WithLabelValues(o.cfg.Job, "failed").Inc()
					logger.Warn().Str("item_id", item.ID).Err(err).Msg("Item failed")
					if errors.Is(err, auth.ErrAuthFailed) {
						cancel()
					}
				} else {
					itemsProcessed.WithLabelValues(o.cfg.Job, "succeeded").Inc()
				}

				if count%o.cfg.ProgressEvery == 0 {
					logger.Info().
						Int("attempted", count).
						Msg("Sync progress")
				}
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	run.Attempted = attempted
	run.Succeeded = succeeded
	run.Failed = failed
	run.Written = written
	run.Errors = samples
	runLevelErr := abortErr
	backlogErr := feedErr
	mu.Unlock()

	run.Elapsed = time.Since(start)
	runDuration.WithLabelValues(o.cfg.Job).Observe(run.Elapsed.Seconds())
	recordsWritten.WithLabelValues(o.cfg.Job).Add(float64(run.Written))

	logger.Info().
		Int("attempted", run.Attempted).
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Int("written", run.Written).
		Dur("elapsed", run.Elapsed).
		Msg("Sync run complete")

	switch {
	case runLevelErr != nil:
		return run, fmt.Errorf("run aborted: %w", runLevelErr)
	case backlogErr != nil:
		return run, backlogErr
	case ctx.Err() != nil:
		return run, fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return run, nil
}
