package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	spapiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spapi_retries_total",
		Help: "Total retry attempts by error kind",
	}, []string{"kind"})

	spapiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spapi_retry_backoff_seconds",
		Help:    "Backoff duration before each retry by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	spapiRetriesExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spapi_retries_exhausted_total",
		Help: "Requests that exhausted the retry budget by error kind",
	}, []string{"kind"})
)

// RetryConfig bounds the retry loop in Execute.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BackoffBase seeds the exponential backoff schedule.
	BackoffBase time.Duration

	// BackoffCap is the upper bound for a single backoff sleep.
	BackoffCap time.Duration

	// OnUnauthorized runs before the single immediate re-attempt that
	// follows an unauthorized failure, so the caller can drop cached
	// credentials.
	OnUnauthorized func()
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  4,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  30 * time.Second,
	}
}

// Execute runs op until it succeeds, fails permanently, or the retry
// budget is spent. Throttled and transient failures share one budget of
// MaxRetries retries with exponential backoff. An unauthorized failure
// gets a single immediate re-attempt after OnUnauthorized; a second one
// is permanent. Backoff sleeps end early when ctx is cancelled.
func Execute(ctx context.Context, cfg RetryConfig, class string, op func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}

	authRetried := false
	attempt := 0

	for {
		err := op()
		if err == nil {
			if attempt > 0 {
				log.Info().
					Str("class", class).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		kind := kindOf(err)

		if kind == KindUnauthorized {
			if authRetried {
				return fmt.Errorf("%w: %w", auth.ErrAuthFailed, err)
			}
			authRetried = true
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized()
			}
			log.Warn().
				Str("class", class).
				Int("attempt", attempt+1).
				Msg("Unauthorized response, dropping cached credentials")
			continue
		}

		if !retryable(kind) {
			return err
		}

		if attempt >= cfg.MaxRetries {
			spapiRetriesExhaustedTotal.WithLabelValues(string(kind)).Inc()
			log.Warn().
				Str("class", class).
				Str("kind", string(kind)).
				Int("attempts", attempt+1).
				Msg("Retry budget exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}

		delay := backoffDelay(cfg, attempt)
		spapiRetriesTotal.WithLabelValues(string(kind)).Inc()
		spapiRetryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())

		log.Debug().
			Str("class", class).
			Str("kind", string(kind)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}

		attempt++
	}
}

// kindOf extracts the failure kind carried on err.
func kindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	// A failed credential refresh is already final; retrying the request
	// cannot mint a token.
	if errors.Is(err, auth.ErrAuthFailed) {
		return KindPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}
	return KindTransient
}

// backoffDelay computes min(cap, base<<attempt) plus uniform jitter in
// [1, base] nanoseconds, so the delay is never zero and never identical
// across concurrent workers.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BackoffCap
	if attempt < 32 {
		if d := cfg.BackoffBase << attempt; d > 0 && d < cfg.BackoffCap {
			delay = d
		}
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.BackoffBase))) + 1
	return delay + jitter
}
