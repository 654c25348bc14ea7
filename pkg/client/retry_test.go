package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/auth"
)

// fastRetry keeps test sleeps in the low milliseconds.
func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 500ms", cfg.BackoffBase)
	}
	if cfg.BackoffCap != 30*time.Second {
		t.Errorf("BackoffCap = %v, want 30s", cfg.BackoffCap)
	}
}

func TestExecuteSuccessFirstTry(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteSuccessAfterRetry(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteRetryCeiling(t *testing.T) {
	calls := 0
	throttled := &APIError{Status: 429, Kind: KindThrottled, Endpoint: "getOrders", Message: "QuotaExceeded"}

	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		return throttled
	})

	if calls != 4 {
		t.Errorf("calls = %d, want 4 (first attempt plus three retries)", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Execute() = %v, want ErrRetriesExhausted", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindThrottled {
		t.Errorf("last attempt error not preserved, got %v", err)
	}
}

func TestExecutePermanentNoRetry(t *testing.T) {
	calls := 0
	permanent := &APIError{Status: 404, Kind: KindPermanent, Endpoint: "getOrders", Message: "not found"}

	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.As(err, new(*APIError)) {
		t.Errorf("Execute() = %v, want the original *APIError", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("permanent failures must not be reported as exhausted")
	}
}

func TestExecuteUnauthorizedRefreshOnce(t *testing.T) {
	calls := 0
	invalidations := 0

	cfg := fastRetry(0)
	cfg.OnUnauthorized = func() { invalidations++ }

	err := Execute(context.Background(), cfg, "orders", func() error {
		calls++
		if calls == 1 {
			return &APIError{Status: 401, Kind: KindUnauthorized, Endpoint: "getOrders"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (the re-attempt is immediate and free)", calls)
	}
	if invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", invalidations)
	}
}

func TestExecuteUnauthorizedTwicePermanent(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		return &APIError{Status: 401, Kind: KindUnauthorized, Endpoint: "getOrders"}
	})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, auth.ErrAuthFailed) {
		t.Errorf("Execute() = %v, want auth.ErrAuthFailed", err)
	}
}

func TestExecuteAuthFailedStopsImmediately(t *testing.T) {
	calls := 0
	refreshErr := fmt.Errorf("%w: status 400: invalid_grant", auth.ErrAuthFailed)

	err := Execute(context.Background(), fastRetry(3), "orders", func() error {
		calls++
		return refreshErr
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, auth.ErrAuthFailed) {
		t.Errorf("Execute() = %v, want auth.ErrAuthFailed", err)
	}
}

func TestExecuteContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Execute(ctx, RetryConfig{MaxRetries: 5, BackoffBase: time.Minute, BackoffCap: time.Minute}, "orders", func() error {
		calls++
		cancel()
		return &APIError{Status: 503, Kind: KindTransient, Endpoint: "getOrders"}
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("cancellation must not be reported as exhausted")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "api error carries its kind",
			err:  &APIError{Kind: KindThrottled},
			want: KindThrottled,
		},
		{
			name: "wrapped api error",
			err:  fmt.Errorf("call: %w", &APIError{Kind: KindPermanent}),
			want: KindPermanent,
		},
		{
			name: "auth failure is permanent",
			err:  fmt.Errorf("%w: status 400", auth.ErrAuthFailed),
			want: KindPermanent,
		},
		{
			name: "context cancellation is permanent",
			err:  fmt.Errorf("acquire permit: %w", context.Canceled),
			want: KindPermanent,
		},
		{
			name: "deadline exceeded is permanent",
			err:  context.DeadlineExceeded,
			want: KindPermanent,
		},
		{
			name: "unclassified errors default to transient",
			err:  errors.New("connection reset by peer"),
			want: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindOf(tt.err); got != tt.want {
				t.Errorf("kindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackoffDelayGrowth(t *testing.T) {
	cfg := RetryConfig{BackoffBase: 100 * time.Millisecond, BackoffCap: time.Second}

	for attempt := 0; attempt < 6; attempt++ {
		floor := cfg.BackoffBase << attempt
		if floor > cfg.BackoffCap || floor <= 0 {
			floor = cfg.BackoffCap
		}

		delay := backoffDelay(cfg, attempt)
		if delay <= floor {
			t.Errorf("attempt %d: delay %v not above floor %v", attempt, delay, floor)
		}
		if delay > floor+cfg.BackoffBase {
			t.Errorf("attempt %d: delay %v exceeds floor %v plus jitter bound", attempt, delay, floor)
		}
	}
}

func TestBackoffDelayJitterDistinct(t *testing.T) {
	cfg := RetryConfig{BackoffBase: 500 * time.Millisecond, BackoffCap: 30 * time.Second}

	seen := make(map[time.Duration]bool)
	for i := 0; i < 8; i++ {
		d := backoffDelay(cfg, 0)
		if seen[d] {
			t.Fatalf("duplicate delay %v across samples", d)
		}
		seen[d] = true
	}
}
