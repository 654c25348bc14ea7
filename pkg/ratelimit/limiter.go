// Package ratelimit enforces per-resource-class request budgets.
//
// Each resource class (orders, pricing, ...) carries a watermark: the
// earliest instant the next request in that class may proceed. Acquire
// advances the watermark atomically and suspends the caller until its
// grant instant, so concurrent workers sharing a class are paced as one
// stream while distinct classes never interact. Permits are never
// granted early and never handed back; an idle class accumulates at
// most its configured burst.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	permitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spapi_rate_permits_total",
			Help: "Total number of rate permits granted by resource class",
		},
		[]string{"class"},
	)

	permitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spapi_rate_permit_wait_seconds",
			Help:    "Time spent waiting for a rate permit",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 15, 30, 60, 120},
		},
		[]string{"class"},
	)

	observedLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spapi_rate_observed_limit",
			Help: "Effective requests-per-second ceiling per resource class",
		},
		[]string{"class"},
	)
)

// Budget configures one resource class.
type Budget struct {
	// RPS is the sustained requests-per-second ceiling.
	RPS float64

	// Burst is how many permits an idle class may grant immediately.
	Burst int
}

// classState is the shared mutable state of one resource class.
// Guarded by the limiter mutex; the mutex is held only for watermark
// arithmetic, never across a wait.
type classState struct {
	configured float64
	rps        float64
	interval   time.Duration
	burst      int
	next       time.Time
}

// Limiter paces requests per resource class.
type Limiter struct {
	logger zerolog.Logger

	// now and sleep are injectable for tests with a fake clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	classes map[string]*classState
}

// New creates a Limiter from per-class budgets. Budgets with a
// non-positive rate or burst below 1 are rejected.
func New(budgets map[string]Budget, logger zerolog.Logger) (*Limiter, error) {
	if len(budgets) == 0 {
		return nil, fmt.Errorf("ratelimit: no budgets configured")
	}

	classes := make(map[string]*classState, len(budgets))
	for class, b := range budgets {
		if b.RPS <= 0 {
			return nil, fmt.Errorf("ratelimit: class %q: rate must be positive, got %v", class, b.RPS)
		}
		if b.Burst < 1 {
			return nil, fmt.Errorf("ratelimit: class %q: burst must be at least 1, got %d", class, b.Burst)
		}
		classes[class] = &classState{
			configured: b.RPS,
			rps:        b.RPS,
			interval:   intervalFor(b.RPS),
			burst:      b.Burst,
		}
		observedLimit.WithLabelValues(class).Set(b.RPS)
	}

	return &Limiter{
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
		classes: classes,
	}, nil
}

// Acquire blocks until the class's budget permits one request, then
// returns. The wait is cancellable through ctx; a cancelled wait does
// not roll the watermark back, the unused slot is forfeited.
func (l *Limiter) Acquire(ctx context.Context, class string) error {
	l.mu.Lock()
	cs, ok := l.classes[class]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("ratelimit: unknown resource class %q", class)
	}

	now := l.now()

	// An idle class may not bank more than burst permits: the watermark
	// never trails now by more than (burst-1) intervals.
	floor := now.Add(-time.Duration(cs.burst-1) * cs.interval)
	if cs.next.Before(floor) {
		cs.next = floor
	}
	grantAt := cs.next
	cs.next = cs.next.Add(cs.interval)
	l.mu.Unlock()

	wait := grantAt.Sub(now)
	if wait > 0 {
		l.logger.Debug().
			Str("class", class).
			Dur("wait", wait).
			Msg("Waiting for rate permit")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	} else {
		wait = 0
	}

	permitsTotal.WithLabelValues(class).Inc()
	permitWaitSeconds.WithLabelValues(class).Observe(wait.Seconds())

	return nil
}

// Observe feeds a rate ceiling advertised by the partner back into the
// limiter. The effective rate becomes min(configured, advertised): a
// lower advertised ceiling tightens pacing immediately, while the
// configured rate stays the upper bound even if the partner later
// advertises more headroom.
func (l *Limiter) Observe(class string, rps float64) {
	if rps <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cs, ok := l.classes[class]
	if !ok {
		return
	}

	effective := math.Min(cs.configured, rps)
	if effective == cs.rps {
		return
	}

	if effective < cs.rps {
		l.logger.Warn().
			Str("class", class).
			Float64("advertised_rps", rps).
			Float64("effective_rps", effective).
			Msg("Partner advertises lower rate ceiling, tightening")
	} else {
		l.logger.Info().
			Str("class", class).
			Float64("effective_rps", effective).
			Msg("Rate ceiling restored")
	}

	cs.rps = effective
	cs.interval = intervalFor(effective)
	observedLimit.WithLabelValues(class).Set(effective)
}

// intervalFor converts a requests-per-second rate to the pacing
// interval between grants.
func intervalFor(rps float64) time.Duration {
	return time.Duration(float64(time.Second) / rps)
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
