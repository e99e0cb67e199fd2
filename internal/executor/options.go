package executor

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/aretw0/quire/pkg/domain"
)

// DefaultHardTimeout caps a single handler attempt.
const DefaultHardTimeout = 5 * time.Minute

// Option configures an Executor.
type Option func(*Executor)

// WithRetryPolicy sets how transient failures are retried.
func WithRetryPolicy(p domain.RetryPolicy) Option {
	return func(e *Executor) {
		if p.MaxRetries < 0 {
			p.MaxRetries = 0
		}
		e.retry = p
	}
}

// WithHardTimeout sets the per-attempt deadline. Expiry counts as a transient failure.
func WithHardTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.hardTimeout = d
		}
	}
}

// WithMaxParallel bounds concurrent handlers inside a parallel batch. Zero means unbounded.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxParallel = n
		}
	}
}

// WithRateLimit throttles handler dispatch across all runs of the executor,
// typically to stay within a model API request budget.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(e *Executor) {
		if limit <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHooks registers lifecycle callbacks. Hooks are invoked serially.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = h
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
