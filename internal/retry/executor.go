package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/database"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/logger"
	"github.com/mealvault/mealvault/pkg/metrics"
)

// Policy configures RunWithRetry backoff. The delay before attempt n (n >= 2)
// is min(MaxDelay, InitialDelay * BackoffFactor^(n-2)); deterministic, no jitter.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Validate checks the policy synchronously; a configuration error means no
// attempt is ever made.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return apperrors.NewConfiguration("retry: max attempts must be at least 1")
	case p.InitialDelay < 1:
		return apperrors.NewConfiguration("retry: initial delay must be positive")
	case p.MaxDelay < p.InitialDelay:
		return apperrors.NewConfiguration("retry: max delay must not be below initial delay")
	case p.BackoffFactor <= 1.0:
		return apperrors.NewConfiguration("retry: backoff factor must exceed 1.0")
	}
	return nil
}

// UnitOfWork is a caller-supplied operation executed atomically against the store.
type UnitOfWork func(tx *gorm.DB) error

// Executor runs units of work inside the store's transaction primitive,
// optionally retrying store failures with exponential backoff. Retries are
// strictly sequential; the inter-attempt sleep blocks only the calling goroutine.
type Executor struct {
	store *database.Store
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises the Executor.
type Option func(*Executor)

// WithSleeper overrides the inter-attempt sleep, primarily for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewExecutor constructs an executor bound to the store's transactions.
func NewExecutor(store *database.Store, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, errors.New("retry: store is required")
	}

	e := &Executor{
		store: store,
		log:   logger.WithModule("retry"),
		sleep: sleepWithContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunOnce executes fn inside a single store transaction. A panic inside fn
// rolls the transaction back and is reported as a failure, never propagated.
func (e *Executor) RunOnce(ctx context.Context, fn UnitOfWork) error {
	if e == nil || e.store == nil {
		return errors.New("retry: executor not initialised")
	}
	if fn == nil {
		return apperrors.NewConfiguration("retry: unit of work is required")
	}

	return e.store.Transaction(ctx, func(tx *gorm.DB) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.Wrap(fmt.Errorf("panic: %v", r), "unit of work failed")
			}
		}()
		return fn(tx)
	})
}

// RunWithRetry executes fn until it succeeds or policy.MaxAttempts attempts
// have been made, returning the failure from the final attempt on exhaustion.
// Terminal failures (validation, configuration, not-found, integrity) are
// returned immediately without further attempts. Cancellation is checked
// before each attempt and before each sleep.
func (e *Executor) RunWithRetry(ctx context.Context, fn UnitOfWork, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.RetryAttempts.WithLabelValues("cancelled").Inc()
			return apperrors.ErrCancelled.WithInternal(err)
		}

		lastErr = e.RunOnce(ctx, fn)
		if lastErr == nil {
			metrics.RetryAttempts.WithLabelValues("success").Inc()
			return nil
		}

		if !apperrors.IsRetryable(lastErr) {
			metrics.RetryAttempts.WithLabelValues("terminal").Inc()
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		e.log.Debug("attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		if err := e.sleep(ctx, delay); err != nil {
			metrics.RetryAttempts.WithLabelValues("cancelled").Inc()
			return apperrors.ErrCancelled.WithInternal(err)
		}

		delay = nextDelay(delay, policy.BackoffFactor, policy.MaxDelay)
	}

	metrics.RetryAttempts.WithLabelValues("exhausted").Inc()
	return lastErr
}

func nextDelay(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
