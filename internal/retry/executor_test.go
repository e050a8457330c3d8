package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/database"
	"github.com/mealvault/mealvault/internal/database/testutil"
	"github.com/mealvault/mealvault/internal/models"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
)

func newTestExecutor(t *testing.T, delays *[]time.Duration) *Executor {
	t.Helper()

	store := testutil.MustOpenMemoryStore(t)
	exec, err := NewExecutor(store, WithSleeper(func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}))
	require.NoError(t, err)
	return exec
}

func validPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestPolicyValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"zero initial delay", func(p *Policy) { p.InitialDelay = 0 }},
		{"max below initial", func(p *Policy) { p.MaxDelay = p.InitialDelay - 1 }},
		{"factor at one", func(p *Policy) { p.BackoffFactor = 1.0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPolicy()
			tc.mutate(&p)
			err := p.Validate()
			require.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}

	require.NoError(t, validPolicy().Validate())
}

func TestRunWithRetryInvalidPolicyMakesNoAttempt(t *testing.T) {
	exec := newTestExecutor(t, nil)

	attempts := 0
	err := exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return nil
	}, Policy{MaxAttempts: 0})

	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	require.Zero(t, attempts)
}

func TestRunOnceCommitsOnSuccess(t *testing.T) {
	exec := newTestExecutor(t, nil)
	ctx := context.Background()

	err := exec.RunOnce(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.Meal{Name: "Committed"}).Error
	})
	require.NoError(t, err)

	meals, err := exec.store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, meals, 1)
}

func TestRunOnceRollsBackOnFailure(t *testing.T) {
	exec := newTestExecutor(t, nil)
	ctx := context.Background()

	boom := errors.New("halfway failure")
	err := exec.RunOnce(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&models.Meal{Name: "Doomed"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	meals, err := exec.store.QueryAll(ctx, database.QueryFilter{})
	require.NoError(t, err)
	require.Empty(t, meals)
}

func TestRunOnceRecoversPanics(t *testing.T) {
	exec := newTestExecutor(t, nil)

	err := exec.RunOnce(context.Background(), func(tx *gorm.DB) error {
		panic("unexpected state")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unit of work failed")
}

func TestRunWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	exec := newTestExecutor(t, nil)

	attempts := 0
	err := exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return apperrors.NewStore(errors.New("database is locked"))
		}
		return nil
	}, validPolicy())

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRunWithRetryExhaustionReturnsFinalFailure(t *testing.T) {
	exec := newTestExecutor(t, nil)

	attempts := 0
	final := apperrors.NewStore(errors.New("still locked"))
	err := exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return final
	}, validPolicy())

	require.Equal(t, 3, attempts)
	require.ErrorIs(t, err, apperrors.ErrStore)
}

func TestRunWithRetryCapsDelays(t *testing.T) {
	var delays []time.Duration
	exec := newTestExecutor(t, &delays)

	policy := Policy{
		MaxAttempts:   4,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      150 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	err := exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		return apperrors.NewStore(errors.New("flaky"))
	}, policy)
	require.Error(t, err)

	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		150 * time.Millisecond, // 200ms clamped to the cap
		150 * time.Millisecond,
	}, delays)
}

func TestRunWithRetryDoesNotRetryTerminalFailures(t *testing.T) {
	exec := newTestExecutor(t, nil)

	attempts := 0
	err := exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return apperrors.NewValidation("name is required")
	}, validPolicy())

	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Equal(t, 1, attempts)
}

func TestRunWithRetryHonoursCancellation(t *testing.T) {
	store := testutil.MustOpenMemoryStore(t)
	exec, err := NewExecutor(store, WithSleeper(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))
	require.NoError(t, err)

	attempts := 0
	err = exec.RunWithRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return apperrors.NewStore(errors.New("flaky"))
	}, validPolicy())

	require.ErrorIs(t, err, apperrors.ErrCancelled)
	require.Equal(t, 1, attempts)
}

func TestRunWithRetryChecksContextBeforeFirstAttempt(t *testing.T) {
	exec := newTestExecutor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := exec.RunWithRetry(ctx, func(tx *gorm.DB) error {
		attempts++
		return nil
	}, validPolicy())

	require.ErrorIs(t, err, apperrors.ErrCancelled)
	require.Zero(t, attempts)
}
