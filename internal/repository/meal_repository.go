package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/cache"
	"github.com/mealvault/mealvault/internal/database"
	"github.com/mealvault/mealvault/internal/models"
	"github.com/mealvault/mealvault/internal/retry"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/logger"
	"github.com/mealvault/mealvault/pkg/metrics"
)

const allListKey = "all"

// Config sizes the repository caches and sets the write retry policy. A
// MaxAttempts of 1 disables backoff and runs each write exactly once.
type Config struct {
	DetailCacheSize int
	ListCacheSize   int
	WriteRetry      retry.Policy
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		DetailCacheSize: 256,
		ListCacheSize:   32,
		WriteRetry:      retry.Policy{MaxAttempts: 1},
	}
}

// MealRepository mediates between callers and the durable store. Reads are
// served through bounded LRU caches; every successful mutation invalidates
// the affected entries before the call returns, so a read issued after a
// caller observes success is never stale.
type MealRepository struct {
	store     *database.Store
	exec      *retry.Executor
	validator Validator
	detail    *cache.Cache[string, models.Meal]
	lists     *cache.Cache[string, []models.Meal]
	watches   *watchHub
	retry     retry.Policy
	log       *zap.Logger
}

// NewMealRepository constructs a repository owning its caches. The store,
// executor, and validator are passed by ownership; there is no ambient state.
func NewMealRepository(store *database.Store, exec *retry.Executor, v Validator, cfg Config) (*MealRepository, error) {
	if store == nil {
		return nil, errors.New("repository: store is required")
	}
	if exec == nil {
		return nil, errors.New("repository: executor is required")
	}
	if v == nil {
		v = StructValidator{}
	}
	if cfg.DetailCacheSize < 1 {
		cfg.DetailCacheSize = DefaultConfig().DetailCacheSize
	}
	if cfg.ListCacheSize < 1 {
		cfg.ListCacheSize = DefaultConfig().ListCacheSize
	}

	detail, err := cache.New[string, models.Meal]("meal_detail", cfg.DetailCacheSize)
	if err != nil {
		return nil, err
	}
	lists, err := cache.New[string, []models.Meal]("meal_lists", cfg.ListCacheSize)
	if err != nil {
		return nil, err
	}

	return &MealRepository{
		store:     store,
		exec:      exec,
		validator: v,
		detail:    detail,
		lists:     lists,
		watches:   newWatchHub(),
		retry:     cfg.WriteRetry,
		log:       logger.WithModule("repository"),
	}, nil
}

// Add validates and persists a new meal, returning its store-assigned id.
// Validation failures never touch the store.
func (r *MealRepository) Add(ctx context.Context, meal *models.Meal) (string, error) {
	if err := r.precheck(ctx, meal); err != nil {
		return "", r.fail("add", err)
	}

	meal.ID = "" // the store assigns identifiers
	err := r.write(ctx, func(tx *gorm.DB) error {
		return database.InsertTx(tx, meal)
	})
	if err != nil {
		return "", r.fail("add", classify(err))
	}

	// A fresh record cannot be detail-cached yet; list signatures are stale.
	r.lists.Clear()

	metrics.RepositoryOps.WithLabelValues("add", "success").Inc()
	return meal.ID, nil
}

// AddBatch persists the supplied meals all-or-nothing: a failure on any
// record leaves none of the batch observably committed. List caches are
// invalidated exactly once on success.
func (r *MealRepository) AddBatch(ctx context.Context, meals []*models.Meal) ([]string, error) {
	if len(meals) == 0 {
		return nil, r.fail("add_batch", apperrors.NewValidation("at least one meal is required"))
	}

	for i, meal := range meals {
		if err := r.precheck(ctx, meal); err != nil {
			appErr := apperrors.FromError(err)
			return nil, r.fail("add_batch", appErr.WithMessage(fmt.Sprintf("meal %d: %s", i, appErr.Message)))
		}
	}

	err := r.write(ctx, func(tx *gorm.DB) error {
		for _, meal := range meals {
			meal.ID = ""
			if err := database.InsertTx(tx, meal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.fail("add_batch", classify(err))
	}

	r.lists.Clear()

	ids := make([]string, len(meals))
	for i, meal := range meals {
		ids[i] = meal.ID
	}

	metrics.RepositoryOps.WithLabelValues("add_batch", "success").Inc()
	return ids, nil
}

// Update validates and persists changes to an existing meal, invalidating the
// detail entry and every list signature before reporting success.
func (r *MealRepository) Update(ctx context.Context, meal *models.Meal) error {
	if err := r.precheck(ctx, meal); err != nil {
		return r.fail("update", err)
	}
	id := strings.TrimSpace(meal.ID)
	if id == "" {
		return r.fail("update", apperrors.NewValidation("id is required"))
	}

	found := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		var txErr error
		found, txErr = database.UpdateTx(tx, meal)
		return txErr
	})
	if err != nil {
		return r.fail("update", classify(err))
	}
	if !found {
		return r.fail("update", apperrors.NewNotFound("meal", id))
	}

	r.detail.Invalidate(id)
	r.lists.Clear()
	r.watches.publish(MealEvent{Type: EventUpdated, ID: id, Meal: meal})

	metrics.RepositoryOps.WithLabelValues("update", "success").Inc()
	return nil
}

// Delete removes a meal by id. Deleting an unknown id is a not-found failure,
// never a silent no-op.
func (r *MealRepository) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return r.fail("delete", apperrors.NewValidation("id is required"))
	}

	deleted := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		var txErr error
		deleted, txErr = database.DeleteTx(tx, id)
		return txErr
	})
	if err != nil {
		return r.fail("delete", classify(err))
	}
	if !deleted {
		return r.fail("delete", apperrors.NewNotFound("meal", id))
	}

	r.detail.Invalidate(id)
	r.lists.Clear()
	r.watches.publish(MealEvent{Type: EventDeleted, ID: id})

	metrics.RepositoryOps.WithLabelValues("delete", "success").Inc()
	return nil
}

// GetByID serves from the detail cache when possible. Absence in the store is
// a not-found failure and is never cached as a negative entry.
func (r *MealRepository) GetByID(ctx context.Context, id string) (*models.Meal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, r.fail("get_by_id", apperrors.NewValidation("id is required"))
	}

	if cached, ok := r.detail.Get(id); ok {
		metrics.RepositoryOps.WithLabelValues("get_by_id", "success").Inc()
		return &cached, nil
	}

	meal, err := r.store.QueryByID(ctx, id)
	if err != nil {
		return nil, r.fail("get_by_id", classify(err))
	}
	if meal == nil {
		return nil, r.fail("get_by_id", apperrors.NewNotFound("meal", id))
	}

	r.detail.Put(id, *meal)

	metrics.RepositoryOps.WithLabelValues("get_by_id", "success").Inc()
	return meal, nil
}

// GetAll returns every meal, cached under the "all" signature.
func (r *MealRepository) GetAll(ctx context.Context) ([]models.Meal, error) {
	return r.list(ctx, allListKey, database.QueryFilter{})
}

// GetPaginated returns one page of meals. Pages over a fixed snapshot are
// disjoint and stable thanks to the store's deterministic ordering.
func (r *MealRepository) GetPaginated(ctx context.Context, limit, offset int) ([]models.Meal, error) {
	if limit < 1 {
		return nil, r.fail("get_paginated", apperrors.NewValidation("limit must be at least 1"))
	}
	if offset < 0 {
		return nil, r.fail("get_paginated", apperrors.NewValidation("offset must not be negative"))
	}

	key := fmt.Sprintf("page:%d:%d", limit, offset)
	return r.list(ctx, key, database.QueryFilter{Limit: limit, Offset: offset})
}

// Watch registers interest in a meal id. The returned channel receives an
// event after every successful Update or Delete of that id; the cancel
// function (or ctx cancellation) releases the subscription.
func (r *MealRepository) Watch(ctx context.Context, id string) (<-chan MealEvent, func(), error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, apperrors.NewValidation("id is required")
	}

	ch, cancel := r.watches.subscribe(ctx, id)
	return ch, cancel, nil
}

func (r *MealRepository) list(ctx context.Context, key string, filter database.QueryFilter) ([]models.Meal, error) {
	op := "get_all"
	if key != allListKey {
		op = "get_paginated"
	}

	if cached, ok := r.lists.Get(key); ok {
		metrics.RepositoryOps.WithLabelValues(op, "success").Inc()
		return cached, nil
	}

	meals, err := r.store.QueryAll(ctx, filter)
	if err != nil {
		return nil, r.fail(op, classify(err))
	}

	r.lists.Put(key, meals)

	metrics.RepositoryOps.WithLabelValues(op, "success").Inc()
	return meals, nil
}

// precheck normalises and validates a meal before any store access.
func (r *MealRepository) precheck(ctx context.Context, meal *models.Meal) error {
	if err := ctx.Err(); err != nil {
		return apperrors.ErrCancelled.WithInternal(err)
	}
	if meal == nil {
		return apperrors.NewValidation("meal is required")
	}

	meal.Normalise()
	return r.validator.ValidateMeal(meal)
}

// write runs the unit of work through the executor, retrying store failures
// when the configured policy allows more than one attempt.
func (r *MealRepository) write(ctx context.Context, fn retry.UnitOfWork) error {
	if r.retry.MaxAttempts > 1 {
		return r.exec.RunWithRetry(ctx, fn, r.retry)
	}
	return r.exec.RunOnce(ctx, fn)
}

func (r *MealRepository) fail(op string, err error) *apperrors.AppError {
	appErr := apperrors.FromError(err)
	metrics.RepositoryOps.WithLabelValues(op, "failure").Inc()
	r.log.Warn("operation failed",
		zap.String("operation", op),
		zap.String("code", appErr.Code),
		zap.Error(appErr),
	)
	return appErr
}

// classify folds raw store/driver errors into the store-error class while
// passing through already-classified failures and cancellations.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrCancelled.WithInternal(err)
	}
	return apperrors.NewStore(err)
}
