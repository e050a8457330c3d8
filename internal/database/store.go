package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/models"
)

// ErrClosed is returned when an operation reaches the store while its file
// handle is closed, e.g. during a backup copy.
var ErrClosed = errors.New("database: store is closed")

// Store owns the durable meal records and the SQLite file handle backing
// them. It exposes CRUD primitives, an atomic unit-of-work wrapper, and
// explicit Close/Reopen so the backup coordinator can take exclusive control
// of the on-disk image.
type Store struct {
	mu  sync.Mutex
	cfg Config
	db  *gorm.DB
}

// OpenStore opens the database file and applies the schema.
func OpenStore(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return &Store{cfg: cfg, db: db}, nil
}

// Path returns the database file path; empty for in-memory stores.
func (s *Store) Path() string {
	path := strings.TrimSpace(s.cfg.Path)
	if strings.EqualFold(path, ":memory:") {
		return ""
	}
	return path
}

// SchemaVersion reports the schema version recorded in backup metadata.
func (s *Store) SchemaVersion() int {
	return SchemaVersion
}

// Close releases the underlying file handle, checkpointing the WAL so the
// on-disk image is consistent. Safe to call on an already closed store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	s.db = nil
	return nil
}

// Reopen re-establishes the file handle after a Close. Migrations are not
// re-applied: a restored image carries its own schema.
func (s *Store) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := open(s.cfg)
	if err != nil {
		return fmt.Errorf("reopen store: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) handle() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// Transaction runs fn inside a single database transaction. Any error from
// fn rolls the transaction back completely.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(fn)
}

// Insert persists a new meal, assigning its identifier. Items are created in
// the same transaction as the parent row.
func (s *Store) Insert(ctx context.Context, meal *models.Meal) (string, error) {
	if meal == nil {
		return "", errors.New("database: meal is required")
	}

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		return InsertTx(tx, meal)
	})
	if err != nil {
		return "", err
	}
	return meal.ID, nil
}

// InsertTx creates a meal row plus its items inside an open transaction.
func InsertTx(tx *gorm.DB, meal *models.Meal) error {
	for i := range meal.Items {
		meal.Items[i].ID = 0
	}
	return tx.Create(meal).Error
}

// Update replaces the stored meal identified by meal.ID. Returns false when
// no such record exists.
func (s *Store) Update(ctx context.Context, meal *models.Meal) (bool, error) {
	if meal == nil || strings.TrimSpace(meal.ID) == "" {
		return false, errors.New("database: meal id is required")
	}

	found := false
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var txErr error
		found, txErr = UpdateTx(tx, meal)
		return txErr
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// UpdateTx replaces the stored meal inside an open transaction, reporting
// whether the id existed.
func UpdateTx(tx *gorm.DB, meal *models.Meal) (bool, error) {
	var count int64
	if err := tx.Model(&models.Meal{}).Where("id = ?", meal.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	// Items are replaced wholesale so removed lines do not linger.
	if err := tx.Where("meal_id = ?", meal.ID).Delete(&models.MealItem{}).Error; err != nil {
		return false, err
	}
	for i := range meal.Items {
		meal.Items[i].ID = 0
		meal.Items[i].MealID = meal.ID
	}

	if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(meal).Error; err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByID removes a meal and its items. Returns false when the id is unknown.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("database: meal id is required")
	}

	deleted := false
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var txErr error
		deleted, txErr = DeleteTx(tx, id)
		return txErr
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// DeleteTx removes a meal and its items inside an open transaction, reporting
// whether the id existed.
func DeleteTx(tx *gorm.DB, id string) (bool, error) {
	if err := tx.Where("meal_id = ?", id).Delete(&models.MealItem{}).Error; err != nil {
		return false, err
	}

	result := tx.Where("id = ?", id).Delete(&models.Meal{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// QueryByID loads a meal with its items in position order. A missing id
// yields (nil, nil) so callers decide how absence is reported.
func (s *Store) QueryByID(ctx context.Context, id string) (*models.Meal, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var meal models.Meal
	err = db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&meal, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

// QueryFilter narrows QueryAll results. A non-positive limit disables paging.
type QueryFilter struct {
	Limit  int
	Offset int
}

// QueryAll returns meals ordered by (created_at, id). The stable ordering
// keeps adjacent pages disjoint over a fixed snapshot of the data.
func (s *Store) QueryAll(ctx context.Context, filter QueryFilter) ([]models.Meal, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Order("created_at ASC, id ASC")

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	var meals []models.Meal
	if err := q.Find(&meals).Error; err != nil {
		return nil, err
	}
	return meals, nil
}
