package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mealvault/mealvault/internal/models"
)

// AutoMigrate applies the meal journal schema.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := db.AutoMigrate(
		&models.Meal{},
		&models.MealItem{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
