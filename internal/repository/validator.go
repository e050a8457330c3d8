package repository

import (
	"errors"
	"strings"

	"github.com/mealvault/mealvault/internal/models"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/validator"
)

// Validator checks a meal before it is persisted.
type Validator interface {
	ValidateMeal(meal *models.Meal) error
}

// StructValidator applies the struct tag rules declared on models.Meal.
type StructValidator struct{}

// ValidateMeal returns a validation-classified error listing every failing
// field, or nil when the meal is acceptable.
func (StructValidator) ValidateMeal(meal *models.Meal) error {
	if meal == nil {
		return apperrors.NewValidation("meal is required")
	}
	if strings.TrimSpace(meal.Name) == "" {
		return apperrors.NewValidation("name is required")
	}

	if err := validator.ValidateStruct(meal); err != nil {
		var failures validator.ValidationErrors
		if errors.As(err, &failures) {
			return apperrors.NewValidation(failures.Error())
		}
		return apperrors.ErrValidation.WithInternal(err)
	}
	return nil
}
