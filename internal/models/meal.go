package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Meal is the journal's primary record: a named meal with its ingredient
// items, free-text notes, and categorical tags. The store owns the canonical
// copy; repository caches hold transient copies only.
type Meal struct {
	BaseModel

	Name  string                      `gorm:"type:varchar(120);not null;index" json:"name" validate:"required,max=120"`
	Notes string                      `gorm:"type:text" json:"notes,omitempty" validate:"max=2000"`
	Tags  datatypes.JSONSlice[string] `json:"tags,omitempty" validate:"dive,max=40"`
	Items []MealItem                  `gorm:"foreignKey:MealID;constraint:OnDelete:CASCADE;references:ID" json:"items" validate:"dive"`
}

// MealItem is one ordered ingredient line belonging to a meal.
type MealItem struct {
	ID       uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	MealID   string  `gorm:"type:uuid;not null;index" json:"-"`
	Position int     `gorm:"not null" json:"position"`
	Name     string  `gorm:"type:varchar(120);not null" json:"name" validate:"required,max=120"`
	Quantity float64 `gorm:"not null" json:"quantity" validate:"gt=0"`
	Unit     string  `gorm:"type:varchar(20);not null" json:"unit" validate:"required,mealunit"`
}

// Normalise trims names, lower-cases tags, and renumbers item positions so
// ordering survives round trips through the store.
func (m *Meal) Normalise() {
	m.Name = strings.TrimSpace(m.Name)
	m.Notes = strings.TrimSpace(m.Notes)

	seen := make(map[string]struct{}, len(m.Tags))
	tags := make([]string, 0, len(m.Tags))
	for _, tag := range m.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	m.Tags = tags

	for i := range m.Items {
		m.Items[i].Name = strings.TrimSpace(m.Items[i].Name)
		m.Items[i].Unit = strings.ToLower(strings.TrimSpace(m.Items[i].Unit))
		m.Items[i].Position = i
	}
}
