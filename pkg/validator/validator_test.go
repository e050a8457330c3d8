package validator

import (
	"testing"
)

type sampleMealInput struct {
	Name  string  `json:"name" validate:"required,max=120"`
	Qty   float64 `json:"qty" validate:"gt=0"`
	Unit  string  `json:"unit" validate:"required,mealunit"`
	Notes string  `json:"notes" validate:"max=500"`
}

func TestValidateStructPasses(t *testing.T) {
	in := sampleMealInput{Name: "Oatmeal", Qty: 40, Unit: "g"}
	if err := ValidateStruct(in); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestValidateStructReportsFieldFailures(t *testing.T) {
	in := sampleMealInput{Qty: -1, Unit: "parsec"}

	err := ValidateStruct(in)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	failures, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	byField := map[string]string{}
	for _, f := range failures {
		byField[f.Field] = f.Tag
	}

	if byField["name"] != "required" {
		t.Fatalf("expected name/required failure, got %v", byField)
	}
	if byField["qty"] != "gt" {
		t.Fatalf("expected qty/gt failure, got %v", byField)
	}
	if byField["unit"] != "mealunit" {
		t.Fatalf("expected unit/mealunit failure, got %v", byField)
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	failures := ValidationErrors{
		{Field: "name", Tag: "required"},
		{Field: "qty", Tag: "gt", Param: "0"},
	}

	msg := failures.Error()
	if msg != "name failed on required; qty failed on gt=0" {
		t.Fatalf("unexpected message: %s", msg)
	}
}
