package errors

import (
	stdErrors "errors"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("disk full")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: disk full" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestSentinelComparisonSurvivesCopies(t *testing.T) {
	err := NewStore(stdErrors.New("database is locked"))

	if !stdErrors.Is(err, ErrStore) {
		t.Fatal("expected wrapped store error to match ErrStore")
	}
	if stdErrors.Is(err, ErrNotFound) {
		t.Fatal("store error should not match ErrNotFound")
	}

	notFound := NewNotFound("meal", "m-1")
	if !stdErrors.Is(notFound, ErrNotFound) {
		t.Fatal("expected NewNotFound to match ErrNotFound")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if !IsRetryable(NewStore(stdErrors.New("io timeout"))) {
		t.Fatal("store errors should be retryable")
	}
	if IsRetryable(NewValidation("name is required")) {
		t.Fatal("validation errors must never be retried")
	}
	if IsRetryable(NewConfiguration("max attempts must be at least 1")) {
		t.Fatal("configuration errors must never be retried")
	}
	if IsRetryable(ErrIntegrity) {
		t.Fatal("integrity errors must never be retried")
	}
}

func TestNewValidationMessage(t *testing.T) {
	err := NewValidation("quantity must be positive")
	if err.Code != ErrValidation.Code {
		t.Fatalf("expected %s, got %s", ErrValidation.Code, err.Code)
	}
	if err.Message != "quantity must be positive" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrValidation.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}
