package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorUnwrap(t *testing.T) {
	ve := NewValidationError("amount", "must be positive")
	if !errors.Is(ve, ErrInvalidInput) {
		t.Error("expected ValidationError to match ErrInvalidInput")
	}
	if got := ve.Error(); got != "revenue: validation failed for amount: must be positive" {
		t.Errorf("Error() = %q", got)
	}

	overpay := errors.New("overpayment")
	wrapped := &ValidationError{Field: "amount", Message: "too much", Err: overpay}
	if !errors.Is(wrapped, overpay) {
		t.Error("expected wrapped sentinel to match")
	}
}

func TestInfra(t *testing.T) {
	if Infra("op", nil) != nil {
		t.Error("nil should pass through")
	}

	passthrough := []error{
		ErrNotFound,
		fmt.Errorf("wrapped: %w", ErrConcurrencyConflict),
		ErrAlreadyExists,
		NewValidationError("f", "m"),
		NotFound("bill"),
	}
	for _, err := range passthrough {
		if got := Infra("op", err); got != err {
			t.Errorf("Infra(%v) = %v, want unchanged", err, got)
		}
	}

	driver := errors.New("connection reset")
	err := Infra("get bill", driver)
	var ie *InfrastructureError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InfrastructureError, got %T", err)
	}
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, driver) {
		t.Error("expected both ErrStoreUnavailable and the driver error to match")
	}
	if Infra("again", err) != err {
		t.Error("an InfrastructureError should not be wrapped twice")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFound("anomaly")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected NotFoundError to match ErrNotFound")
	}
	if err.Error() != "revenue: anomaly not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(fmt.Errorf("get: %w", err), err) {
		t.Error("expected identity match through wrapping")
	}
}
