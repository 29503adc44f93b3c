package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every package. The root revenue package
// re-exports them.
var (
	ErrNotFound            = errors.New("revenue: not found")
	ErrAlreadyExists       = errors.New("revenue: already exists")
	ErrInvalidInput        = errors.New("revenue: invalid input")
	ErrConcurrencyConflict = errors.New("revenue: concurrent modification")
	ErrStoreUnavailable    = errors.New("revenue: store unavailable")
)

// ValidationError represents malformed caller input. No state is mutated
// when one is returned.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("revenue: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns the domain sentinel behind the failure, if any, and
// ErrInvalidInput otherwise.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// InfrastructureError wraps a persistence failure. It unwraps to both
// ErrStoreUnavailable and the driver error.
type InfrastructureError struct {
	Op  string
	Err error
}

// Infra wraps err as an InfrastructureError for op. Nil, not-found,
// conflict and validation errors pass through unchanged.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ie *InfrastructureError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrAlreadyExists) || errors.As(err, &ve) || errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("revenue: %s: %v", e.Op, e.Err)
}

// Unwrap implements the multi-error unwrap protocol.
func (e *InfrastructureError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// NotFoundError names the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
}

// NotFound returns a sentinel for resource.
func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func (e *NotFoundError) Error() string {
	return "revenue: " + e.Resource + " not found"
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
