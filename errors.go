package revenue

import (
	"errors"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/lock"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound            = types.ErrNotFound
	ErrAlreadyExists       = types.ErrAlreadyExists
	ErrInvalidInput        = types.ErrInvalidInput
	ErrConcurrencyConflict = types.ErrConcurrencyConflict
	ErrStoreUnavailable    = types.ErrStoreUnavailable
	ErrLockNotObtained     = lock.ErrNotObtained

	// Bill errors
	ErrBillNotFound      = bill.ErrNotFound
	ErrBillLocked        = bill.ErrLocked
	ErrBillNotDraft      = bill.ErrNotDraft
	ErrBillCancelled     = bill.ErrCancelled
	ErrOverpayment       = bill.ErrOverpayment
	ErrHasPayments       = bill.ErrHasPayments
	ErrHasLinkedBills    = bill.ErrHasLinkedBills
	ErrAlreadyLinked     = bill.ErrAlreadyLinked
	ErrNotMasterBill     = bill.ErrNotMaster
	ErrNotDepartmentBill = bill.ErrNotDepartment

	// Workflow errors
	ErrDisallowedTransition = workflow.ErrDisallowedTransition
	ErrAnomalyNotFound      = anomaly.ErrNotFound
	ErrAnomalyClosed        = anomaly.ErrClosed
	ErrCodingNotFound       = coding.ErrNotFound
	ErrCodingNotEditable    = coding.ErrNotEditable
	ErrCodingNotApproved    = coding.ErrNotApproved

	// Tariff errors
	ErrTariffNotFound = tariff.ErrNotFound
)

// ValidationError represents malformed input. No state is changed when
// one is returned.
type ValidationError = types.ValidationError

// InfrastructureError wraps a store failure.
type InfrastructureError = types.InfrastructureError

// TransitionError reports a workflow move that is not in the table.
type TransitionError = workflow.TransitionError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if the error is caused by caller input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDisallowedTransition returns true if a workflow move was rejected by
// the transition table.
func IsDisallowedTransition(err error) bool {
	return errors.Is(err, ErrDisallowedTransition)
}

// IsConflict returns true if a versioned write lost to a concurrent one
// after every retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrLockNotObtained)
}
