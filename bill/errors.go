package bill

import (
	"errors"

	"github.com/xraph/revenue/types"
)

var (
	ErrNotFound       = types.NotFound("bill")
	ErrLocked         = errors.New("revenue: bill is locked")
	ErrNotDraft       = errors.New("revenue: bill is not a draft")
	ErrCancelled      = errors.New("revenue: bill is cancelled")
	ErrOverpayment    = errors.New("revenue: payment exceeds balance")
	ErrHasPayments    = errors.New("revenue: bill has payments")
	ErrHasLinkedBills = errors.New("revenue: master bill has linked department bills")
	ErrAlreadyLinked  = errors.New("revenue: department bill is linked to another master")
	ErrNotMaster      = errors.New("revenue: not a master bill")
	ErrNotDepartment  = errors.New("revenue: not a department bill")
)
