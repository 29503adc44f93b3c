package bill

import (
	"context"

	"github.com/xraph/revenue/id"
)

// Store persists bills. Implementations return fully hydrated bills with
// items, payments and the audit trail.
type Store interface {
	// CreateBill inserts b. It returns ErrAlreadyExists when the encounter
	// already has a master bill, or when an open department bill already
	// exists for the same encounter and department.
	CreateBill(ctx context.Context, b *Bill) error
	GetBill(ctx context.Context, billID id.BillID) (*Bill, error)
	GetBillByNumber(ctx context.Context, number string) (*Bill, error)
	GetMasterBill(ctx context.Context, encounterID string) (*Bill, error)
	// FindOpenDepartmentBill returns the draft, unlocked bill for the
	// encounter and department.
	FindOpenDepartmentBill(ctx context.Context, encounterID string, dept Department) (*Bill, error)
	// GetBills returns the bills in ids order, skipping ids that no longer exist.
	GetBills(ctx context.Context, ids []id.BillID) ([]*Bill, error)
	ListBills(ctx context.Context, opts ListOpts) ([]*Bill, error)
	// UpdateBill writes b only when the stored version equals b.Version,
	// then increments b.Version. A mismatch returns ErrConcurrencyConflict.
	UpdateBill(ctx context.Context, b *Bill) error
}
