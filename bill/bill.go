package bill

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
)

// NewDepartment returns an empty draft department bill.
func NewDepartment(dept Department, patientID, encounterID, currency, number, actor string, now time.Time) *Bill {
	return newBill(KindDepartment, dept, patientID, encounterID, currency, number, actor, now)
}

// NewMaster returns an empty draft master bill for an encounter.
func NewMaster(patientID, encounterID, currency, number, actor string, now time.Time) *Bill {
	return newBill(KindMaster, DepartmentGeneral, patientID, encounterID, currency, number, actor, now)
}

func newBill(kind Kind, dept Department, patientID, encounterID, currency, number, actor string, now time.Time) *Bill {
	zero := types.Zero(currency)
	b := &Bill{
		Entity:      types.NewEntity(now),
		ID:          id.NewBillID(),
		Number:      number,
		Kind:        kind,
		Department:  dept,
		PatientID:   patientID,
		EncounterID: encounterID,
		Currency:    zero.Currency,
		Status:      StatusDraft,
		Rollup:      Rollup{Subtotal: zero, Discount: zero, Tax: zero, Paid: zero},
	}
	if kind == KindMaster {
		b.DepartmentPayments = make(map[Department]DepartmentSummary)
	}
	b.Recalculate()
	b.Audit.Record(audit.ActionCreated, actor, now, map[string]any{
		"number":     number,
		"kind":       string(kind),
		"department": string(dept),
	})
	return b
}

// DerivePaymentStatus applies the payment-status rule: nothing paid is
// pending, paid at or above the grand total is paid, anything between
// is partial.
func DerivePaymentStatus(paid, grand types.Money) PaymentStatus {
	switch {
	case paid.Amount <= 0:
		return PaymentPending
	case paid.Amount >= grand.Amount:
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// IsMaster reports whether b is an encounter master bill.
func (b *Bill) IsMaster() bool { return b.Kind == KindMaster }

// IsOpenDepartment reports whether b is a department bill that still
// accepts items: draft and not locked by full payment.
func (b *Bill) IsOpenDepartment() bool {
	return !b.IsMaster() && b.Status == StatusDraft && !b.IsLocked
}

// OwnPaid sums payments recorded directly on b.
func (b *Bill) OwnPaid() types.Money {
	paid := types.Zero(b.Currency)
	for _, p := range b.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// OwnBalance is what b can still collect directly: its own items net of
// discount plus tax, less its own payments. On a master bill the linked
// department balances are excluded; those are paid on the department bills.
func (b *Bill) OwnBalance() types.Money {
	due := types.Zero(b.Currency)
	for _, it := range b.Items {
		due = due.Add(it.Rate.Multiply(it.Quantity).Subtract(it.Discount).Add(it.Tax))
	}
	return due.Subtract(b.OwnPaid())
}

// Recalculate recomputes every derived field from items, payments and,
// for a master bill, the rollup. It always starts from scratch.
func (b *Bill) Recalculate() {
	sub := types.Zero(b.Currency)
	disc := types.Zero(b.Currency)
	tax := types.Zero(b.Currency)

	for i := range b.Items {
		it := &b.Items[i]
		it.Amount = it.Rate.Multiply(it.Quantity)
		it.NetAmount = it.Amount.Subtract(it.Discount).Add(it.Tax)
		sub = sub.Add(it.Amount)
		disc = disc.Add(it.Discount)
		tax = tax.Add(it.Tax)
	}

	paid := b.OwnPaid()
	if b.IsMaster() {
		sub = sub.Add(b.Rollup.Subtotal)
		disc = disc.Add(b.Rollup.Discount)
		tax = tax.Add(b.Rollup.Tax)
		paid = paid.Add(b.Rollup.Paid)
	}

	b.Subtotal = sub
	b.TotalDiscount = disc
	b.TotalTax = tax
	b.GrandTotal = sub.Subtract(disc).Add(tax)
	b.PaidAmount = paid
	b.BalanceAmount = b.GrandTotal.Subtract(paid)
	b.PaymentStatus = DerivePaymentStatus(paid, b.GrandTotal)
}

// HasItemKey reports whether an item with idempotency key key exists.
func (b *Bill) HasItemKey(key string) bool {
	if key == "" {
		return false
	}
	return slices.ContainsFunc(b.Items, func(it LineItem) bool { return it.IdempotencyKey == key })
}

// AddItem appends item and recomputes totals. It returns false without
// error when an item with the same idempotency key is already present.
func (b *Bill) AddItem(item LineItem, actor string, now time.Time) (bool, error) {
	if b.IsLocked {
		return false, ErrLocked
	}
	if b.Status != StatusDraft {
		return false, fmt.Errorf("%w: status is %s", ErrNotDraft, b.Status)
	}
	if err := b.validateItem(&item); err != nil {
		return false, err
	}
	if b.HasItemKey(item.IdempotencyKey) {
		return false, nil
	}

	if item.ID.IsNil() {
		item.ID = id.NewLineItemID()
	}
	item.AddedBy = actor
	item.AddedAt = now.UTC()
	prevTotal := b.GrandTotal

	b.Items = append(b.Items, item)
	b.Recalculate()
	b.Touch(now)

	b.Audit.Change(audit.ActionItemAdded, actor, now, prevTotal.FormatMajor(), b.GrandTotal.FormatMajor(), map[string]any{
		"item_id":         item.ID.String(),
		"item_type":       string(item.ItemType),
		"description":     item.Description,
		"quantity":        item.Quantity,
		"rate":            item.Rate.Amount,
		"net_amount":      b.Items[len(b.Items)-1].NetAmount.Amount,
		"idempotency_key": item.IdempotencyKey,
	})
	return true, nil
}

func (b *Bill) validateItem(item *LineItem) error {
	item.Description = strings.TrimSpace(item.Description)
	if item.Description == "" {
		return types.NewValidationError("description", "is required")
	}
	if item.ItemType == "" {
		item.ItemType = ItemOther
	}
	if !item.ItemType.Valid() {
		return types.NewValidationError("item_type", fmt.Sprintf("unknown item type %q", item.ItemType))
	}
	if item.Quantity < 1 {
		return types.NewValidationError("quantity", "must be at least 1")
	}

	for _, m := range []struct {
		field string
		v     *types.Money
	}{{"rate", &item.Rate}, {"discount", &item.Discount}, {"tax", &item.Tax}} {
		if m.v.Currency == "" {
			m.v.Currency = b.Currency
		}
		if m.v.Currency != b.Currency {
			return types.NewValidationError(m.field, fmt.Sprintf("currency %s does not match bill currency %s", m.v.Currency, b.Currency))
		}
		if m.v.IsNegative() {
			return types.NewValidationError(m.field, "must not be negative")
		}
	}
	if item.Discount.Amount > item.Rate.Amount*item.Quantity {
		return types.NewValidationError("discount", "exceeds item amount")
	}
	return nil
}

// RecordPayment applies a payment. The bill locks once the paid amount
// reaches the grand total; a locked bill accepts no further items.
func (b *Bill) RecordPayment(p Payment, actor string, now time.Time) error {
	if b.Status == StatusCancelled {
		return ErrCancelled
	}
	if p.Amount.Currency == "" {
		p.Amount.Currency = b.Currency
	}
	if p.Amount.Currency != b.Currency {
		return types.NewValidationError("amount", fmt.Sprintf("currency %s does not match bill currency %s", p.Amount.Currency, b.Currency))
	}
	if p.Amount.Amount <= 0 {
		return types.NewValidationError("amount", "must be positive")
	}
	if p.Mode == "" {
		p.Mode = ModeCash
	}
	if !p.Mode.Valid() {
		return types.NewValidationError("mode", fmt.Sprintf("unknown payment mode %q", p.Mode))
	}
	if p.ReceiptNumber == "" {
		return types.NewValidationError("receipt_number", "is required")
	}
	if due := b.OwnBalance(); p.Amount.Amount > due.Amount {
		return &types.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("%s exceeds balance %s", p.Amount, due),
			Err:     ErrOverpayment,
		}
	}

	if p.ID.IsNil() {
		p.ID = id.NewPaymentID()
	}
	if p.ReceivedBy == "" {
		p.ReceivedBy = actor
	}
	p.ReceivedAt = now.UTC()
	prevPaid := b.PaidAmount

	b.Payments = append(b.Payments, p)
	b.Recalculate()
	b.Touch(now)

	details := map[string]any{
		"payment_id":     p.ID.String(),
		"amount":         p.Amount.Amount,
		"mode":           string(p.Mode),
		"receipt_number": p.ReceiptNumber,
	}
	if b.PaidAmount.Amount >= b.GrandTotal.Amount && !b.IsLocked {
		at := now.UTC()
		b.IsLocked = true
		b.LockedAt = &at
		details["locked"] = true
	}
	b.Audit.Change(audit.ActionPaymentRecorded, actor, now, prevPaid.FormatMajor(), b.PaidAmount.FormatMajor(), details)
	return nil
}

// Finalize closes a draft bill to further items.
func (b *Bill) Finalize(actor string, now time.Time) error {
	if b.Status != StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrNotDraft, b.Status)
	}
	at := now.UTC()
	b.Status = StatusFinalized
	b.FinalizedAt = &at
	b.Touch(now)
	b.Audit.Change(audit.ActionFinalized, actor, now, string(StatusDraft), string(StatusFinalized), map[string]any{
		"grand_total": b.GrandTotal.Amount,
	})
	return nil
}

// Cancel voids a draft bill that has taken no money.
func (b *Bill) Cancel(reason, actor string, now time.Time) error {
	if b.Status != StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrNotDraft, b.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return types.NewValidationError("reason", "is required")
	}
	if len(b.Payments) > 0 || b.PaidAmount.IsPositive() {
		return ErrHasPayments
	}
	if len(b.LinkedBills) > 0 {
		return ErrHasLinkedBills
	}
	if !b.MasterID.IsNil() {
		return fmt.Errorf("%w: linked to %s", ErrAlreadyLinked, b.MasterID)
	}
	at := now.UTC()
	b.Status = StatusCancelled
	b.CancelledAt = &at
	b.CancelReason = reason
	b.Touch(now)
	b.Audit.Change(audit.ActionCancelled, actor, now, string(StatusDraft), string(StatusCancelled), map[string]any{
		"reason": reason,
	})
	return nil
}

// IsLinked reports whether deptID is in the master's linked set.
func (b *Bill) IsLinked(deptID id.BillID) bool {
	return slices.ContainsFunc(b.LinkedBills, func(x id.BillID) bool { return x.String() == deptID.String() })
}

// Link adds a department bill to a master bill's linked set. It returns
// false without error when the bill is already linked.
func (b *Bill) Link(dept *Bill, actor string, now time.Time) (bool, error) {
	if !b.IsMaster() {
		return false, ErrNotMaster
	}
	if dept.IsMaster() {
		return false, ErrNotDepartment
	}
	if b.Status == StatusCancelled {
		return false, ErrCancelled
	}
	if dept.EncounterID != b.EncounterID {
		return false, types.NewValidationError("encounter_id",
			fmt.Sprintf("department bill belongs to encounter %s, master to %s", dept.EncounterID, b.EncounterID))
	}
	if dept.Currency != b.Currency {
		return false, types.NewValidationError("currency", "department and master bills differ in currency")
	}
	if !dept.MasterID.IsNil() && dept.MasterID.String() != b.ID.String() {
		return false, fmt.Errorf("%w: %s", ErrAlreadyLinked, dept.MasterID)
	}
	if b.IsLinked(dept.ID) {
		return false, nil
	}

	b.LinkedBills = append(b.LinkedBills, dept.ID)
	b.Touch(now)
	b.Audit.Record(audit.ActionDepartmentLinked, actor, now, map[string]any{
		"bill_id":    dept.ID.String(),
		"number":     dept.Number,
		"department": string(dept.Department),
	})
	return true, nil
}

// AttachTo records the master back-reference on a department bill. It
// returns false without error when already attached to master.
func (b *Bill) AttachTo(master *Bill, actor string, now time.Time) (bool, error) {
	if b.IsMaster() {
		return false, ErrNotDepartment
	}
	if !b.MasterID.IsNil() {
		if b.MasterID.String() == master.ID.String() {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", ErrAlreadyLinked, b.MasterID)
	}
	b.MasterID = master.ID
	b.Touch(now)
	b.Audit.Record(audit.ActionDepartmentLinked, actor, now, map[string]any{
		"master_id": master.ID.String(),
		"number":    master.Number,
	})
	return true, nil
}

// Clone returns a deep copy of b.
func (b *Bill) Clone() *Bill {
	c := *b
	c.Items = slices.Clone(b.Items)
	c.Payments = slices.Clone(b.Payments)
	c.LinkedBills = slices.Clone(b.LinkedBills)
	c.Audit = b.Audit.Clone()
	if b.DepartmentPayments != nil {
		c.DepartmentPayments = make(map[Department]DepartmentSummary, len(b.DepartmentPayments))
		for k, v := range b.DepartmentPayments {
			c.DepartmentPayments[k] = v
		}
	}
	c.LockedAt = cloneTime(b.LockedAt)
	c.FinalizedAt = cloneTime(b.FinalizedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
