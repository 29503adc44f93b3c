package revenue

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// CreateBillInput opens a new draft bill.
type CreateBillInput struct {
	Kind        bill.Kind       `json:"kind"         validate:"required,oneof=department master"`
	Department  bill.Department `json:"department"   validate:"omitempty,oneof=pharmacy laboratory radiology consultation procedure general"`
	PatientID   string          `json:"patient_id"   validate:"required"`
	EncounterID string          `json:"encounter_id" validate:"required"`
	Currency    string          `json:"currency"     validate:"omitempty,len=3"`
	Actor       string          `json:"actor"        validate:"required"`
}

// LineItemInput adds one charge to a bill. A nil Rate is resolved from
// the tariff master by TariffCode, then the configured default rate.
type LineItemInput struct {
	BillID            id.BillID      `json:"bill_id"`
	ItemType          bill.ItemType  `json:"item_type"`
	Description       string         `json:"description"`
	TariffCode        string         `json:"tariff_code"`
	Quantity          int64          `json:"quantity"        validate:"gte=0"`
	Rate              *types.Money   `json:"rate"`
	Discount          types.Money    `json:"discount"`
	Tax               *types.Money   `json:"tax"`
	Source            bill.SourceRef `json:"source"`
	IdempotencyKey    string         `json:"idempotency_key"`
	IsSystemGenerated bool           `json:"is_system_generated"`
	Actor             string         `json:"actor"           validate:"required"`
}

// BillableItem is what an order collaborator reports: a charge for an
// encounter and department, without knowing which bill it lands on.
type BillableItem struct {
	PatientID      string          `json:"patient_id"      validate:"required"`
	EncounterID    string          `json:"encounter_id"    validate:"required"`
	Department     bill.Department `json:"department"      validate:"required,oneof=pharmacy laboratory radiology consultation procedure general"`
	Currency       string          `json:"currency"        validate:"omitempty,len=3"`
	ItemType       bill.ItemType   `json:"item_type"`
	Description    string          `json:"description"`
	TariffCode     string          `json:"tariff_code"`
	Quantity       int64           `json:"quantity"        validate:"gte=0"`
	Rate           *types.Money    `json:"rate"`
	Discount       types.Money     `json:"discount"`
	Source         bill.SourceRef  `json:"source"`
	IdempotencyKey string          `json:"idempotency_key"`
	Actor          string          `json:"actor"           validate:"required"`
}

// PaymentInput records money received against a bill.
type PaymentInput struct {
	BillID    id.BillID        `json:"bill_id"`
	Amount    types.Money      `json:"amount"`
	Mode      bill.PaymentMode `json:"mode"      validate:"omitempty,oneof=cash card upi bank_transfer insurance cheque"`
	Reference string           `json:"reference"`
	Actor     string           `json:"actor"     validate:"required"`
}

// ──────────────────────────────────────────────────
// Bill Management
// ──────────────────────────────────────────────────

// CreateBill opens a draft bill numbered from the bill or master_bill
// sequence.
func (e *Engine) CreateBill(ctx context.Context, in CreateBillInput) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "CreateBill",
		attribute.String("bill.kind", string(in.Kind)),
		attribute.String("encounter.id", in.EncounterID),
	)
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}
	if in.Kind == bill.KindDepartment && in.Department == "" {
		return nil, types.NewValidationError("department", "is required for a department bill")
	}
	if in.Kind == bill.KindMaster {
		return e.createMaster(ctx, in.PatientID, in.EncounterID, e.currencyOr(in.Currency), in.Actor)
	}
	return e.createDepartment(ctx, in.Department, in.PatientID, in.EncounterID, e.currencyOr(in.Currency), in.Actor)
}

// GetBill retrieves a bill by ID.
func (e *Engine) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	return e.store.GetBill(ctx, billID)
}

// GetBillByNumber retrieves a bill by its business number.
func (e *Engine) GetBillByNumber(ctx context.Context, number string) (*bill.Bill, error) {
	return e.store.GetBillByNumber(ctx, number)
}

// GetMasterBill retrieves the master bill of an encounter.
func (e *Engine) GetMasterBill(ctx context.Context, encounterID string) (*bill.Bill, error) {
	return e.store.GetMasterBill(ctx, encounterID)
}

// ListBills lists bills matching opts.
func (e *Engine) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	return e.store.ListBills(ctx, opts)
}

// AddLineItem adds a charge to a draft bill. Repeating an idempotency key
// returns the bill unchanged. When the bill is linked the master summary
// is re-synced.
func (e *Engine) AddLineItem(ctx context.Context, in LineItemInput) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "AddLineItem", attribute.String("bill.id", in.BillID.String()))
	defer func() { endSpan(span, err) }()

	b, added, err := e.addLineItem(ctx, in)
	if err != nil {
		return nil, err
	}
	if added && !b.MasterID.IsNil() {
		e.resyncMaster(ctx, b, in.Actor)
	}
	return b, nil
}

func (e *Engine) addLineItem(ctx context.Context, in LineItemInput) (*bill.Bill, bool, error) {
	if err := e.check(in); err != nil {
		return nil, false, err
	}
	if in.BillID.IsNil() {
		return nil, false, types.NewValidationError("bill_id", "is required")
	}

	item := bill.LineItem{
		ItemType:          in.ItemType,
		Source:            in.Source,
		Description:       in.Description,
		TariffCode:        in.TariffCode,
		Quantity:          in.Quantity,
		Discount:          in.Discount,
		IsSystemGenerated: in.IsSystemGenerated,
		IdempotencyKey:    in.IdempotencyKey,
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if err := e.price(ctx, &item, in.Rate, in.Tax); err != nil {
		return nil, false, err
	}

	b, added, err := mutate(ctx, e, "bill", in.BillID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, in.BillID) },
		e.store.UpdateBill,
		func(b *bill.Bill) (bool, error) { return b.AddItem(item, in.Actor, e.now()) },
	)
	if err != nil {
		return nil, false, err
	}
	if added {
		e.plugins.EmitBillItemAdded(ctx, b, b.Items[len(b.Items)-1])
	}
	return b, added, nil
}

// price fills rate, tax and a missing description from the tariff master.
// An explicit tax wins over the tariff's percentage.
func (e *Engine) price(ctx context.Context, item *bill.LineItem, rate, tax *types.Money) error {
	quote, err := tariff.Resolve(ctx, e.tariffs, item.TariffCode, rate, e.defaultRate)
	if err != nil {
		return types.Infra("resolve tariff", err)
	}
	item.Rate = quote.Rate
	if quote.Source == tariff.SourceDefault {
		e.logger.Warn("no rate supplied and no active tariff, billing default rate",
			"tariff_code", item.TariffCode,
			"description", item.Description,
			"rate", quote.Rate.String(),
		)
	}
	if item.Description == "" {
		item.Description = quote.Name
	}
	if item.Discount.Currency == "" {
		item.Discount = types.Zero(item.Rate.Currency)
	}
	switch {
	case tax != nil:
		item.Tax = *tax
	default:
		taxable := item.Rate.Multiply(item.Quantity)
		if item.Discount.SameCurrency(taxable) && !item.Discount.GreaterThan(taxable) {
			taxable = taxable.Subtract(item.Discount)
		}
		item.Tax = quote.Tax(taxable)
	}
	return nil
}

// AddBillableItem routes an order charge onto the encounter's open
// department bill, creating the bill when there is none, then links it to
// the master bill and re-syncs the summary. It returns the department bill.
func (e *Engine) AddBillableItem(ctx context.Context, in BillableItem) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "AddBillableItem",
		attribute.String("encounter.id", in.EncounterID),
		attribute.String("bill.department", string(in.Department)),
	)
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}

	dept, err := e.openDepartmentBill(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, _, err := e.addLineItem(ctx, LineItemInput{
		BillID:            dept.ID,
		ItemType:          in.ItemType,
		Description:       in.Description,
		TariffCode:        in.TariffCode,
		Quantity:          in.Quantity,
		Rate:              in.Rate,
		Discount:          in.Discount,
		Source:            in.Source,
		IdempotencyKey:    in.IdempotencyKey,
		IsSystemGenerated: true,
		Actor:             in.Actor,
	}); err != nil {
		return nil, err
	}
	if _, err := e.LinkDepartmentBill(ctx, id.Nil, dept.ID, in.Actor); err != nil {
		return nil, err
	}
	return e.store.GetBill(ctx, dept.ID)
}

func (e *Engine) openDepartmentBill(ctx context.Context, in BillableItem) (*bill.Bill, error) {
	b, err := e.store.FindOpenDepartmentBill(ctx, in.EncounterID, in.Department)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, types.Infra("find department bill", err)
	}
	b, err = e.createDepartment(ctx, in.Department, in.PatientID, in.EncounterID, e.currencyOr(in.Currency), in.Actor)
	if errors.Is(err, types.ErrAlreadyExists) {
		return e.store.FindOpenDepartmentBill(ctx, in.EncounterID, in.Department)
	}
	return b, err
}

// RecordPayment records a payment with a receipt number from the receipt
// sequence. Reaching the grand total locks the bill. A payment on a linked
// department bill re-syncs the master; a failed re-sync is logged and
// reported to plugins, and the payment stands.
func (e *Engine) RecordPayment(ctx context.Context, in PaymentInput) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "RecordPayment",
		attribute.String("bill.id", in.BillID.String()),
		attribute.Int64("payment.amount", in.Amount.Amount),
	)
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}
	if in.BillID.IsNil() {
		return nil, types.NewValidationError("bill_id", "is required")
	}
	if in.Amount.Amount <= 0 {
		return nil, types.NewValidationError("amount", "must be positive")
	}

	now := e.now()
	receipt, err := e.seq.NextNumber(ctx, sequence.DocReceipt, now)
	if err != nil {
		return nil, err
	}

	var wasLocked bool
	b, _, err := mutate(ctx, e, "bill", in.BillID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, in.BillID) },
		e.store.UpdateBill,
		func(b *bill.Bill) (bool, error) {
			wasLocked = b.IsLocked
			return true, b.RecordPayment(bill.Payment{
				Amount:        in.Amount,
				Mode:          in.Mode,
				ReceiptNumber: receipt,
				Reference:     in.Reference,
			}, in.Actor, now)
		},
	)
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment recorded",
		"bill_id", b.ID.String(),
		"receipt", receipt,
		"amount", in.Amount.String(),
		"payment_status", string(b.PaymentStatus),
	)
	e.plugins.EmitPaymentRecorded(ctx, b, b.Payments[len(b.Payments)-1])
	if b.IsLocked && !wasLocked {
		e.plugins.EmitBillLocked(ctx, b)
	}
	if !b.MasterID.IsNil() {
		e.resyncMaster(ctx, b, in.Actor)
	}
	return b, nil
}

// FinalizeBill closes a draft bill to further items.
func (e *Engine) FinalizeBill(ctx context.Context, billID id.BillID, actor string) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "FinalizeBill", attribute.String("bill.id", billID.String()))
	defer func() { endSpan(span, err) }()

	b, _, err := mutate(ctx, e, "bill", billID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, billID) },
		e.store.UpdateBill,
		func(b *bill.Bill) (bool, error) { return true, b.Finalize(actor, e.now()) },
	)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitBillFinalized(ctx, b)
	return b, nil
}

// CancelBill cancels a draft bill that has no payments and no links.
func (e *Engine) CancelBill(ctx context.Context, billID id.BillID, reason, actor string) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "CancelBill", attribute.String("bill.id", billID.String()))
	defer func() { endSpan(span, err) }()

	b, _, err := mutate(ctx, e, "bill", billID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, billID) },
		e.store.UpdateBill,
		func(b *bill.Bill) (bool, error) { return true, b.Cancel(reason, actor, e.now()) },
	)
	if err != nil {
		return nil, err
	}
	e.logger.Info("bill cancelled", "bill_id", b.ID.String(), "reason", reason)
	e.plugins.EmitBillCancelled(ctx, b)
	return b, nil
}

func (e *Engine) createDepartment(ctx context.Context, dept bill.Department, patientID, encounterID, currency, actor string) (*bill.Bill, error) {
	now := e.now()
	number, err := e.seq.NextNumber(ctx, sequence.DocBill, now)
	if err != nil {
		return nil, err
	}
	b := bill.NewDepartment(dept, patientID, encounterID, currency, number, actor, now)
	if err := e.store.CreateBill(ctx, b); err != nil {
		return nil, types.Infra("create bill", err)
	}
	e.logger.Info("bill created", "bill_id", b.ID.String(), "number", number, "department", string(dept))
	e.plugins.EmitBillCreated(ctx, b)
	return b, nil
}

func (e *Engine) currencyOr(currency string) string {
	if currency == "" {
		return e.currency
	}
	return types.Zero(currency).Currency
}
