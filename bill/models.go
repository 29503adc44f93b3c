// Package bill holds the hospital bill: department bills raised by
// pharmacy, laboratory and radiology orders, and the encounter-level
// master bill that rolls them up.
//
// Totals and payment state are derived, never patched. Every mutating
// method recomputes them through Recalculate and appends exactly one
// audit entry; none of them perform I/O.
package bill

import (
	"time"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
)

type Kind string

const (
	KindDepartment Kind = "department"
	KindMaster     Kind = "master"
)

type Department string

const (
	DepartmentPharmacy     Department = "pharmacy"
	DepartmentLaboratory   Department = "laboratory"
	DepartmentRadiology    Department = "radiology"
	DepartmentConsultation Department = "consultation"
	DepartmentProcedure    Department = "procedure"
	DepartmentGeneral      Department = "general"
)

// Departments returns every department a bill can belong to.
func Departments() []Department {
	return []Department{
		DepartmentPharmacy, DepartmentLaboratory, DepartmentRadiology,
		DepartmentConsultation, DepartmentProcedure, DepartmentGeneral,
	}
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

type ItemType string

const (
	ItemConsultation ItemType = "consultation"
	ItemProcedure    ItemType = "procedure"
	ItemLab          ItemType = "lab"
	ItemRadiology    ItemType = "radiology"
	ItemMedicine     ItemType = "medicine"
	ItemBed          ItemType = "bed"
	ItemSurgery      ItemType = "surgery"
	ItemNursing      ItemType = "nursing"
	ItemConsumables  ItemType = "consumables"
	ItemOther        ItemType = "other"
)

var itemTypes = map[ItemType]bool{
	ItemConsultation: true, ItemProcedure: true, ItemLab: true, ItemRadiology: true,
	ItemMedicine: true, ItemBed: true, ItemSurgery: true, ItemNursing: true,
	ItemConsumables: true, ItemOther: true,
}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool { return itemTypes[t] }

type PaymentMode string

const (
	ModeCash         PaymentMode = "cash"
	ModeCard         PaymentMode = "card"
	ModeUPI          PaymentMode = "upi"
	ModeBankTransfer PaymentMode = "bank_transfer"
	ModeInsurance    PaymentMode = "insurance"
	ModeCheque       PaymentMode = "cheque"
)

var paymentModes = map[PaymentMode]bool{
	ModeCash: true, ModeCard: true, ModeUPI: true,
	ModeBankTransfer: true, ModeInsurance: true, ModeCheque: true,
}

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool { return paymentModes[m] }

// SourceRef points at the clinical record that produced a line item.
type SourceRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type LineItem struct {
	ID                id.LineItemID `json:"id"`
	ItemType          ItemType      `json:"item_type"`
	Source            SourceRef     `json:"source,omitempty"`
	Description       string        `json:"description"`
	TariffCode        string        `json:"tariff_code,omitempty"`
	Quantity          int64         `json:"quantity"`
	Rate              types.Money   `json:"rate"`
	Discount          types.Money   `json:"discount"`
	Tax               types.Money   `json:"tax"`
	Amount            types.Money   `json:"amount"`
	NetAmount         types.Money   `json:"net_amount"`
	IsSystemGenerated bool          `json:"is_system_generated"`
	IdempotencyKey    string        `json:"idempotency_key,omitempty"`
	AddedBy           string        `json:"added_by"`
	AddedAt           time.Time     `json:"added_at"`
}

type Payment struct {
	ID            id.PaymentID `json:"id"`
	Amount        types.Money  `json:"amount"`
	Mode          PaymentMode  `json:"mode"`
	ReceiptNumber string       `json:"receipt_number"`
	Reference     string       `json:"reference,omitempty"`
	ReceivedBy    string       `json:"received_by"`
	ReceivedAt    time.Time    `json:"received_at"`
}

// DepartmentSummary is one bucket of a master bill's payment summary.
type DepartmentSummary struct {
	Total  types.Money   `json:"total"`
	Paid   types.Money   `json:"paid"`
	Status PaymentStatus `json:"status"`
	Bills  int           `json:"bills"`
}

// Rollup is the sum of every linked department bill, folded into the
// master bill's own totals by Recalculate.
type Rollup struct {
	Subtotal types.Money `json:"subtotal"`
	Discount types.Money `json:"discount"`
	Tax      types.Money `json:"tax"`
	Paid     types.Money `json:"paid"`
}

type Bill struct {
	types.Entity
	ID          id.BillID  `json:"id"`
	Number      string     `json:"number"`
	Kind        Kind       `json:"kind"`
	Department  Department `json:"department"`
	PatientID   string     `json:"patient_id"`
	EncounterID string     `json:"encounter_id"`
	Currency    string     `json:"currency"`

	Items         []LineItem    `json:"items"`
	Subtotal      types.Money   `json:"subtotal"`
	TotalDiscount types.Money   `json:"total_discount"`
	TotalTax      types.Money   `json:"total_tax"`
	GrandTotal    types.Money   `json:"grand_total"`
	PaidAmount    types.Money   `json:"paid_amount"`
	BalanceAmount types.Money   `json:"balance_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Payments      []Payment     `json:"payments"`

	Status       Status     `json:"status"`
	IsLocked     bool       `json:"is_locked"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	// MasterID is set on a department bill once it is linked.
	MasterID id.BillID `json:"master_id,omitempty"`

	// Master-only rollup state.
	LinkedBills        []id.BillID                      `json:"linked_bills,omitempty"`
	DepartmentPayments map[Department]DepartmentSummary `json:"department_payments,omitempty"`
	Rollup             Rollup                           `json:"rollup"`

	Audit audit.Trail `json:"audit"`
}

type ListOpts struct {
	PatientID   string
	EncounterID string
	Kind        Kind
	Department  Department
	Status      Status
	Limit       int
	Offset      int
}
