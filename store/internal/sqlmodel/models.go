// Package sqlmodel holds the grove row models shared by the Postgres and
// SQLite stores. Scalar fields that stores filter, index or update in place
// are columns; nested collections are JSON documents.
package sqlmodel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// Table names.
const (
	SequencesTable = "rev_sequences"
	BillsTable     = "rev_bills"
	AnomaliesTable = "rev_anomalies"
	CodingsTable   = "rev_codings"
	TariffsTable   = "rev_tariffs"
)

// ==================== Bill models ====================

type BillModel struct {
	grove.BaseModel `grove:"table:rev_bills"`

	ID            string     `grove:"id,pk"`
	Number        string     `grove:"number"`
	Kind          string     `grove:"kind"`
	Department    string     `grove:"department"`
	PatientID     string     `grove:"patient_id"`
	EncounterID   string     `grove:"encounter_id"`
	Currency      string     `grove:"currency"`
	Subtotal      int64      `grove:"subtotal"`
	TotalDiscount int64      `grove:"total_discount"`
	TotalTax      int64      `grove:"total_tax"`
	GrandTotal    int64      `grove:"grand_total"`
	PaidAmount    int64      `grove:"paid_amount"`
	BalanceAmount int64      `grove:"balance_amount"`
	PaymentStatus string     `grove:"payment_status"`
	Status        string     `grove:"status"`
	IsLocked      bool       `grove:"is_locked"`
	LockedAt      *time.Time `grove:"locked_at"`
	FinalizedAt   *time.Time `grove:"finalized_at"`
	CancelledAt   *time.Time `grove:"cancelled_at"`
	CancelReason  string     `grove:"cancel_reason"`
	MasterID      string     `grove:"master_id"`

	Items              string `grove:"items,type:jsonb"`
	Payments           string `grove:"payments,type:jsonb"`
	LinkedBills        string `grove:"linked_bills,type:jsonb"`
	DepartmentPayments string `grove:"department_payments,type:jsonb"`
	Rollup             string `grove:"rollup,type:jsonb"`
	Audit              string `grove:"audit,type:jsonb"`

	Version   int64     `grove:"version"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func ToBillModel(b *bill.Bill) (*BillModel, error) {
	var enc encoder
	m := &BillModel{
		ID:                 b.ID.String(),
		Number:             b.Number,
		Kind:               string(b.Kind),
		Department:         string(b.Department),
		PatientID:          b.PatientID,
		EncounterID:        b.EncounterID,
		Currency:           b.Currency,
		Subtotal:           b.Subtotal.Amount,
		TotalDiscount:      b.TotalDiscount.Amount,
		TotalTax:           b.TotalTax.Amount,
		GrandTotal:         b.GrandTotal.Amount,
		PaidAmount:         b.PaidAmount.Amount,
		BalanceAmount:      b.BalanceAmount.Amount,
		PaymentStatus:      string(b.PaymentStatus),
		Status:             string(b.Status),
		IsLocked:           b.IsLocked,
		LockedAt:           utcPtr(b.LockedAt),
		FinalizedAt:        utcPtr(b.FinalizedAt),
		CancelledAt:        utcPtr(b.CancelledAt),
		CancelReason:       b.CancelReason,
		Items:              enc.array("items", b.Items),
		Payments:           enc.array("payments", b.Payments),
		LinkedBills:        enc.array("linked_bills", b.LinkedBills),
		DepartmentPayments: enc.object("department_payments", b.DepartmentPayments),
		Rollup:             enc.object("rollup", b.Rollup),
		Audit:              enc.array("audit", b.Audit),
		Version:            b.Version,
		CreatedAt:          b.CreatedAt.UTC(),
		UpdatedAt:          b.UpdatedAt.UTC(),
	}
	if !b.MasterID.IsNil() {
		m.MasterID = b.MasterID.String()
	}
	return m, enc.err
}

func FromBillModel(m *BillModel) (*bill.Bill, error) {
	billID, err := id.ParseBillID(m.ID)
	if err != nil {
		return nil, err
	}
	masterID, err := id.ParseOptional(m.MasterID, id.PrefixBill)
	if err != nil {
		return nil, err
	}

	money := func(amount int64) types.Money { return types.Money{Amount: amount, Currency: m.Currency} }
	b := &bill.Bill{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
			Version:   m.Version,
		},
		ID:            billID,
		Number:        m.Number,
		Kind:          bill.Kind(m.Kind),
		Department:    bill.Department(m.Department),
		PatientID:     m.PatientID,
		EncounterID:   m.EncounterID,
		Currency:      m.Currency,
		Subtotal:      money(m.Subtotal),
		TotalDiscount: money(m.TotalDiscount),
		TotalTax:      money(m.TotalTax),
		GrandTotal:    money(m.GrandTotal),
		PaidAmount:    money(m.PaidAmount),
		BalanceAmount: money(m.BalanceAmount),
		PaymentStatus: bill.PaymentStatus(m.PaymentStatus),
		Status:        bill.Status(m.Status),
		IsLocked:      m.IsLocked,
		LockedAt:      utcPtr(m.LockedAt),
		FinalizedAt:   utcPtr(m.FinalizedAt),
		CancelledAt:   utcPtr(m.CancelledAt),
		CancelReason:  m.CancelReason,
		MasterID:      masterID,
	}

	var dec decoder
	dec.decode("items", m.Items, &b.Items)
	dec.decode("payments", m.Payments, &b.Payments)
	dec.decode("linked_bills", m.LinkedBills, &b.LinkedBills)
	dec.decode("department_payments", m.DepartmentPayments, &b.DepartmentPayments)
	dec.decode("rollup", m.Rollup, &b.Rollup)
	dec.decode("audit", m.Audit, &b.Audit)
	if dec.err != nil {
		return nil, dec.err
	}
	if len(b.DepartmentPayments) == 0 {
		b.DepartmentPayments = nil
	}
	return b, nil
}

// ==================== Anomaly models ====================

type AnomalyModel struct {
	grove.BaseModel `grove:"table:rev_anomalies"`

	ID               string     `grove:"id,pk"`
	Number           string     `grove:"number"`
	Status           string     `grove:"status"`
	Category         string     `grove:"category"`
	Severity         string     `grove:"severity"`
	Priority         int        `grove:"priority"`
	Source           string     `grove:"source"`
	PatientID        string     `grove:"patient_id"`
	EncounterID      string     `grove:"encounter_id"`
	AffectedRef      string     `grove:"affected_ref"`
	ImpactAmount     int64      `grove:"impact_amount"`
	ImpactCurrency   string     `grove:"impact_currency"`
	Score            float64    `grove:"score"`
	Description      string     `grove:"description"`
	Evidence         string     `grove:"evidence,type:jsonb"`
	AssignedTo       string     `grove:"assigned_to"`
	Resolution       string     `grove:"resolution,type:jsonb"`
	Dismissal        string     `grove:"dismissal,type:jsonb"`
	EscalationReason string     `grove:"escalation_reason"`
	ClosedAt         *time.Time `grove:"closed_at"`
	OpenKey          string     `grove:"open_key"`
	DueBy            time.Time  `grove:"due_by"`
	IsOverdue        bool       `grove:"is_overdue"`
	History          string     `grove:"history,type:jsonb"`
	Audit            string     `grove:"audit,type:jsonb"`

	Version   int64     `grove:"version"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func ToAnomalyModel(a *anomaly.Anomaly) (*AnomalyModel, error) {
	var enc encoder
	m := &AnomalyModel{
		ID:               a.ID.String(),
		Number:           a.Number,
		Status:           string(a.Status),
		Category:         string(a.Category),
		Severity:         string(a.Severity),
		Priority:         a.Priority,
		Source:           string(a.Source),
		PatientID:        a.PatientID,
		EncounterID:      a.EncounterID,
		AffectedRef:      a.AffectedRef,
		ImpactAmount:     a.EstimatedImpact.Amount,
		ImpactCurrency:   a.EstimatedImpact.Currency,
		Score:            a.Score,
		Description:      a.Description,
		Evidence:         enc.object("evidence", a.Evidence),
		AssignedTo:       a.AssignedTo,
		Resolution:       enc.object("resolution", a.Resolution),
		Dismissal:        enc.object("dismissal", a.Dismissal),
		EscalationReason: a.EscalationReason,
		ClosedAt:         utcPtr(a.ClosedAt),
		OpenKey:          a.OpenKey,
		DueBy:            a.DueBy.UTC(),
		IsOverdue:        a.IsOverdue,
		History:          enc.array("history", a.History),
		Audit:            enc.array("audit", a.Audit),
		Version:          a.Version,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
	return m, enc.err
}

func FromAnomalyModel(m *AnomalyModel) (*anomaly.Anomaly, error) {
	anomalyID, err := id.ParseAnomalyID(m.ID)
	if err != nil {
		return nil, err
	}
	a := &anomaly.Anomaly{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
			Version:   m.Version,
		},
		ID:               anomalyID,
		Number:           m.Number,
		Status:           anomaly.Status(m.Status),
		Category:         anomaly.Category(m.Category),
		Severity:         anomaly.Severity(m.Severity),
		Priority:         m.Priority,
		Source:           anomaly.Source(m.Source),
		PatientID:        m.PatientID,
		EncounterID:      m.EncounterID,
		AffectedRef:      m.AffectedRef,
		EstimatedImpact:  types.Money{Amount: m.ImpactAmount, Currency: m.ImpactCurrency},
		Score:            m.Score,
		Description:      m.Description,
		AssignedTo:       m.AssignedTo,
		EscalationReason: m.EscalationReason,
		ClosedAt:         utcPtr(m.ClosedAt),
		OpenKey:          m.OpenKey,
		DueBy:            m.DueBy.UTC(),
		IsOverdue:        m.IsOverdue,
	}

	var dec decoder
	dec.decode("evidence", m.Evidence, &a.Evidence)
	dec.decode("resolution", m.Resolution, &a.Resolution)
	dec.decode("dismissal", m.Dismissal, &a.Dismissal)
	dec.decode("history", m.History, &a.History)
	dec.decode("audit", m.Audit, &a.Audit)
	if dec.err != nil {
		return nil, dec.err
	}
	return a, nil
}

// ==================== Coding models ====================

type CodingModel struct {
	grove.BaseModel `grove:"table:rev_codings"`

	ID           string     `grove:"id,pk"`
	Number       string     `grove:"number"`
	Status       string     `grove:"status"`
	PatientID    string     `grove:"patient_id"`
	EncounterID  string     `grove:"encounter_id"`
	MasterBillID string     `grove:"master_bill_id"`
	Procedures   string     `grove:"procedure_codes,type:jsonb"`
	Diagnoses    string     `grove:"diagnosis_codes,type:jsonb"`
	Coder        string     `grove:"coder"`
	Reviewer     string     `grove:"reviewer"`
	ReturnReason string     `grove:"return_reason"`
	SubmittedAt  *time.Time `grove:"submitted_at"`
	ApprovedAt   *time.Time `grove:"approved_at"`
	SyncStatus   string     `grove:"sync_status"`
	BillingSync  string     `grove:"billing_sync,type:jsonb"`
	DueBy        time.Time  `grove:"due_by"`
	IsOverdue    bool       `grove:"is_overdue"`
	History      string     `grove:"history,type:jsonb"`
	Audit        string     `grove:"audit,type:jsonb"`

	Version   int64     `grove:"version"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func ToCodingModel(r *coding.Record) (*CodingModel, error) {
	var enc encoder
	m := &CodingModel{
		ID:           r.ID.String(),
		Number:       r.Number,
		Status:       string(r.Status),
		PatientID:    r.PatientID,
		EncounterID:  r.EncounterID,
		Procedures:   enc.array("procedure_codes", r.Procedures),
		Diagnoses:    enc.array("diagnosis_codes", r.Diagnoses),
		Coder:        r.Coder,
		Reviewer:     r.Reviewer,
		ReturnReason: r.ReturnReason,
		SubmittedAt:  utcPtr(r.SubmittedAt),
		ApprovedAt:   utcPtr(r.ApprovedAt),
		SyncStatus:   string(r.BillingSync.Status),
		BillingSync:  enc.object("billing_sync", r.BillingSync),
		DueBy:        r.DueBy.UTC(),
		IsOverdue:    r.IsOverdue,
		History:      enc.array("history", r.History),
		Audit:        enc.array("audit", r.Audit),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if !r.MasterBillID.IsNil() {
		m.MasterBillID = r.MasterBillID.String()
	}
	return m, enc.err
}

func FromCodingModel(m *CodingModel) (*coding.Record, error) {
	codingID, err := id.ParseCodingID(m.ID)
	if err != nil {
		return nil, err
	}
	masterID, err := id.ParseOptional(m.MasterBillID, id.PrefixBill)
	if err != nil {
		return nil, err
	}
	r := &coding.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
			Version:   m.Version,
		},
		ID:           codingID,
		Number:       m.Number,
		Status:       coding.Status(m.Status),
		PatientID:    m.PatientID,
		EncounterID:  m.EncounterID,
		MasterBillID: masterID,
		Coder:        m.Coder,
		Reviewer:     m.Reviewer,
		ReturnReason: m.ReturnReason,
		SubmittedAt:  utcPtr(m.SubmittedAt),
		ApprovedAt:   utcPtr(m.ApprovedAt),
		DueBy:        m.DueBy.UTC(),
		IsOverdue:    m.IsOverdue,
	}

	var dec decoder
	dec.decode("procedure_codes", m.Procedures, &r.Procedures)
	dec.decode("diagnosis_codes", m.Diagnoses, &r.Diagnoses)
	dec.decode("billing_sync", m.BillingSync, &r.BillingSync)
	dec.decode("history", m.History, &r.History)
	dec.decode("audit", m.Audit, &r.Audit)
	if dec.err != nil {
		return nil, dec.err
	}
	return r, nil
}

// ==================== Tariff models ====================

type TariffModel struct {
	grove.BaseModel `grove:"table:rev_tariffs"`

	ID         string    `grove:"id,pk"`
	Code       string    `grove:"code"`
	Name       string    `grove:"name"`
	ItemType   string    `grove:"item_type"`
	Department string    `grove:"department"`
	RateAmount int64     `grove:"rate_amount"`
	Currency   string    `grove:"currency"`
	TaxPercent string    `grove:"tax_percent"`
	Status     string    `grove:"status"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func ToTariffModel(t *tariff.Tariff) *TariffModel {
	return &TariffModel{
		ID:         t.ID.String(),
		Code:       t.Code,
		Name:       t.Name,
		ItemType:   string(t.ItemType),
		Department: string(t.Department),
		RateAmount: t.Rate.Amount,
		Currency:   t.Rate.Currency,
		TaxPercent: t.TaxPercent,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt.UTC(),
		UpdatedAt:  t.UpdatedAt.UTC(),
	}
}

func FromTariffModel(m *TariffModel) (*tariff.Tariff, error) {
	tariffID, err := id.ParseTariffID(m.ID)
	if err != nil {
		return nil, err
	}
	return &tariff.Tariff{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:         tariffID,
		Code:       m.Code,
		Name:       m.Name,
		ItemType:   bill.ItemType(m.ItemType),
		Department: bill.Department(m.Department),
		Rate:       types.Money{Amount: m.RateAmount, Currency: m.Currency},
		TaxPercent: m.TaxPercent,
		Status:     tariff.Status(m.Status),
	}, nil
}

// ==================== Helpers ====================

// OverdueEntry is the JSON of the audit entry the overdue sweep appends,
// wrapped in a one-element array when wrap is set.
func OverdueEntry(dueBy, now time.Time, wrap bool) (string, error) {
	var v any = audit.Overdue(dueBy, now)
	if wrap {
		v = []audit.Entry{audit.Overdue(dueBy, now)}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal overdue entry: %w", err)
	}
	return string(data), nil
}

// StatusNames converts typed statuses to the strings stored in columns.
func StatusNames[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type encoder struct{ err error }

func (e *encoder) marshal(field string, v any, empty string) string {
	if e.err != nil {
		return empty
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.err = fmt.Errorf("encode %s: %w", field, err)
		return empty
	}
	if string(data) == "null" {
		return empty
	}
	return string(data)
}

func (e *encoder) array(field string, v any) string  { return e.marshal(field, v, "[]") }
func (e *encoder) object(field string, v any) string { return e.marshal(field, v, "{}") }

type decoder struct{ err error }

func (d *decoder) decode(field, data string, dst any) {
	if d.err != nil || data == "" || data == "null" || data == "{}" {
		return
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		d.err = fmt.Errorf("decode %s: %w", field, err)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
