package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

// ==================== Sequence models ====================

type sequenceModel struct {
	ID        string    `bson:"_id"`
	DocType   string    `bson:"doc_type"`
	Day       string    `bson:"day"`
	Value     int64     `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ==================== Bill models ====================

type billModel struct {
	grove.BaseModel `grove:"table:rev_bills"`

	ID            string     `grove:"id,pk"          bson:"_id"`
	Number        string     `grove:"number"         bson:"number"`
	Kind          string     `grove:"kind"           bson:"kind"`
	Department    string     `grove:"department"     bson:"department"`
	PatientID     string     `grove:"patient_id"     bson:"patient_id"`
	EncounterID   string     `grove:"encounter_id"   bson:"encounter_id"`
	Currency      string     `grove:"currency"       bson:"currency"`
	Subtotal      int64      `grove:"subtotal"       bson:"subtotal"`
	TotalDiscount int64      `grove:"total_discount" bson:"total_discount"`
	TotalTax      int64      `grove:"total_tax"      bson:"total_tax"`
	GrandTotal    int64      `grove:"grand_total"    bson:"grand_total"`
	PaidAmount    int64      `grove:"paid_amount"    bson:"paid_amount"`
	BalanceAmount int64      `grove:"balance_amount" bson:"balance_amount"`
	PaymentStatus string     `grove:"payment_status" bson:"payment_status"`
	Status        string     `grove:"status"         bson:"status"`
	IsLocked      bool       `grove:"is_locked"      bson:"is_locked"`
	LockedAt      *time.Time `grove:"locked_at"      bson:"locked_at,omitempty"`
	FinalizedAt   *time.Time `grove:"finalized_at"   bson:"finalized_at,omitempty"`
	CancelledAt   *time.Time `grove:"cancelled_at"   bson:"cancelled_at,omitempty"`
	CancelReason  string     `grove:"cancel_reason"  bson:"cancel_reason,omitempty"`
	MasterID      string     `grove:"master_id"      bson:"master_id,omitempty"`

	Items              []lineItemModel                `grove:"items"               bson:"items"`
	Payments           []paymentModel                 `grove:"payments"            bson:"payments"`
	LinkedBills        []string                       `grove:"linked_bills"        bson:"linked_bills,omitempty"`
	DepartmentPayments map[string]departmentSummModel `grove:"department_payments" bson:"department_payments,omitempty"`
	Rollup             rollupModel                    `grove:"rollup"              bson:"rollup"`
	Audit              []audit.Entry                  `grove:"audit"               bson:"audit"`

	Version   int64     `grove:"version"    bson:"version"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type lineItemModel struct {
	ID                string    `bson:"id"`
	ItemType          string    `bson:"item_type"`
	SourceKind        string    `bson:"source_kind,omitempty"`
	SourceID          string    `bson:"source_id,omitempty"`
	Description       string    `bson:"description"`
	TariffCode        string    `bson:"tariff_code,omitempty"`
	Quantity          int64     `bson:"quantity"`
	Rate              int64     `bson:"rate"`
	Discount          int64     `bson:"discount"`
	Tax               int64     `bson:"tax"`
	Amount            int64     `bson:"amount"`
	NetAmount         int64     `bson:"net_amount"`
	IsSystemGenerated bool      `bson:"is_system_generated"`
	IdempotencyKey    string    `bson:"idempotency_key,omitempty"`
	AddedBy           string    `bson:"added_by"`
	AddedAt           time.Time `bson:"added_at"`
}

type paymentModel struct {
	ID            string    `bson:"id"`
	Amount        int64     `bson:"amount"`
	Mode          string    `bson:"mode"`
	ReceiptNumber string    `bson:"receipt_number"`
	Reference     string    `bson:"reference,omitempty"`
	ReceivedBy    string    `bson:"received_by"`
	ReceivedAt    time.Time `bson:"received_at"`
}

type departmentSummModel struct {
	Total  int64  `bson:"total"`
	Paid   int64  `bson:"paid"`
	Status string `bson:"status"`
	Bills  int    `bson:"bills"`
}

type rollupModel struct {
	Subtotal int64 `bson:"subtotal"`
	Discount int64 `bson:"discount"`
	Tax      int64 `bson:"tax"`
	Paid     int64 `bson:"paid"`
}

func toBillModel(b *bill.Bill) *billModel {
	m := &billModel{
		ID:            b.ID.String(),
		Number:        b.Number,
		Kind:          string(b.Kind),
		Department:    string(b.Department),
		PatientID:     b.PatientID,
		EncounterID:   b.EncounterID,
		Currency:      b.Currency,
		Subtotal:      b.Subtotal.Amount,
		TotalDiscount: b.TotalDiscount.Amount,
		TotalTax:      b.TotalTax.Amount,
		GrandTotal:    b.GrandTotal.Amount,
		PaidAmount:    b.PaidAmount.Amount,
		BalanceAmount: b.BalanceAmount.Amount,
		PaymentStatus: string(b.PaymentStatus),
		Status:        string(b.Status),
		IsLocked:      b.IsLocked,
		LockedAt:      b.LockedAt,
		FinalizedAt:   b.FinalizedAt,
		CancelledAt:   b.CancelledAt,
		CancelReason:  b.CancelReason,
		Items:         make([]lineItemModel, len(b.Items)),
		Payments:      make([]paymentModel, len(b.Payments)),
		Rollup: rollupModel{
			Subtotal: b.Rollup.Subtotal.Amount,
			Discount: b.Rollup.Discount.Amount,
			Tax:      b.Rollup.Tax.Amount,
			Paid:     b.Rollup.Paid.Amount,
		},
		Audit:     b.Audit,
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if !b.MasterID.IsNil() {
		m.MasterID = b.MasterID.String()
	}
	for i, it := range b.Items {
		m.Items[i] = lineItemModel{
			ID:                it.ID.String(),
			ItemType:          string(it.ItemType),
			SourceKind:        it.Source.Kind,
			SourceID:          it.Source.ID,
			Description:       it.Description,
			TariffCode:        it.TariffCode,
			Quantity:          it.Quantity,
			Rate:              it.Rate.Amount,
			Discount:          it.Discount.Amount,
			Tax:               it.Tax.Amount,
			Amount:            it.Amount.Amount,
			NetAmount:         it.NetAmount.Amount,
			IsSystemGenerated: it.IsSystemGenerated,
			IdempotencyKey:    it.IdempotencyKey,
			AddedBy:           it.AddedBy,
			AddedAt:           it.AddedAt,
		}
	}
	for i, p := range b.Payments {
		m.Payments[i] = paymentModel{
			ID:            p.ID.String(),
			Amount:        p.Amount.Amount,
			Mode:          string(p.Mode),
			ReceiptNumber: p.ReceiptNumber,
			Reference:     p.Reference,
			ReceivedBy:    p.ReceivedBy,
			ReceivedAt:    p.ReceivedAt,
		}
	}
	for _, linked := range b.LinkedBills {
		m.LinkedBills = append(m.LinkedBills, linked.String())
	}
	if len(b.DepartmentPayments) > 0 {
		m.DepartmentPayments = make(map[string]departmentSummModel, len(b.DepartmentPayments))
		for dept, sum := range b.DepartmentPayments {
			m.DepartmentPayments[string(dept)] = departmentSummModel{
				Total:  sum.Total.Amount,
				Paid:   sum.Paid.Amount,
				Status: string(sum.Status),
				Bills:  sum.Bills,
			}
		}
	}
	return m
}

func fromBillModel(m *billModel) (*bill.Bill, error) {
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
		Items:         make([]bill.LineItem, len(m.Items)),
		Subtotal:      money(m.Subtotal),
		TotalDiscount: money(m.TotalDiscount),
		TotalTax:      money(m.TotalTax),
		GrandTotal:    money(m.GrandTotal),
		PaidAmount:    money(m.PaidAmount),
		BalanceAmount: money(m.BalanceAmount),
		PaymentStatus: bill.PaymentStatus(m.PaymentStatus),
		Payments:      make([]bill.Payment, len(m.Payments)),
		Status:        bill.Status(m.Status),
		IsLocked:      m.IsLocked,
		LockedAt:      utc(m.LockedAt),
		FinalizedAt:   utc(m.FinalizedAt),
		CancelledAt:   utc(m.CancelledAt),
		CancelReason:  m.CancelReason,
		MasterID:      masterID,
		Rollup: bill.Rollup{
			Subtotal: money(m.Rollup.Subtotal),
			Discount: money(m.Rollup.Discount),
			Tax:      money(m.Rollup.Tax),
			Paid:     money(m.Rollup.Paid),
		},
		Audit: m.Audit,
	}

	for i, it := range m.Items {
		itemID, err := id.ParseLineItemID(it.ID)
		if err != nil {
			return nil, err
		}
		b.Items[i] = bill.LineItem{
			ID:                itemID,
			ItemType:          bill.ItemType(it.ItemType),
			Source:            bill.SourceRef{Kind: it.SourceKind, ID: it.SourceID},
			Description:       it.Description,
			TariffCode:        it.TariffCode,
			Quantity:          it.Quantity,
			Rate:              money(it.Rate),
			Discount:          money(it.Discount),
			Tax:               money(it.Tax),
			Amount:            money(it.Amount),
			NetAmount:         money(it.NetAmount),
			IsSystemGenerated: it.IsSystemGenerated,
			IdempotencyKey:    it.IdempotencyKey,
			AddedBy:           it.AddedBy,
			AddedAt:           it.AddedAt.UTC(),
		}
	}
	for i, p := range m.Payments {
		payID, err := id.ParsePaymentID(p.ID)
		if err != nil {
			return nil, err
		}
		b.Payments[i] = bill.Payment{
			ID:            payID,
			Amount:        money(p.Amount),
			Mode:          bill.PaymentMode(p.Mode),
			ReceiptNumber: p.ReceiptNumber,
			Reference:     p.Reference,
			ReceivedBy:    p.ReceivedBy,
			ReceivedAt:    p.ReceivedAt.UTC(),
		}
	}
	for _, s := range m.LinkedBills {
		linked, err := id.ParseBillID(s)
		if err != nil {
			return nil, err
		}
		b.LinkedBills = append(b.LinkedBills, linked)
	}
	if len(m.DepartmentPayments) > 0 {
		b.DepartmentPayments = make(map[bill.Department]bill.DepartmentSummary, len(m.DepartmentPayments))
		for dept, sum := range m.DepartmentPayments {
			b.DepartmentPayments[bill.Department(dept)] = bill.DepartmentSummary{
				Total:  money(sum.Total),
				Paid:   money(sum.Paid),
				Status: bill.PaymentStatus(sum.Status),
				Bills:  sum.Bills,
			}
		}
	}
	return b, nil
}

// ==================== Anomaly models ====================

type anomalyModel struct {
	grove.BaseModel `grove:"table:rev_anomalies"`

	ID               string                            `grove:"id,pk"             bson:"_id"`
	Number           string                            `grove:"number"            bson:"number"`
	Status           string                            `grove:"status"            bson:"status"`
	Category         string                            `grove:"category"          bson:"category"`
	Severity         string                            `grove:"severity"          bson:"severity"`
	Priority         int                               `grove:"priority"          bson:"priority"`
	Source           string                            `grove:"source"            bson:"source"`
	PatientID        string                            `grove:"patient_id"        bson:"patient_id"`
	EncounterID      string                            `grove:"encounter_id"      bson:"encounter_id"`
	AffectedRef      string                            `grove:"affected_ref"      bson:"affected_ref,omitempty"`
	ImpactAmount     int64                             `grove:"impact_amount"     bson:"impact_amount"`
	ImpactCurrency   string                            `grove:"impact_currency"   bson:"impact_currency"`
	Score            float64                           `grove:"score"             bson:"score"`
	Description      string                            `grove:"description"       bson:"description"`
	Evidence         map[string]any                    `grove:"evidence"          bson:"evidence,omitempty"`
	AssignedTo       string                            `grove:"assigned_to"       bson:"assigned_to,omitempty"`
	Resolution       *resolutionModel                  `grove:"resolution"        bson:"resolution,omitempty"`
	Dismissal        *anomaly.Dismissal                `grove:"dismissal"         bson:"dismissal,omitempty"`
	EscalationReason string                            `grove:"escalation_reason" bson:"escalation_reason,omitempty"`
	ClosedAt         *time.Time                        `grove:"closed_at"         bson:"closed_at,omitempty"`
	OpenKey          string                            `grove:"open_key"          bson:"open_key"`
	DueBy            time.Time                         `grove:"due_by"            bson:"due_by"`
	IsOverdue        bool                              `grove:"is_overdue"        bson:"is_overdue"`
	History          []workflow.Change[anomaly.Status] `grove:"history"           bson:"history"`
	Audit            []audit.Entry                     `grove:"audit"             bson:"audit"`

	Version   int64     `grove:"version"    bson:"version"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type resolutionModel struct {
	Type              string    `bson:"type"`
	RecoveredAmount   int64     `bson:"recovered_amount"`
	RecoveredCurrency string    `bson:"recovered_currency"`
	Notes             string    `bson:"notes,omitempty"`
	ResolvedBy        string    `bson:"resolved_by"`
	ResolvedAt        time.Time `bson:"resolved_at"`
}

func toAnomalyModel(a *anomaly.Anomaly) *anomalyModel {
	m := &anomalyModel{
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
		Evidence:         a.Evidence,
		AssignedTo:       a.AssignedTo,
		Dismissal:        a.Dismissal,
		EscalationReason: a.EscalationReason,
		ClosedAt:         a.ClosedAt,
		OpenKey:          a.OpenKey,
		DueBy:            a.DueBy,
		IsOverdue:        a.IsOverdue,
		History:          a.History,
		Audit:            a.Audit,
		Version:          a.Version,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if r := a.Resolution; r != nil {
		m.Resolution = &resolutionModel{
			Type:              string(r.Type),
			RecoveredAmount:   r.AmountRecovered.Amount,
			RecoveredCurrency: r.AmountRecovered.Currency,
			Notes:             r.Notes,
			ResolvedBy:        r.ResolvedBy,
			ResolvedAt:        r.ResolvedAt,
		}
	}
	return m
}

func fromAnomalyModel(m *anomalyModel) (*anomaly.Anomaly, error) {
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
		Evidence:         m.Evidence,
		AssignedTo:       m.AssignedTo,
		Dismissal:        m.Dismissal,
		EscalationReason: m.EscalationReason,
		ClosedAt:         utc(m.ClosedAt),
		OpenKey:          m.OpenKey,
		DueBy:            m.DueBy.UTC(),
		IsOverdue:        m.IsOverdue,
		History:          m.History,
		Audit:            m.Audit,
	}
	if r := m.Resolution; r != nil {
		a.Resolution = &anomaly.Resolution{
			Type:            anomaly.ResolutionType(r.Type),
			AmountRecovered: types.Money{Amount: r.RecoveredAmount, Currency: r.RecoveredCurrency},
			Notes:           r.Notes,
			ResolvedBy:      r.ResolvedBy,
			ResolvedAt:      r.ResolvedAt.UTC(),
		}
	}
	return a, nil
}

// ==================== Coding models ====================

type codingModel struct {
	grove.BaseModel `grove:"table:rev_codings"`

	ID           string                           `grove:"id,pk"           bson:"_id"`
	Number       string                           `grove:"number"          bson:"number"`
	Status       string                           `grove:"status"          bson:"status"`
	PatientID    string                           `grove:"patient_id"      bson:"patient_id"`
	EncounterID  string                           `grove:"encounter_id"    bson:"encounter_id"`
	MasterBillID string                           `grove:"master_bill_id"  bson:"master_bill_id,omitempty"`
	Procedures   []procedureModel                 `grove:"procedure_codes" bson:"procedure_codes"`
	Diagnoses    []coding.DiagnosisCode           `grove:"diagnosis_codes" bson:"diagnosis_codes"`
	Coder        string                           `grove:"coder"           bson:"coder,omitempty"`
	Reviewer     string                           `grove:"reviewer"        bson:"reviewer,omitempty"`
	ReturnReason string                           `grove:"return_reason"   bson:"return_reason,omitempty"`
	SubmittedAt  *time.Time                       `grove:"submitted_at"    bson:"submitted_at,omitempty"`
	ApprovedAt   *time.Time                       `grove:"approved_at"     bson:"approved_at,omitempty"`
	BillingSync  billingSyncModel                 `grove:"billing_sync"    bson:"billing_sync"`
	DueBy        time.Time                        `grove:"due_by"          bson:"due_by"`
	IsOverdue    bool                             `grove:"is_overdue"      bson:"is_overdue"`
	History      []workflow.Change[coding.Status] `grove:"history"         bson:"history"`
	Audit        []audit.Entry                    `grove:"audit"           bson:"audit"`

	Version   int64     `grove:"version"    bson:"version"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type procedureModel struct {
	Code         string   `bson:"code"`
	System       string   `bson:"system,omitempty"`
	Description  string   `bson:"description"`
	Quantity     int64    `bson:"quantity"`
	Modifiers    []string `bson:"modifiers,omitempty"`
	RateAmount   *int64   `bson:"rate_amount,omitempty"`
	RateCurrency string   `bson:"rate_currency,omitempty"`
}

type billingSyncModel struct {
	Status      string     `bson:"status"`
	Attempts    int        `bson:"attempts"`
	LastError   string     `bson:"last_error,omitempty"`
	SyncedAt    *time.Time `bson:"synced_at,omitempty"`
	LineItemIDs []string   `bson:"line_item_ids,omitempty"`
}

func toCodingModel(r *coding.Record) *codingModel {
	m := &codingModel{
		ID:           r.ID.String(),
		Number:       r.Number,
		Status:       string(r.Status),
		PatientID:    r.PatientID,
		EncounterID:  r.EncounterID,
		Procedures:   make([]procedureModel, len(r.Procedures)),
		Diagnoses:    r.Diagnoses,
		Coder:        r.Coder,
		Reviewer:     r.Reviewer,
		ReturnReason: r.ReturnReason,
		SubmittedAt:  r.SubmittedAt,
		ApprovedAt:   r.ApprovedAt,
		BillingSync: billingSyncModel{
			Status:    string(r.BillingSync.Status),
			Attempts:  r.BillingSync.Attempts,
			LastError: r.BillingSync.LastError,
			SyncedAt:  r.BillingSync.SyncedAt,
		},
		DueBy:     r.DueBy,
		IsOverdue: r.IsOverdue,
		History:   r.History,
		Audit:     r.Audit,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if !r.MasterBillID.IsNil() {
		m.MasterBillID = r.MasterBillID.String()
	}
	for i, p := range r.Procedures {
		pm := procedureModel{
			Code:        p.Code,
			System:      p.System,
			Description: p.Description,
			Quantity:    p.Quantity,
			Modifiers:   p.Modifiers,
		}
		if p.Rate != nil {
			amount := p.Rate.Amount
			pm.RateAmount, pm.RateCurrency = &amount, p.Rate.Currency
		}
		m.Procedures[i] = pm
	}
	for _, itemID := range r.BillingSync.LineItemIDs {
		m.BillingSync.LineItemIDs = append(m.BillingSync.LineItemIDs, itemID.String())
	}
	return m
}

func fromCodingModel(m *codingModel) (*coding.Record, error) {
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
		Procedures:   make([]coding.ProcedureCode, len(m.Procedures)),
		Diagnoses:    m.Diagnoses,
		Coder:        m.Coder,
		Reviewer:     m.Reviewer,
		ReturnReason: m.ReturnReason,
		SubmittedAt:  utc(m.SubmittedAt),
		ApprovedAt:   utc(m.ApprovedAt),
		BillingSync: coding.BillingSync{
			Status:    coding.SyncStatus(m.BillingSync.Status),
			Attempts:  m.BillingSync.Attempts,
			LastError: m.BillingSync.LastError,
			SyncedAt:  utc(m.BillingSync.SyncedAt),
		},
		DueBy:     m.DueBy.UTC(),
		IsOverdue: m.IsOverdue,
		History:   m.History,
		Audit:     m.Audit,
	}
	for i, pm := range m.Procedures {
		p := coding.ProcedureCode{
			Code:        pm.Code,
			System:      pm.System,
			Description: pm.Description,
			Quantity:    pm.Quantity,
			Modifiers:   pm.Modifiers,
		}
		if pm.RateAmount != nil {
			p.Rate = &types.Money{Amount: *pm.RateAmount, Currency: pm.RateCurrency}
		}
		r.Procedures[i] = p
	}
	for _, s := range m.BillingSync.LineItemIDs {
		itemID, err := id.ParseLineItemID(s)
		if err != nil {
			return nil, err
		}
		r.BillingSync.LineItemIDs = append(r.BillingSync.LineItemIDs, itemID)
	}
	return r, nil
}

// ==================== Tariff models ====================

type tariffModel struct {
	grove.BaseModel `grove:"table:rev_tariffs"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	Code       string    `grove:"code"        bson:"code"`
	Name       string    `grove:"name"        bson:"name"`
	ItemType   string    `grove:"item_type"   bson:"item_type,omitempty"`
	Department string    `grove:"department"  bson:"department,omitempty"`
	RateAmount int64     `grove:"rate_amount" bson:"rate_amount"`
	Currency   string    `grove:"currency"    bson:"currency"`
	TaxPercent string    `grove:"tax_percent" bson:"tax_percent,omitempty"`
	Status     string    `grove:"status"      bson:"status"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toTariffModel(t *tariff.Tariff) *tariffModel {
	return &tariffModel{
		ID:         t.ID.String(),
		Code:       t.Code,
		Name:       t.Name,
		ItemType:   string(t.ItemType),
		Department: string(t.Department),
		RateAmount: t.Rate.Amount,
		Currency:   t.Rate.Currency,
		TaxPercent: t.TaxPercent,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func fromTariffModel(m *tariffModel) (*tariff.Tariff, error) {
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

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
