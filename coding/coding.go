// Package coding models clinical coding records: the procedure and
// diagnosis codes assigned to an encounter, their review workflow, and
// the state of feeding approved procedures into the encounter's bill.
package coding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var (
	ErrNotFound    = types.NotFound("coding record")
	ErrNotEditable = errors.New("revenue: coding record is not editable in its current status")
	ErrNotApproved = errors.New("revenue: coding record is not approved")
)

// DefaultSLA is how long a record may stay unapproved before it is
// flagged overdue.
const DefaultSLA = 48 * time.Hour

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusApproved   Status = "approved"
	StatusReturned   Status = "returned"
)

// OpenStatuses are the statuses that can become overdue.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusSubmitted, StatusReturned}
}

func (s Status) IsOpen() bool { return slices.Contains(OpenStatuses(), s) }

// Editable reports whether codes may be changed in status s.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusReturned
}

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type ProcedureCode struct {
	Code        string   `json:"code"`
	System      string   `json:"system,omitempty"`
	Description string   `json:"description"`
	Quantity    int64    `json:"quantity"`
	Modifiers   []string `json:"modifiers,omitempty"`
	// Rate overrides the tariff when set.
	Rate *types.Money `json:"rate,omitempty"`
}

type DiagnosisCode struct {
	Code        string `json:"code"`
	System      string `json:"system,omitempty"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

type BillingSync struct {
	Status      SyncStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	SyncedAt    *time.Time      `json:"synced_at,omitempty"`
	LineItemIDs []id.LineItemID `json:"line_item_ids,omitempty"`
}

type Record struct {
	types.Entity
	ID           id.CodingID     `json:"id"`
	Number       string          `json:"number"`
	Status       Status          `json:"status"`
	PatientID    string          `json:"patient_id"`
	EncounterID  string          `json:"encounter_id"`
	MasterBillID id.BillID       `json:"master_bill_id,omitempty"`
	Procedures   []ProcedureCode `json:"procedure_codes"`
	Diagnoses    []DiagnosisCode `json:"diagnosis_codes"`
	Coder        string          `json:"coder,omitempty"`
	Reviewer     string          `json:"reviewer,omitempty"`
	ReturnReason string          `json:"return_reason,omitempty"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	BillingSync  BillingSync     `json:"billing_sync"`
	DueBy        time.Time       `json:"due_by"`
	IsOverdue    bool            `json:"is_overdue"`

	History []workflow.Change[Status] `json:"history"`
	Audit   audit.Trail               `json:"audit"`
}

func (r *Record) CurrentStatus() Status                  { return r.Status }
func (r *Record) SetStatus(s Status)                     { r.Status = s }
func (r *Record) AppendChange(c workflow.Change[Status]) { r.History = append(r.History, c) }
func (r *Record) AuditTrail() *audit.Trail               { return &r.Audit }

// New opens a pending coding record for an encounter.
func New(patientID, encounterID, number, actor string, now time.Time) *Record {
	r := &Record{
		Entity:      types.NewEntity(now),
		ID:          id.NewCodingID(),
		Number:      number,
		Status:      StatusPending,
		PatientID:   patientID,
		EncounterID: encounterID,
		BillingSync: BillingSync{Status: SyncPending},
		DueBy:       now.UTC().Add(DefaultSLA),
	}
	r.Audit.Record(audit.ActionCreated, actor, now, map[string]any{
		"number":       number,
		"encounter_id": encounterID,
	})
	return r
}

// SetCodes replaces the record's codes.
func (r *Record) SetCodes(procs []ProcedureCode, diags []DiagnosisCode, actor string, now time.Time) error {
	if !r.Status.Editable() {
		return fmt.Errorf("%w: status is %s", ErrNotEditable, r.Status)
	}
	procs = slices.Clone(procs)
	for i := range procs {
		p := &procs[i]
		p.Code = strings.TrimSpace(p.Code)
		if p.Code == "" {
			return types.NewValidationError(fmt.Sprintf("procedure_codes[%d].code", i), "is required")
		}
		if p.Quantity == 0 {
			p.Quantity = 1
		}
		if p.Quantity < 0 {
			return types.NewValidationError(fmt.Sprintf("procedure_codes[%d].quantity", i), "must be at least 1")
		}
		if p.Rate != nil && p.Rate.IsNegative() {
			return types.NewValidationError(fmt.Sprintf("procedure_codes[%d].rate", i), "must not be negative")
		}
	}
	for i, d := range diags {
		if strings.TrimSpace(d.Code) == "" {
			return types.NewValidationError(fmt.Sprintf("diagnosis_codes[%d].code", i), "is required")
		}
	}

	prev := fmt.Sprintf("%d/%d", len(r.Procedures), len(r.Diagnoses))
	r.Procedures = procs
	r.Diagnoses = slices.Clone(diags)
	r.Touch(now)
	r.Audit.Change(audit.ActionCodesUpdated, actor, now, prev, fmt.Sprintf("%d/%d", len(procs), len(diags)), map[string]any{
		"procedure_codes": codesOf(procs),
	})
	return nil
}

func codesOf(procs []ProcedureCode) []string {
	out := make([]string, len(procs))
	for i, p := range procs {
		out[i] = p.Code
	}
	return out
}

// TransitionParams carries guard inputs. Actor is filled in by Transition.
type TransitionParams struct {
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"-"`
}

var machine = workflow.New[Status, *Record, TransitionParams]("coding", map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusSubmitted},
	StatusSubmitted:  {StatusApproved, StatusReturned},
	StatusReturned:   {StatusInProgress},
	StatusApproved:   {},
}).
	Guard(StatusSubmitted, func(r *Record, _ TransitionParams) error {
		if len(r.Procedures) == 0 {
			return types.NewValidationError("procedure_codes", "at least one procedure code is required")
		}
		return nil
	}).
	Guard(StatusReturned, func(_ *Record, p TransitionParams) error {
		if strings.TrimSpace(p.Reason) == "" {
			return types.NewValidationError("reason", "is required to return a record")
		}
		return nil
	}).
	Guard(StatusApproved, func(r *Record, p TransitionParams) error {
		if strings.TrimSpace(p.Actor) == "" {
			return types.NewValidationError("reviewer", "is required")
		}
		if r.EncounterID == "" {
			return types.NewValidationError("encounter_id", "record is not linked to an encounter")
		}
		return nil
	}).
	OnEnter(StatusInProgress, func(r *Record, _ TransitionParams, c workflow.Change[Status]) {
		if r.Coder == "" {
			r.Coder = c.Actor
		}
	}).
	OnEnter(StatusSubmitted, func(r *Record, _ TransitionParams, c workflow.Change[Status]) {
		at := c.At
		r.SubmittedAt = &at
		r.ReturnReason = ""
	}).
	OnEnter(StatusReturned, func(r *Record, p TransitionParams, _ workflow.Change[Status]) {
		r.ReturnReason = p.Reason
	}).
	OnEnter(StatusApproved, func(r *Record, _ TransitionParams, c workflow.Change[Status]) {
		at := c.At
		r.Reviewer = c.Actor
		r.ApprovedAt = &at
		r.IsOverdue = false
		r.BillingSync.Status = SyncPending
	})

// Machine returns the coding state machine.
func Machine() *workflow.Machine[Status, *Record, TransitionParams] { return machine }

// Transition moves r to target through the coding machine.
func (r *Record) Transition(target Status, actor, notes string, p TransitionParams, now time.Time) (workflow.Change[Status], error) {
	p.Actor = actor
	c, err := machine.Apply(r, target, actor, notes, p, now)
	if err != nil {
		return c, err
	}
	r.Touch(now)
	return c, nil
}

// NeedsSync reports whether an approved record still has to be fed into
// its encounter's bill.
func (r *Record) NeedsSync() bool {
	return r.Status == StatusApproved && r.BillingSync.Status != SyncSynced
}

// ItemKey is the idempotency key of the line item created for the
// index-th procedure code.
func (r *Record) ItemKey(index int) string {
	return fmt.Sprintf("%s:%s:%d", r.ID, r.Procedures[index].Code, index)
}

// MarkSynced records a successful billing sync into master.
func (r *Record) MarkSynced(masterID id.BillID, items []id.LineItemID, actor string, now time.Time) {
	at := now.UTC()
	r.MasterBillID = masterID
	r.BillingSync.Status = SyncSynced
	r.BillingSync.Attempts++
	r.BillingSync.LastError = ""
	r.BillingSync.SyncedAt = &at
	r.BillingSync.LineItemIDs = slices.Clone(items)
	r.Touch(now)
	r.Audit.Record(audit.ActionBillingSynced, actor, now, map[string]any{
		"master_bill_id": masterID.String(),
		"line_items":     len(items),
		"attempt":        r.BillingSync.Attempts,
	})
}

// MarkSyncFailed records a failed billing sync. The approval stands.
func (r *Record) MarkSyncFailed(cause error, actor string, now time.Time) {
	r.BillingSync.Status = SyncFailed
	r.BillingSync.Attempts++
	r.BillingSync.LastError = cause.Error()
	r.Touch(now)
	r.Audit.Record(audit.ActionSyncFailed, actor, now, map[string]any{
		"error":   cause.Error(),
		"attempt": r.BillingSync.Attempts,
	})
}

// FlagOverdue marks an open record past its due time.
func (r *Record) FlagOverdue(now time.Time) bool {
	if r.IsOverdue || !r.Status.IsOpen() || !now.After(r.DueBy) {
		return false
	}
	r.IsOverdue = true
	r.Touch(now)
	r.Audit.Append(audit.Overdue(r.DueBy, now))
	return true
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Procedures = make([]ProcedureCode, len(r.Procedures))
	for i, p := range r.Procedures {
		p.Modifiers = slices.Clone(p.Modifiers)
		if p.Rate != nil {
			rate := *p.Rate
			p.Rate = &rate
		}
		c.Procedures[i] = p
	}
	c.Diagnoses = slices.Clone(r.Diagnoses)
	c.History = slices.Clone(r.History)
	c.Audit = r.Audit.Clone()
	c.BillingSync.LineItemIDs = slices.Clone(r.BillingSync.LineItemIDs)
	c.BillingSync.SyncedAt = cloneTime(r.BillingSync.SyncedAt)
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type ListOpts struct {
	Status      Status
	EncounterID string
	PatientID   string
	SyncStatus  SyncStatus
	Limit       int
	Offset      int
}

type Store interface {
	CreateCoding(ctx context.Context, r *Record) error
	GetCoding(ctx context.Context, codingID id.CodingID) (*Record, error)
	ListCodings(ctx context.Context, opts ListOpts) ([]*Record, error)
	// UpdateCoding is a versioned write like bill.Store.UpdateBill.
	UpdateCoding(ctx context.Context, r *Record) error
	FlagOverdueCodings(ctx context.Context, now time.Time) (int64, error)
}
