// Package audithook forwards revenue engine lifecycle events to an
// external audit trail backend.
//
// Each document already carries its own append-only audit list; this
// package is for hospitals that also keep a central, cross-system trail.
// It defines a local Recorder interface so the backend is injected at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/plugin"
	"github.com/xraph/revenue/workflow"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnBillCreated         = (*Extension)(nil)
	_ plugin.OnBillItemAdded       = (*Extension)(nil)
	_ plugin.OnPaymentRecorded     = (*Extension)(nil)
	_ plugin.OnBillLocked          = (*Extension)(nil)
	_ plugin.OnBillFinalized       = (*Extension)(nil)
	_ plugin.OnBillCancelled       = (*Extension)(nil)
	_ plugin.OnDepartmentLinked    = (*Extension)(nil)
	_ plugin.OnSummarySynced       = (*Extension)(nil)
	_ plugin.OnRollupFailed        = (*Extension)(nil)
	_ plugin.OnAnomalyRaised       = (*Extension)(nil)
	_ plugin.OnAnomalyTransitioned = (*Extension)(nil)
	_ plugin.OnAnomalyAssigned     = (*Extension)(nil)
	_ plugin.OnCodingTransitioned  = (*Extension)(nil)
	_ plugin.OnBillingSynced       = (*Extension)(nil)
	_ plugin.OnBillingSyncFailed   = (*Extension)(nil)
	_ plugin.OnOverdueFlagged      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry for the external trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension forwards engine events to a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnBillCreated(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionBillCreated, resource: ResourceBill, id: b.ID.String(),
		category: CategoryBilling, actor: lastActor(b),
	}, billMeta(b)...)
}

func (e *Extension) OnBillItemAdded(ctx context.Context, b *bill.Bill, item bill.LineItem) error {
	return e.record(ctx, event{
		action: ActionBillItemAdded, resource: ResourceBill, id: b.ID.String(),
		category: CategoryBilling, actor: item.AddedBy,
	}, append(billMeta(b),
		"item_id", item.ID.String(),
		"item_type", string(item.ItemType),
		"net_amount", item.NetAmount.Amount,
		"system_generated", item.IsSystemGenerated,
	)...)
}

func (e *Extension) OnPaymentRecorded(ctx context.Context, b *bill.Bill, p bill.Payment) error {
	return e.record(ctx, event{
		action: ActionPaymentRecorded, resource: ResourceBill, id: b.ID.String(),
		category: CategoryPayment, actor: p.ReceivedBy,
	}, append(billMeta(b),
		"receipt_number", p.ReceiptNumber,
		"amount", p.Amount.Amount,
		"mode", string(p.Mode),
		"payment_status", string(b.PaymentStatus),
	)...)
}

func (e *Extension) OnBillLocked(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionBillLocked, resource: ResourceBill, id: b.ID.String(),
		category: CategoryPayment, actor: lastActor(b),
	}, billMeta(b)...)
}

func (e *Extension) OnBillFinalized(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionBillFinalized, resource: ResourceBill, id: b.ID.String(),
		category: CategoryBilling, actor: lastActor(b),
	}, append(billMeta(b), "grand_total", b.GrandTotal.Amount)...)
}

func (e *Extension) OnBillCancelled(ctx context.Context, b *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionBillCancelled, resource: ResourceBill, id: b.ID.String(),
		category: CategoryBilling, severity: SeverityWarning, actor: lastActor(b),
		reason: b.CancelReason,
	}, billMeta(b)...)
}

// ──────────────────────────────────────────────────
// Rollup hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnDepartmentLinked(ctx context.Context, master, dept *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionDepartmentLinked, resource: ResourceBill, id: master.ID.String(),
		category: CategoryBilling, actor: lastActor(master),
	}, append(billMeta(master),
		"department_bill", dept.Number,
		"department", string(dept.Department),
	)...)
}

func (e *Extension) OnSummarySynced(ctx context.Context, master *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionSummarySynced, resource: ResourceBill, id: master.ID.String(),
		category: CategoryBilling, actor: lastActor(master),
	}, append(billMeta(master),
		"grand_total", master.GrandTotal.Amount,
		"balance", master.BalanceAmount.Amount,
		"linked_bills", len(master.LinkedBills),
	)...)
}

func (e *Extension) OnRollupFailed(ctx context.Context, masterID id.BillID, err error) error {
	return e.record(ctx, event{
		action: ActionRollupFailed, resource: ResourceBill, id: masterID.String(),
		category: CategoryBilling, severity: SeverityError, outcome: OutcomeFailure, err: err,
	})
}

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnAnomalyRaised(ctx context.Context, a *anomaly.Anomaly) error {
	sev := SeverityWarning
	if a.Severity == anomaly.SeverityCritical {
		sev = SeverityCritical
	}
	return e.record(ctx, event{
		action: ActionAnomalyRaised, resource: ResourceAnomaly, id: a.ID.String(),
		category: CategoryIntegrity, severity: sev, actor: string(a.Source),
	}, append(anomalyMeta(a),
		"estimated_impact", a.EstimatedImpact.Amount,
		"priority", a.Priority,
	)...)
}

func (e *Extension) OnAnomalyTransitioned(ctx context.Context, a *anomaly.Anomaly, c workflow.Change[anomaly.Status]) error {
	return e.record(ctx, event{
		action: ActionAnomalyTransitioned, resource: ResourceAnomaly, id: a.ID.String(),
		category: CategoryIntegrity, actor: c.Actor, reason: c.Notes,
	}, append(anomalyMeta(a),
		"from", string(c.From),
		"to", string(c.To),
	)...)
}

func (e *Extension) OnAnomalyAssigned(ctx context.Context, a *anomaly.Anomaly) error {
	return e.record(ctx, event{
		action: ActionAnomalyAssigned, resource: ResourceAnomaly, id: a.ID.String(),
		category: CategoryIntegrity,
	}, append(anomalyMeta(a), "assigned_to", a.AssignedTo)...)
}

// ──────────────────────────────────────────────────
// Coding hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnCodingTransitioned(ctx context.Context, r *coding.Record, c workflow.Change[coding.Status]) error {
	return e.record(ctx, event{
		action: ActionCodingTransitioned, resource: ResourceCoding, id: r.ID.String(),
		category: CategoryCoding, actor: c.Actor, reason: c.Notes,
	}, append(codingMeta(r),
		"from", string(c.From),
		"to", string(c.To),
	)...)
}

func (e *Extension) OnBillingSynced(ctx context.Context, r *coding.Record, master *bill.Bill) error {
	return e.record(ctx, event{
		action: ActionBillingSynced, resource: ResourceCoding, id: r.ID.String(),
		category: CategoryCoding,
	}, append(codingMeta(r),
		"master_bill", master.Number,
		"line_items", len(r.BillingSync.LineItemIDs),
	)...)
}

func (e *Extension) OnBillingSyncFailed(ctx context.Context, r *coding.Record, err error) error {
	return e.record(ctx, event{
		action: ActionBillingSyncFailed, resource: ResourceCoding, id: r.ID.String(),
		category: CategoryCoding, severity: SeverityError, outcome: OutcomeFailure, err: err,
	}, append(codingMeta(r), "attempts", r.BillingSync.Attempts)...)
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

func (e *Extension) OnOverdueFlagged(ctx context.Context, anomalies, codings int64) error {
	return e.record(ctx, event{
		action: ActionOverdueFlagged, resource: ResourceSweep,
		category: CategoryIntegrity, severity: SeverityWarning, actor: "system",
	}, "anomalies", anomalies, "codings", codings)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

type event struct {
	action, resource, id, category string
	severity, outcome              string
	actor, reason                  string
	err                            error
}

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged, never returned.
func (e *Extension) record(ctx context.Context, ev event, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[ev.action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	reason := ev.reason
	if ev.err != nil {
		reason = ev.err.Error()
		meta["error"] = ev.err.Error()
	}

	evt := &AuditEvent{
		Action:     ev.action,
		Resource:   ev.resource,
		Category:   ev.category,
		ResourceID: ev.id,
		Actor:      ev.actor,
		Metadata:   meta,
		Outcome:    or(ev.outcome, OutcomeSuccess),
		Severity:   or(ev.severity, SeverityInfo),
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", ev.action,
			"resource_id", ev.id,
			"error", recErr,
		)
	}
	return nil
}

func billMeta(b *bill.Bill) []any {
	return []any{
		"number", b.Number,
		"kind", string(b.Kind),
		"department", string(b.Department),
		"patient_id", b.PatientID,
		"encounter_id", b.EncounterID,
	}
}

func anomalyMeta(a *anomaly.Anomaly) []any {
	return []any{
		"number", a.Number,
		"category", string(a.Category),
		"severity", string(a.Severity),
		"status", string(a.Status),
		"encounter_id", a.EncounterID,
	}
}

func codingMeta(r *coding.Record) []any {
	return []any{
		"number", r.Number,
		"status", string(r.Status),
		"encounter_id", r.EncounterID,
	}
}

func lastActor(b *bill.Bill) string {
	if n := len(b.Audit); n > 0 {
		return b.Audit[n-1].Actor
	}
	return ""
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
