// Package observability provides a metrics plugin for the revenue engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/plugin"
	"github.com/xraph/revenue/workflow"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnBillCreated         = (*MetricsExtension)(nil)
	_ plugin.OnBillItemAdded       = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnBillLocked          = (*MetricsExtension)(nil)
	_ plugin.OnBillFinalized       = (*MetricsExtension)(nil)
	_ plugin.OnBillCancelled       = (*MetricsExtension)(nil)
	_ plugin.OnDepartmentLinked    = (*MetricsExtension)(nil)
	_ plugin.OnSummarySynced       = (*MetricsExtension)(nil)
	_ plugin.OnRollupFailed        = (*MetricsExtension)(nil)
	_ plugin.OnAnomalyRaised       = (*MetricsExtension)(nil)
	_ plugin.OnAnomalyTransitioned = (*MetricsExtension)(nil)
	_ plugin.OnCodingTransitioned  = (*MetricsExtension)(nil)
	_ plugin.OnBillingSynced       = (*MetricsExtension)(nil)
	_ plugin.OnBillingSyncFailed   = (*MetricsExtension)(nil)
	_ plugin.OnOverdueFlagged      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide lifecycle metrics. Amounts are
// observed in minor currency units.
type MetricsExtension struct {
	factory MetricFactory

	// Bill metrics
	BillCreated     Counter
	BillItemAdded   Counter
	SystemItemAdded Counter
	BillLocked      Counter
	BillFinalized   Counter
	BillCancelled   Counter
	BillTotal       Histogram

	// Payment metrics
	PaymentRecorded Counter
	PaymentAmount   Histogram

	// Rollup metrics
	DepartmentLinked Counter
	SummarySynced    Counter
	RollupFailed     Counter

	// Anomaly metrics
	AnomalyRaised    Counter
	AnomalyCritical  Counter
	AnomalyResolved  Counter
	AnomalyDismissed Counter
	AnomalyImpact    Histogram
	AnomalyOverdue   Counter

	// Coding metrics
	CodingSubmitted   Counter
	CodingApproved    Counter
	CodingReturned    Counter
	BillingSynced     Counter
	BillingSyncFailed Counter
	CodingOverdue     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		BillCreated:     factory.Counter("revenue.bill.created"),
		BillItemAdded:   factory.Counter("revenue.bill.items.added"),
		SystemItemAdded: factory.Counter("revenue.bill.items.system_added"),
		BillLocked:      factory.Counter("revenue.bill.locked"),
		BillFinalized:   factory.Counter("revenue.bill.finalized"),
		BillCancelled:   factory.Counter("revenue.bill.cancelled"),
		BillTotal:       factory.Histogram("revenue.bill.grand_total"),

		PaymentRecorded: factory.Counter("revenue.payment.recorded"),
		PaymentAmount:   factory.Histogram("revenue.payment.amount"),

		DepartmentLinked: factory.Counter("revenue.rollup.linked"),
		SummarySynced:    factory.Counter("revenue.rollup.synced"),
		RollupFailed:     factory.Counter("revenue.rollup.failed"),

		AnomalyRaised:    factory.Counter("revenue.anomaly.raised"),
		AnomalyCritical:  factory.Counter("revenue.anomaly.critical"),
		AnomalyResolved:  factory.Counter("revenue.anomaly.resolved"),
		AnomalyDismissed: factory.Counter("revenue.anomaly.dismissed"),
		AnomalyImpact:    factory.Histogram("revenue.anomaly.estimated_impact"),
		AnomalyOverdue:   factory.Counter("revenue.anomaly.overdue"),

		CodingSubmitted:   factory.Counter("revenue.coding.submitted"),
		CodingApproved:    factory.Counter("revenue.coding.approved"),
		CodingReturned:    factory.Counter("revenue.coding.returned"),
		BillingSynced:     factory.Counter("revenue.coding.billing_synced"),
		BillingSyncFailed: factory.Counter("revenue.coding.billing_sync_failed"),
		CodingOverdue:     factory.Counter("revenue.coding.overdue"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnBillCreated(_ context.Context, _ *bill.Bill) error {
	m.BillCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnBillItemAdded(_ context.Context, _ *bill.Bill, item bill.LineItem) error {
	m.BillItemAdded.Inc()
	if item.IsSystemGenerated {
		m.SystemItemAdded.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, _ *bill.Bill, p bill.Payment) error {
	m.PaymentRecorded.Inc()
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	return nil
}

func (m *MetricsExtension) OnBillLocked(_ context.Context, _ *bill.Bill) error {
	m.BillLocked.Inc()
	return nil
}

func (m *MetricsExtension) OnBillFinalized(_ context.Context, b *bill.Bill) error {
	m.BillFinalized.Inc()
	m.BillTotal.Observe(float64(b.GrandTotal.Amount))
	return nil
}

func (m *MetricsExtension) OnBillCancelled(_ context.Context, _ *bill.Bill) error {
	m.BillCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Rollup hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnDepartmentLinked(_ context.Context, _, _ *bill.Bill) error {
	m.DepartmentLinked.Inc()
	return nil
}

func (m *MetricsExtension) OnSummarySynced(_ context.Context, _ *bill.Bill) error {
	m.SummarySynced.Inc()
	return nil
}

func (m *MetricsExtension) OnRollupFailed(_ context.Context, _ id.BillID, _ error) error {
	m.RollupFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnAnomalyRaised(_ context.Context, a *anomaly.Anomaly) error {
	m.AnomalyRaised.Inc()
	if a.Severity == anomaly.SeverityCritical {
		m.AnomalyCritical.Inc()
	}
	m.AnomalyImpact.Observe(float64(a.EstimatedImpact.Amount))
	return nil
}

func (m *MetricsExtension) OnAnomalyTransitioned(_ context.Context, _ *anomaly.Anomaly, c workflow.Change[anomaly.Status]) error {
	switch c.To {
	case anomaly.StatusResolved:
		m.AnomalyResolved.Inc()
	case anomaly.StatusFalsePositive:
		m.AnomalyDismissed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Coding hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnCodingTransitioned(_ context.Context, _ *coding.Record, c workflow.Change[coding.Status]) error {
	switch c.To {
	case coding.StatusSubmitted:
		m.CodingSubmitted.Inc()
	case coding.StatusApproved:
		m.CodingApproved.Inc()
	case coding.StatusReturned:
		m.CodingReturned.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnBillingSynced(_ context.Context, _ *coding.Record, _ *bill.Bill) error {
	m.BillingSynced.Inc()
	return nil
}

func (m *MetricsExtension) OnBillingSyncFailed(_ context.Context, _ *coding.Record, _ error) error {
	m.BillingSyncFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnOverdueFlagged(_ context.Context, anomalies, codings int64) error {
	m.AnomalyOverdue.Add(float64(anomalies))
	m.CodingOverdue.Add(float64(codings))
	return nil
}
