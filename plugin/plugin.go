// Package plugin lets callers observe the revenue engine's lifecycle.
// A plugin implements Plugin plus any subset of the hook interfaces
// below; the Registry discovers which ones at registration time.
//
// Hooks run after the state change they describe has been persisted. A
// failing or slow hook is logged and never rolls anything back.
package plugin

import (
	"context"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/workflow"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Bill hooks
// ──────────────────────────────────────────────────

type OnBillCreated interface {
	Plugin
	OnBillCreated(ctx context.Context, b *bill.Bill) error
}

type OnBillItemAdded interface {
	Plugin
	OnBillItemAdded(ctx context.Context, b *bill.Bill, item bill.LineItem) error
}

type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, b *bill.Bill, p bill.Payment) error
}

// OnBillLocked is called when a payment settles a bill in full.
type OnBillLocked interface {
	Plugin
	OnBillLocked(ctx context.Context, b *bill.Bill) error
}

type OnBillFinalized interface {
	Plugin
	OnBillFinalized(ctx context.Context, b *bill.Bill) error
}

type OnBillCancelled interface {
	Plugin
	OnBillCancelled(ctx context.Context, b *bill.Bill) error
}

// ──────────────────────────────────────────────────
// Rollup hooks
// ──────────────────────────────────────────────────

type OnDepartmentLinked interface {
	Plugin
	OnDepartmentLinked(ctx context.Context, master, dept *bill.Bill) error
}

// OnSummarySynced is called when a sync changed the master bill.
type OnSummarySynced interface {
	Plugin
	OnSummarySynced(ctx context.Context, master *bill.Bill) error
}

// OnRollupFailed is called when an automatic master re-sync fails. The
// change that triggered it has already been saved.
type OnRollupFailed interface {
	Plugin
	OnRollupFailed(ctx context.Context, masterID id.BillID, err error) error
}

// ──────────────────────────────────────────────────
// Anomaly hooks
// ──────────────────────────────────────────────────

type OnAnomalyRaised interface {
	Plugin
	OnAnomalyRaised(ctx context.Context, a *anomaly.Anomaly) error
}

type OnAnomalyTransitioned interface {
	Plugin
	OnAnomalyTransitioned(ctx context.Context, a *anomaly.Anomaly, c workflow.Change[anomaly.Status]) error
}

type OnAnomalyAssigned interface {
	Plugin
	OnAnomalyAssigned(ctx context.Context, a *anomaly.Anomaly) error
}

// ──────────────────────────────────────────────────
// Coding hooks
// ──────────────────────────────────────────────────

type OnCodingTransitioned interface {
	Plugin
	OnCodingTransitioned(ctx context.Context, r *coding.Record, c workflow.Change[coding.Status]) error
}

type OnBillingSynced interface {
	Plugin
	OnBillingSynced(ctx context.Context, r *coding.Record, master *bill.Bill) error
}

type OnBillingSyncFailed interface {
	Plugin
	OnBillingSyncFailed(ctx context.Context, r *coding.Record, err error) error
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnOverdueFlagged is called after a sweep that flagged anything.
type OnOverdueFlagged interface {
	Plugin
	OnOverdueFlagged(ctx context.Context, anomalies, codings int64) error
}
