package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/workflow"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are cached per interface at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onBillCreated         []OnBillCreated
	onBillItemAdded       []OnBillItemAdded
	onPaymentRecorded     []OnPaymentRecorded
	onBillLocked          []OnBillLocked
	onBillFinalized       []OnBillFinalized
	onBillCancelled       []OnBillCancelled
	onDepartmentLinked    []OnDepartmentLinked
	onSummarySynced       []OnSummarySynced
	onRollupFailed        []OnRollupFailed
	onAnomalyRaised       []OnAnomalyRaised
	onAnomalyTransitioned []OnAnomalyTransitioned
	onAnomalyAssigned     []OnAnomalyAssigned
	onCodingTransitioned  []OnCodingTransitioned
	onBillingSynced       []OnBillingSynced
	onBillingSyncFailed   []OnBillingSyncFailed
	onOverdueFlagged      []OnOverdueFlagged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)
	var hooks []string

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnBillCreated); ok {
		r.onBillCreated = append(r.onBillCreated, v)
		hooks = append(hooks, "OnBillCreated")
	}
	if v, ok := p.(OnBillItemAdded); ok {
		r.onBillItemAdded = append(r.onBillItemAdded, v)
		hooks = append(hooks, "OnBillItemAdded")
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
		hooks = append(hooks, "OnPaymentRecorded")
	}
	if v, ok := p.(OnBillLocked); ok {
		r.onBillLocked = append(r.onBillLocked, v)
		hooks = append(hooks, "OnBillLocked")
	}
	if v, ok := p.(OnBillFinalized); ok {
		r.onBillFinalized = append(r.onBillFinalized, v)
		hooks = append(hooks, "OnBillFinalized")
	}
	if v, ok := p.(OnBillCancelled); ok {
		r.onBillCancelled = append(r.onBillCancelled, v)
		hooks = append(hooks, "OnBillCancelled")
	}
	if v, ok := p.(OnDepartmentLinked); ok {
		r.onDepartmentLinked = append(r.onDepartmentLinked, v)
		hooks = append(hooks, "OnDepartmentLinked")
	}
	if v, ok := p.(OnSummarySynced); ok {
		r.onSummarySynced = append(r.onSummarySynced, v)
		hooks = append(hooks, "OnSummarySynced")
	}
	if v, ok := p.(OnRollupFailed); ok {
		r.onRollupFailed = append(r.onRollupFailed, v)
		hooks = append(hooks, "OnRollupFailed")
	}
	if v, ok := p.(OnAnomalyRaised); ok {
		r.onAnomalyRaised = append(r.onAnomalyRaised, v)
		hooks = append(hooks, "OnAnomalyRaised")
	}
	if v, ok := p.(OnAnomalyTransitioned); ok {
		r.onAnomalyTransitioned = append(r.onAnomalyTransitioned, v)
		hooks = append(hooks, "OnAnomalyTransitioned")
	}
	if v, ok := p.(OnAnomalyAssigned); ok {
		r.onAnomalyAssigned = append(r.onAnomalyAssigned, v)
		hooks = append(hooks, "OnAnomalyAssigned")
	}
	if v, ok := p.(OnCodingTransitioned); ok {
		r.onCodingTransitioned = append(r.onCodingTransitioned, v)
		hooks = append(hooks, "OnCodingTransitioned")
	}
	if v, ok := p.(OnBillingSynced); ok {
		r.onBillingSynced = append(r.onBillingSynced, v)
		hooks = append(hooks, "OnBillingSynced")
	}
	if v, ok := p.(OnBillingSyncFailed); ok {
		r.onBillingSyncFailed = append(r.onBillingSyncFailed, v)
		hooks = append(hooks, "OnBillingSyncFailed")
	}
	if v, ok := p.(OnOverdueFlagged); ok {
		r.onOverdueFlagged = append(r.onOverdueFlagged, v)
		hooks = append(hooks, "OnOverdueFlagged")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit snapshots a hook list under the read lock and calls fn for each
// entry, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitBillCreated(ctx context.Context, b *bill.Bill) {
	emit(ctx, r, "OnBillCreated", &r.onBillCreated, func(p OnBillCreated) error {
		return p.OnBillCreated(ctx, b)
	})
}

func (r *Registry) EmitBillItemAdded(ctx context.Context, b *bill.Bill, item bill.LineItem) {
	emit(ctx, r, "OnBillItemAdded", &r.onBillItemAdded, func(p OnBillItemAdded) error {
		return p.OnBillItemAdded(ctx, b, item)
	})
}

func (r *Registry) EmitPaymentRecorded(ctx context.Context, b *bill.Bill, pay bill.Payment) {
	emit(ctx, r, "OnPaymentRecorded", &r.onPaymentRecorded, func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, b, pay)
	})
}

func (r *Registry) EmitBillLocked(ctx context.Context, b *bill.Bill) {
	emit(ctx, r, "OnBillLocked", &r.onBillLocked, func(p OnBillLocked) error {
		return p.OnBillLocked(ctx, b)
	})
}

func (r *Registry) EmitBillFinalized(ctx context.Context, b *bill.Bill) {
	emit(ctx, r, "OnBillFinalized", &r.onBillFinalized, func(p OnBillFinalized) error {
		return p.OnBillFinalized(ctx, b)
	})
}

func (r *Registry) EmitBillCancelled(ctx context.Context, b *bill.Bill) {
	emit(ctx, r, "OnBillCancelled", &r.onBillCancelled, func(p OnBillCancelled) error {
		return p.OnBillCancelled(ctx, b)
	})
}

func (r *Registry) EmitDepartmentLinked(ctx context.Context, master, dept *bill.Bill) {
	emit(ctx, r, "OnDepartmentLinked", &r.onDepartmentLinked, func(p OnDepartmentLinked) error {
		return p.OnDepartmentLinked(ctx, master, dept)
	})
}

func (r *Registry) EmitSummarySynced(ctx context.Context, master *bill.Bill) {
	emit(ctx, r, "OnSummarySynced", &r.onSummarySynced, func(p OnSummarySynced) error {
		return p.OnSummarySynced(ctx, master)
	})
}

func (r *Registry) EmitRollupFailed(ctx context.Context, masterID id.BillID, cause error) {
	emit(ctx, r, "OnRollupFailed", &r.onRollupFailed, func(p OnRollupFailed) error {
		return p.OnRollupFailed(ctx, masterID, cause)
	})
}

func (r *Registry) EmitAnomalyRaised(ctx context.Context, a *anomaly.Anomaly) {
	emit(ctx, r, "OnAnomalyRaised", &r.onAnomalyRaised, func(p OnAnomalyRaised) error {
		return p.OnAnomalyRaised(ctx, a)
	})
}

func (r *Registry) EmitAnomalyTransitioned(ctx context.Context, a *anomaly.Anomaly, c workflow.Change[anomaly.Status]) {
	emit(ctx, r, "OnAnomalyTransitioned", &r.onAnomalyTransitioned, func(p OnAnomalyTransitioned) error {
		return p.OnAnomalyTransitioned(ctx, a, c)
	})
}

func (r *Registry) EmitAnomalyAssigned(ctx context.Context, a *anomaly.Anomaly) {
	emit(ctx, r, "OnAnomalyAssigned", &r.onAnomalyAssigned, func(p OnAnomalyAssigned) error {
		return p.OnAnomalyAssigned(ctx, a)
	})
}

func (r *Registry) EmitCodingTransitioned(ctx context.Context, rec *coding.Record, c workflow.Change[coding.Status]) {
	emit(ctx, r, "OnCodingTransitioned", &r.onCodingTransitioned, func(p OnCodingTransitioned) error {
		return p.OnCodingTransitioned(ctx, rec, c)
	})
}

func (r *Registry) EmitBillingSynced(ctx context.Context, rec *coding.Record, master *bill.Bill) {
	emit(ctx, r, "OnBillingSynced", &r.onBillingSynced, func(p OnBillingSynced) error {
		return p.OnBillingSynced(ctx, rec, master)
	})
}

func (r *Registry) EmitBillingSyncFailed(ctx context.Context, rec *coding.Record, cause error) {
	emit(ctx, r, "OnBillingSyncFailed", &r.onBillingSyncFailed, func(p OnBillingSyncFailed) error {
		return p.OnBillingSyncFailed(ctx, rec, cause)
	})
}

func (r *Registry) EmitOverdueFlagged(ctx context.Context, anomalies, codings int64) {
	emit(ctx, r, "OnOverdueFlagged", &r.onOverdueFlagged, func(p OnOverdueFlagged) error {
		return p.OnOverdueFlagged(ctx, anomalies, codings)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
