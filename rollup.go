package revenue

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/rollup"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
)

// ──────────────────────────────────────────────────
// Master Bill Rollup
// ──────────────────────────────────────────────────

// LinkDepartmentBill links a department bill to a master bill and
// re-syncs the master's payment summary. A nil masterID selects the
// encounter's master bill, creating an empty draft one when needed.
// Linking twice is a no-op; a bill linked to another master fails with
// ErrAlreadyLinked. It returns the synced master bill.
func (e *Engine) LinkDepartmentBill(ctx context.Context, masterID, deptID id.BillID, actor string) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "LinkDepartmentBill",
		attribute.String("bill.master_id", masterID.String()),
		attribute.String("bill.id", deptID.String()),
	)
	defer func() { endSpan(span, err) }()

	dept, err := e.store.GetBill(ctx, deptID)
	if err != nil {
		return nil, types.Infra("get department bill", err)
	}
	if dept.IsMaster() {
		return nil, bill.ErrNotDepartment
	}

	var master *bill.Bill
	switch {
	case !masterID.IsNil():
		master, err = e.store.GetBill(ctx, masterID)
	case !dept.MasterID.IsNil():
		master, err = e.store.GetBill(ctx, dept.MasterID)
	default:
		master, err = e.getOrCreateMaster(ctx, dept.PatientID, dept.EncounterID, dept.Currency, actor)
	}
	if err != nil {
		return nil, types.Infra("get master bill", err)
	}

	// Dry run on copies so a rejected link leaves both bills untouched.
	if _, err := master.Clone().Link(dept.Clone(), actor, e.now()); err != nil {
		return nil, err
	}

	// The department bill's back-reference is claimed first: it is the
	// single field that decides ownership under concurrent linking.
	dept, _, err = mutate(ctx, e, "bill", deptID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, deptID) },
		e.store.UpdateBill,
		func(d *bill.Bill) (bool, error) { return d.AttachTo(master, actor, e.now()) },
	)
	if err != nil {
		return nil, err
	}

	master, linked, err := mutate(ctx, e, "bill", master.ID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, master.ID) },
		e.store.UpdateBill,
		func(m *bill.Bill) (bool, error) { return m.Link(dept, actor, e.now()) },
	)
	if err != nil {
		return nil, err
	}
	if linked {
		e.logger.Info("department bill linked",
			"master_id", master.ID.String(),
			"bill_id", dept.ID.String(),
			"department", string(dept.Department),
		)
		e.plugins.EmitDepartmentLinked(ctx, master, dept)
	}

	return e.SyncPaymentSummary(ctx, master.ID, actor)
}

// SyncPaymentSummary recomputes a master bill's per-department payment
// summary from every linked bill. The master is written only when the
// summary changed.
func (e *Engine) SyncPaymentSummary(ctx context.Context, masterID id.BillID, actor string) (_ *bill.Bill, err error) {
	ctx, span := e.startSpan(ctx, "SyncPaymentSummary", attribute.String("bill.master_id", masterID.String()))
	defer func() { endSpan(span, err) }()

	master, changed, err := mutate(ctx, e, "bill", masterID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, masterID) },
		e.store.UpdateBill,
		func(m *bill.Bill) (bool, error) {
			if !m.IsMaster() {
				return false, bill.ErrNotMaster
			}
			depts, err := e.store.GetBills(ctx, m.LinkedBills)
			if err != nil {
				return false, types.Infra("get linked bills", err)
			}
			return rollup.Apply(m, rollup.Summarize(m.Currency, depts), actor, e.now()), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if changed {
		e.logger.Debug("payment summary synced",
			"master_id", master.ID.String(),
			"paid", master.PaidAmount.String(),
			"payment_status", string(master.PaymentStatus),
		)
		e.plugins.EmitSummarySynced(ctx, master)
	}
	return master, nil
}

// resyncMaster is the best-effort sync that follows a change to a linked
// department bill. It goes through LinkDepartmentBill so a master that
// never recorded the link (the back-reference was written but the master
// update was not) picks the bill up again.
func (e *Engine) resyncMaster(ctx context.Context, dept *bill.Bill, actor string) {
	if _, err := e.LinkDepartmentBill(ctx, dept.MasterID, dept.ID, actor); err != nil {
		e.logger.Error("master bill re-sync failed",
			"master_id", dept.MasterID.String(),
			"bill_id", dept.ID.String(),
			"error", err,
		)
		e.plugins.EmitRollupFailed(ctx, dept.MasterID, err)
	}
}

func (e *Engine) getOrCreateMaster(ctx context.Context, patientID, encounterID, currency, actor string) (*bill.Bill, error) {
	m, err := e.store.GetMasterBill(ctx, encounterID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, types.Infra("get master bill", err)
	}
	m, err = e.createMaster(ctx, patientID, encounterID, currency, actor)
	if errors.Is(err, types.ErrAlreadyExists) {
		return e.store.GetMasterBill(ctx, encounterID)
	}
	return m, err
}

func (e *Engine) createMaster(ctx context.Context, patientID, encounterID, currency, actor string) (*bill.Bill, error) {
	now := e.now()
	number, err := e.seq.NextNumber(ctx, sequence.DocMasterBill, now)
	if err != nil {
		return nil, err
	}
	m := bill.NewMaster(patientID, encounterID, currency, number, actor, now)
	if err := e.store.CreateBill(ctx, m); err != nil {
		return nil, types.Infra("create master bill", err)
	}
	e.logger.Info("master bill created", "bill_id", m.ID.String(), "number", number, "encounter_id", encounterID)
	e.plugins.EmitBillCreated(ctx, m)
	return m, nil
}
