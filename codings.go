package revenue

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

// CreateCodingInput opens a coding record for an encounter.
type CreateCodingInput struct {
	PatientID   string                 `json:"patient_id"   validate:"required"`
	EncounterID string                 `json:"encounter_id" validate:"required"`
	Procedures  []coding.ProcedureCode `json:"procedure_codes"`
	Diagnoses   []coding.DiagnosisCode `json:"diagnosis_codes"`
	Actor       string                 `json:"actor"        validate:"required"`
}

// ──────────────────────────────────────────────────
// Medical Coding Workflow
// ──────────────────────────────────────────────────

// CreateCoding opens a pending coding record.
func (e *Engine) CreateCoding(ctx context.Context, in CreateCodingInput) (_ *coding.Record, err error) {
	ctx, span := e.startSpan(ctx, "CreateCoding", attribute.String("encounter.id", in.EncounterID))
	defer func() { endSpan(span, err) }()

	if err := e.check(in); err != nil {
		return nil, err
	}

	now := e.now()
	number, err := e.seq.NextNumber(ctx, sequence.DocCoding, now)
	if err != nil {
		return nil, err
	}
	r := coding.New(in.PatientID, in.EncounterID, number, in.Actor, now)
	if len(in.Procedures) > 0 || len(in.Diagnoses) > 0 {
		if err := r.SetCodes(in.Procedures, in.Diagnoses, in.Actor, now); err != nil {
			return nil, err
		}
	}

	if err := e.store.CreateCoding(ctx, r); err != nil {
		return nil, types.Infra("create coding", err)
	}
	e.logger.Info("coding record created", "coding_id", r.ID.String(), "number", number, "encounter_id", in.EncounterID)
	return r, nil
}

// GetCoding retrieves a coding record by ID.
func (e *Engine) GetCoding(ctx context.Context, codingID id.CodingID) (*coding.Record, error) {
	return e.store.GetCoding(ctx, codingID)
}

// ListCodings lists coding records matching opts.
func (e *Engine) ListCodings(ctx context.Context, opts coding.ListOpts) ([]*coding.Record, error) {
	return e.store.ListCodings(ctx, opts)
}

// UpdateCodingCodes replaces the codes of an editable record.
func (e *Engine) UpdateCodingCodes(ctx context.Context, codingID id.CodingID, procs []coding.ProcedureCode, diags []coding.DiagnosisCode, actor string) (_ *coding.Record, err error) {
	ctx, span := e.startSpan(ctx, "UpdateCodingCodes", attribute.String("coding.id", codingID.String()))
	defer func() { endSpan(span, err) }()

	r, _, err := e.mutateCoding(ctx, codingID, func(r *coding.Record) (bool, error) {
		return true, r.SetCodes(procs, diags, actor, e.now())
	})
	return r, err
}

// TransitionCoding moves a coding record through its review workflow.
// Approval feeds the procedure codes into the encounter's master bill; a
// failed feed is recorded on the record and does not undo the approval.
func (e *Engine) TransitionCoding(ctx context.Context, codingID id.CodingID, target coding.Status, actor, notes string, params coding.TransitionParams) (_ *coding.Record, err error) {
	ctx, span := e.startSpan(ctx, "TransitionCoding",
		attribute.String("coding.id", codingID.String()),
		attribute.String("coding.target", string(target)),
	)
	defer func() { endSpan(span, err) }()

	var change workflow.Change[coding.Status]
	r, _, err := e.mutateCoding(ctx, codingID, func(r *coding.Record) (bool, error) {
		c, err := r.Transition(target, actor, notes, params, e.now())
		change = c
		return true, err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("coding transitioned",
		"coding_id", r.ID.String(),
		"from", string(change.From),
		"to", string(change.To),
		"actor", actor,
	)
	e.plugins.EmitCodingTransitioned(ctx, r, change)

	if r.NeedsSync() {
		synced, serr := e.syncCoding(ctx, r, actor)
		if synced != nil {
			r = synced
		}
		var failed syncFailure
		if serr != nil && !errors.As(serr, &failed) {
			return r, serr
		}
	}
	return r, nil
}

// RetryCodingSync re-runs the billing feed of an approved record. Items
// already on the master bill are not added twice. Unlike TransitionCoding
// it returns the feed error.
func (e *Engine) RetryCodingSync(ctx context.Context, codingID id.CodingID, actor string) (_ *coding.Record, err error) {
	ctx, span := e.startSpan(ctx, "RetryCodingSync", attribute.String("coding.id", codingID.String()))
	defer func() { endSpan(span, err) }()

	r, err := e.store.GetCoding(ctx, codingID)
	if err != nil {
		return nil, err
	}
	if r.Status != coding.StatusApproved {
		return nil, fmt.Errorf("%w: status is %s", coding.ErrNotApproved, r.Status)
	}
	if !r.NeedsSync() {
		return r, nil
	}
	synced, err := e.syncCoding(ctx, r, actor)
	if synced == nil {
		synced = r
	}
	return synced, err
}

// syncFailure marks an error already recorded on the coding record.
type syncFailure struct{ err error }

func (f syncFailure) Error() string { return "billing sync failed: " + f.err.Error() }
func (f syncFailure) Unwrap() error { return f.err }

// syncCoding adds one system-generated line item per procedure code to the
// encounter's master bill, then records the outcome on the coding record.
func (e *Engine) syncCoding(ctx context.Context, r *coding.Record, actor string) (*coding.Record, error) {
	master, itemIDs, cause := e.feedMaster(ctx, r, actor)

	rec, changed, err := e.mutateCoding(ctx, r.ID, func(rec *coding.Record) (bool, error) {
		if !rec.NeedsSync() {
			return false, nil
		}
		if cause != nil {
			rec.MarkSyncFailed(cause, actor, e.now())
		} else {
			rec.MarkSynced(master.ID, itemIDs, actor, e.now())
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return rec, nil
	}

	if cause != nil {
		e.logger.Error("billing sync failed",
			"coding_id", rec.ID.String(),
			"attempt", rec.BillingSync.Attempts,
			"error", cause,
		)
		e.plugins.EmitBillingSyncFailed(ctx, rec, cause)
		return rec, syncFailure{cause}
	}

	e.logger.Info("billing synced",
		"coding_id", rec.ID.String(),
		"master_id", master.ID.String(),
		"line_items", len(itemIDs),
	)
	e.plugins.EmitBillingSynced(ctx, rec, master)
	return rec, nil
}

func (e *Engine) feedMaster(ctx context.Context, r *coding.Record, actor string) (*bill.Bill, []id.LineItemID, error) {
	master, err := e.getOrCreateMaster(ctx, r.PatientID, r.EncounterID, e.currency, actor)
	if err != nil {
		return nil, nil, err
	}

	items := make([]bill.LineItem, len(r.Procedures))
	for i, p := range r.Procedures {
		item := bill.LineItem{
			ItemType:          bill.ItemProcedure,
			Source:            bill.SourceRef{Kind: "coding", ID: r.ID.String()},
			Description:       p.Description,
			TariffCode:        p.Code,
			Quantity:          p.Quantity,
			IsSystemGenerated: true,
			IdempotencyKey:    r.ItemKey(i),
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if err := e.price(ctx, &item, p.Rate, nil); err != nil {
			return nil, nil, err
		}
		if item.Description == "" {
			item.Description = p.Code
		}
		items[i] = item
	}

	master, _, err = mutate(ctx, e, "bill", master.ID.String(),
		func(ctx context.Context) (*bill.Bill, error) { return e.store.GetBill(ctx, master.ID) },
		e.store.UpdateBill,
		func(m *bill.Bill) (bool, error) {
			changed := false
			for _, item := range items {
				added, err := m.AddItem(item, actor, e.now())
				if err != nil {
					return false, fmt.Errorf("procedure %s: %w", item.TariffCode, err)
				}
				changed = changed || added
			}
			return changed, nil
		},
	)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]id.LineItemID, 0, len(items))
	for _, item := range items {
		for _, li := range master.Items {
			if li.IdempotencyKey == item.IdempotencyKey {
				ids = append(ids, li.ID)
				break
			}
		}
	}
	return master, ids, nil
}

func (e *Engine) mutateCoding(ctx context.Context, codingID id.CodingID, fn func(*coding.Record) (bool, error)) (*coding.Record, bool, error) {
	return mutate(ctx, e, "coding", codingID.String(),
		func(ctx context.Context) (*coding.Record, error) { return e.store.GetCoding(ctx, codingID) },
		e.store.UpdateCoding,
		fn,
	)
}
