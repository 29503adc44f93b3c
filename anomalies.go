package revenue

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

// ──────────────────────────────────────────────────
// Anomaly Workflow
// ──────────────────────────────────────────────────

// RaiseAnomaly records a detector signal. While an anomaly for the same
// encounter and category is still open, that one is returned instead and
// created is false.
func (e *Engine) RaiseAnomaly(ctx context.Context, sig anomaly.Signal) (_ *anomaly.Anomaly, created bool, err error) {
	ctx, span := e.startSpan(ctx, "RaiseAnomaly",
		attribute.String("anomaly.category", string(sig.Category)),
		attribute.String("encounter.id", sig.EncounterID),
	)
	defer func() { endSpan(span, err) }()

	if err := e.check(sig); err != nil {
		return nil, false, err
	}
	if err := sig.Validate(); err != nil {
		return nil, false, err
	}

	key := anomaly.DedupKey(sig.EncounterID, sig.Category)
	existing, err := e.store.FindOpenAnomaly(ctx, key)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, types.ErrNotFound):
		return nil, false, types.Infra("find open anomaly", err)
	}

	now := e.now()
	number, err := e.seq.NextNumber(ctx, sequence.DocAnomaly, now)
	if err != nil {
		return nil, false, err
	}
	a := anomaly.New(sig, number, e.currency, now)
	if err := e.store.CreateAnomaly(ctx, a); err != nil {
		if errors.Is(err, types.ErrAlreadyExists) {
			existing, ferr := e.store.FindOpenAnomaly(ctx, key)
			if ferr != nil {
				return nil, false, types.Infra("find open anomaly", ferr)
			}
			return existing, false, nil
		}
		return nil, false, types.Infra("create anomaly", err)
	}

	e.logger.Info("anomaly raised",
		"anomaly_id", a.ID.String(),
		"number", a.Number,
		"category", string(a.Category),
		"severity", string(a.Severity),
		"priority", a.Priority,
	)
	e.plugins.EmitAnomalyRaised(ctx, a)
	return a, true, nil
}

// GetAnomaly retrieves an anomaly by ID.
func (e *Engine) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	return e.store.GetAnomaly(ctx, anomalyID)
}

// ListAnomalies lists anomalies matching opts.
func (e *Engine) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	return e.store.ListAnomalies(ctx, opts)
}

// TransitionAnomaly moves an anomaly through its review workflow.
func (e *Engine) TransitionAnomaly(ctx context.Context, anomalyID id.AnomalyID, target anomaly.Status, actor, notes string, params anomaly.TransitionParams) (_ *anomaly.Anomaly, err error) {
	ctx, span := e.startSpan(ctx, "TransitionAnomaly",
		attribute.String("anomaly.id", anomalyID.String()),
		attribute.String("anomaly.target", string(target)),
	)
	defer func() { endSpan(span, err) }()

	var change workflow.Change[anomaly.Status]
	a, _, err := mutate(ctx, e, "anomaly", anomalyID.String(),
		func(ctx context.Context) (*anomaly.Anomaly, error) { return e.store.GetAnomaly(ctx, anomalyID) },
		e.store.UpdateAnomaly,
		func(a *anomaly.Anomaly) (bool, error) {
			c, err := a.Transition(target, actor, notes, params, e.now())
			change = c
			return true, err
		},
	)
	if err != nil {
		return nil, err
	}

	e.logger.Info("anomaly transitioned",
		"anomaly_id", a.ID.String(),
		"from", string(change.From),
		"to", string(change.To),
		"actor", actor,
	)
	e.plugins.EmitAnomalyTransitioned(ctx, a, change)
	return a, nil
}

// AssignAnomaly hands an anomaly to a reviewer without changing its status.
func (e *Engine) AssignAnomaly(ctx context.Context, anomalyID id.AnomalyID, assignee, actor string) (_ *anomaly.Anomaly, err error) {
	ctx, span := e.startSpan(ctx, "AssignAnomaly", attribute.String("anomaly.id", anomalyID.String()))
	defer func() { endSpan(span, err) }()

	a, _, err := mutate(ctx, e, "anomaly", anomalyID.String(),
		func(ctx context.Context) (*anomaly.Anomaly, error) { return e.store.GetAnomaly(ctx, anomalyID) },
		e.store.UpdateAnomaly,
		func(a *anomaly.Anomaly) (bool, error) { return true, a.Assign(assignee, actor, e.now()) },
	)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitAnomalyAssigned(ctx, a)
	return a, nil
}

// AnomalyStats counts the anomalies matching opts by status and category.
// Limit and Offset are ignored.
func (e *Engine) AnomalyStats(ctx context.Context, opts anomaly.ListOpts) (anomaly.Stats, error) {
	opts.Limit, opts.Offset = 0, 0
	list, err := e.store.ListAnomalies(ctx, opts)
	if err != nil {
		return anomaly.Stats{}, types.Infra("list anomalies", err)
	}
	return anomaly.Tally(e.currency, list), nil
}
