package revenue

import (
	"context"

	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// ──────────────────────────────────────────────────
// Tariff Master
// ──────────────────────────────────────────────────

// CreateTariff adds a price to the tariff master. Codes are unique.
func (e *Engine) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID.IsNil() {
		t.ID = id.NewTariffID()
	}
	if t.Status == "" {
		t.Status = tariff.StatusActive
	}
	if t.Rate.Currency == "" {
		t.Rate = types.Money{Amount: t.Rate.Amount, Currency: e.currency}
	}
	t.Entity = types.NewEntity(e.now())

	if err := e.store.CreateTariff(ctx, t); err != nil {
		return types.Infra("create tariff", err)
	}
	e.logger.Info("tariff created", "code", t.Code, "rate", t.Rate.String())
	return nil
}

// GetTariff retrieves a tariff by ID.
func (e *Engine) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	return e.store.GetTariff(ctx, tariffID)
}

// GetTariffByCode retrieves a tariff by its billing code.
func (e *Engine) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	return e.store.GetTariffByCode(ctx, code)
}

// ListTariffs lists tariffs matching opts, ordered by code.
func (e *Engine) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	return e.store.ListTariffs(ctx, opts)
}

// UpdateTariff replaces a tariff. Items already on bills keep the rate
// they were charged at.
func (e *Engine) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Touch(e.now())
	return e.store.UpdateTariff(ctx, t)
}

// ArchiveTariff retires a tariff. Lookups by code fall back to the
// default rate afterwards.
func (e *Engine) ArchiveTariff(ctx context.Context, tariffID id.TariffID) error {
	return e.store.ArchiveTariff(ctx, tariffID)
}

// Quote resolves the rate that would be charged for code right now.
func (e *Engine) Quote(ctx context.Context, code string) (tariff.Quote, error) {
	return tariff.Resolve(ctx, e.tariffs, code, nil, e.defaultRate)
}
