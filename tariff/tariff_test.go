package tariff_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

type resolverFunc func(ctx context.Context, code string) (*tariff.Tariff, error)

func (f resolverFunc) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	return f(ctx, code)
}

func fixed(t *tariff.Tariff) tariff.Resolver {
	return resolverFunc(func(_ context.Context, code string) (*tariff.Tariff, error) {
		if code == t.Code {
			return t, nil
		}
		return nil, tariff.ErrNotFound
	})
}

func TestResolvePrecedence(t *testing.T) {
	ctx := context.Background()
	xray := &tariff.Tariff{Code: "RAD-XR", Name: "Chest X-ray", Rate: types.INR(45000), TaxPercent: "5", Status: tariff.StatusActive}
	fallback := types.INR(10000)

	override := types.INR(30000)
	q, err := tariff.Resolve(ctx, fixed(xray), "RAD-XR", &override, fallback)
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceExplicit, q.Source)
	assert.Equal(t, int64(30000), q.Rate.Amount)

	q, err = tariff.Resolve(ctx, fixed(xray), "RAD-XR", nil, fallback)
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceTariff, q.Source)
	assert.Equal(t, int64(45000), q.Rate.Amount)
	assert.Equal(t, "Chest X-ray", q.Name)
	assert.Equal(t, int64(2250), q.Tax(q.Rate).Amount)

	q, err = tariff.Resolve(ctx, fixed(xray), "LAB-CBC", nil, fallback)
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceDefault, q.Source)
	assert.Equal(t, int64(10000), q.Rate.Amount)
	assert.True(t, q.Tax(q.Rate).IsZero())

	q, err = tariff.Resolve(ctx, nil, "RAD-XR", nil, fallback)
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceDefault, q.Source)
}

func TestResolveArchivedFallsBack(t *testing.T) {
	old := &tariff.Tariff{Code: "OLD", Rate: types.INR(1), Status: tariff.StatusArchived}
	q, err := tariff.Resolve(context.Background(), fixed(old), "OLD", nil, types.INR(500))
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceDefault, q.Source)
	assert.Equal(t, int64(500), q.Rate.Amount)
}

func TestResolvePropagatesLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	r := resolverFunc(func(context.Context, string) (*tariff.Tariff, error) { return nil, boom })

	_, err := tariff.Resolve(context.Background(), r, "X", nil, types.INR(1))
	assert.ErrorIs(t, err, boom)
}

func TestTaxRate(t *testing.T) {
	tr := &tariff.Tariff{Code: "A", TaxPercent: "2.5"}
	d, err := tr.TaxRate()
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("2.5")))

	tax, err := tr.TaxOn(types.INR(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(25), tax.Amount)

	tr.TaxPercent = "abc"
	_, err = tr.TaxRate()
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	tr.TaxPercent = "-1"
	assert.ErrorIs(t, tr.Validate(), types.ErrInvalidInput)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&tariff.Tariff{}).Validate(), types.ErrInvalidInput)
	assert.ErrorIs(t, (&tariff.Tariff{Code: "A", Rate: types.INR(-1)}).Validate(), types.ErrInvalidInput)
	assert.ErrorIs(t, (&tariff.Tariff{Code: "A", ItemType: "spa"}).Validate(), types.ErrInvalidInput)
	assert.NoError(t, (&tariff.Tariff{Code: " A ", Rate: types.INR(100), TaxPercent: "18"}).Validate())
}
