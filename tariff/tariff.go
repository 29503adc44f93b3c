// Package tariff holds the hospital's price master and resolves the rate
// charged for a billable code.
package tariff

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
)

var ErrNotFound = types.NotFound("tariff")

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

type Tariff struct {
	types.Entity
	ID         id.TariffID     `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	ItemType   bill.ItemType   `json:"item_type"`
	Department bill.Department `json:"department"`
	Rate       types.Money     `json:"rate"`
	// TaxPercent is a decimal string such as "18" or "2.5".
	TaxPercent string `json:"tax_percent,omitempty"`
	Status     Status `json:"status"`
}

// TaxRate parses TaxPercent. An empty value is zero.
func (t *Tariff) TaxRate() (decimal.Decimal, error) {
	if strings.TrimSpace(t.TaxPercent) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(t.TaxPercent)
	if err != nil {
		return decimal.Zero, types.NewValidationError("tax_percent", err.Error())
	}
	if d.IsNegative() {
		return decimal.Zero, types.NewValidationError("tax_percent", "must not be negative")
	}
	return d, nil
}

// TaxOn returns the tax due on amount at this tariff's rate.
func (t *Tariff) TaxOn(amount types.Money) (types.Money, error) {
	pct, err := t.TaxRate()
	if err != nil {
		return types.Money{}, err
	}
	return amount.Percent(pct), nil
}

// Validate checks a tariff before it is stored.
func (t *Tariff) Validate() error {
	t.Code = strings.TrimSpace(t.Code)
	switch {
	case t.Code == "":
		return types.NewValidationError("code", "is required")
	case t.Rate.IsNegative():
		return types.NewValidationError("rate", "must not be negative")
	case t.ItemType != "" && !t.ItemType.Valid():
		return types.NewValidationError("item_type", "unknown item type")
	}
	_, err := t.TaxRate()
	return err
}

type ListOpts struct {
	Department bill.Department
	Status     Status
	Limit      int
	Offset     int
}

// Resolver looks up tariffs by code.
type Resolver interface {
	GetTariffByCode(ctx context.Context, code string) (*Tariff, error)
}

type Store interface {
	Resolver
	CreateTariff(ctx context.Context, t *Tariff) error
	GetTariff(ctx context.Context, tariffID id.TariffID) (*Tariff, error)
	ListTariffs(ctx context.Context, opts ListOpts) ([]*Tariff, error)
	UpdateTariff(ctx context.Context, t *Tariff) error
	ArchiveTariff(ctx context.Context, tariffID id.TariffID) error
}

// Source names where a quoted rate came from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceTariff   Source = "tariff"
	SourceDefault  Source = "default"
)

// Quote is a resolved price for one unit of a code.
type Quote struct {
	Rate       types.Money
	TaxPercent decimal.Decimal
	Source     Source
	TariffCode string
	Name       string
}

// Tax returns the tax due on amount at the quoted percentage.
func (q Quote) Tax(amount types.Money) types.Money {
	if q.TaxPercent.IsZero() {
		return types.Zero(amount.Currency)
	}
	return amount.Percent(q.TaxPercent)
}

// Resolve picks a rate: an explicit override wins, then an active tariff
// for code, then fallback. A missing or archived tariff falls back; any
// other lookup failure is returned.
func Resolve(ctx context.Context, r Resolver, code string, explicit *types.Money, fallback types.Money) (Quote, error) {
	if explicit != nil {
		return Quote{Rate: *explicit, Source: SourceExplicit, TariffCode: code}, nil
	}
	if r != nil && code != "" {
		t, err := r.GetTariffByCode(ctx, code)
		switch {
		case err == nil && t.Status != StatusArchived:
			pct, perr := t.TaxRate()
			if perr != nil {
				return Quote{}, perr
			}
			return Quote{Rate: t.Rate, TaxPercent: pct, Source: SourceTariff, TariffCode: t.Code, Name: t.Name}, nil
		case err == nil, errors.Is(err, types.ErrNotFound):
		default:
			return Quote{}, err
		}
	}
	return Quote{Rate: fallback, Source: SourceDefault, TariffCode: code}, nil
}
