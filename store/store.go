// Package store defines the persistence contract the revenue engine runs
// on. Backends live in the sub-packages.
package store

import (
	"context"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/tariff"
)

// Store is the unified storage interface for all revenue documents.
// Method names carry their document kind so the per-package interfaces
// embed without collisions.
//
// Bill, anomaly and coding writes are versioned: Update* succeeds only
// when the stored version matches the caller's copy, and returns
// types.ErrConcurrencyConflict otherwise.
type Store interface {
	bill.Store
	anomaly.Store
	coding.Store
	tariff.Store
	sequence.Store
	sequence.Census

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
