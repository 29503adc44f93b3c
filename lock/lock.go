// Package lock provides an optional pessimistic guard around the
// engine's read-modify-write cycles. Versioned writes already keep
// documents consistent; a Locker only reduces retry churn on hot
// documents such as an encounter's master bill.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotObtained is returned when a lock is held elsewhere past the
// caller's deadline.
var ErrNotObtained = errors.New("revenue: lock not obtained")

// ErrNotHeld is returned by Release when the lease already expired.
var ErrNotHeld = errors.New("revenue: lock not held")

// Locker hands out leases on string keys.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Nop is a Locker that always succeeds immediately.
type Nop struct{}

func (Nop) Obtain(context.Context, string, time.Duration) (Lease, error) { return nopLease{}, nil }

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }

// Key builds the lock key for a document.
func Key(kind, documentID string) string {
	return "revenue:lock:" + kind + ":" + documentID
}
