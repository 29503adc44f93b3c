// Package sequence allocates collision-free, human-readable document
// numbers from per-(document type, day) counters.
//
// Steady state is a single atomic increment in the backing Store. The
// first call of a day bootstraps the counter from a Census of documents
// already persisted for that day, through the store's atomic
// create-or-increment primitive, so a racing bootstrap is never an error.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/revenue/types"
)

// DayLayout is the format of Key.Day.
const DayLayout = "2006-01-02"

// DocType names a numbered document kind.
type DocType string

const (
	DocBill       DocType = "bill"
	DocMasterBill DocType = "master_bill"
	DocReceipt    DocType = "receipt"
	DocAnomaly    DocType = "anomaly"
	DocCoding     DocType = "coding"
	DocClaim      DocType = "claim"
)

var prefixes = map[DocType]string{
	DocBill:       "BIL",
	DocMasterBill: "MBL",
	DocReceipt:    "RCP",
	DocAnomaly:    "ANM",
	DocCoding:     "COD",
	DocClaim:      "CLM",
}

// Prefix returns the number prefix for d ("BIL" for bills).
func (d DocType) Prefix() string {
	if p, ok := prefixes[d]; ok {
		return p
	}
	return "DOC"
}

// Valid reports whether d is a known document type.
func (d DocType) Valid() bool {
	_, ok := prefixes[d]
	return ok
}

// DocTypes returns every known document type.
func DocTypes() []DocType {
	return []DocType{DocBill, DocMasterBill, DocReceipt, DocAnomaly, DocCoding, DocClaim}
}

// Key identifies one counter.
type Key struct {
	DocType DocType
	Day     string
}

// KeyFor returns the counter key for dt on the calendar day of at,
// evaluated in at's location.
func KeyFor(dt DocType, at time.Time) Key {
	return Key{DocType: dt, Day: at.Format(DayLayout)}
}

func (k Key) String() string { return string(k.DocType) + ":" + k.Day }

// NumberPrefix is the shared prefix of every number allocated under k,
// for example "BIL-20250601-".
func (k Key) NumberPrefix() string {
	t, err := time.Parse(DayLayout, k.Day)
	if err != nil {
		return k.DocType.Prefix() + "-" + k.Day + "-"
	}
	return fmt.Sprintf("%s-%s-", k.DocType.Prefix(), t.Format("20060102"))
}

func (k Key) validate() error {
	if !k.DocType.Valid() {
		return types.NewValidationError("document_type", fmt.Sprintf("unknown document type %q", k.DocType))
	}
	if _, err := time.Parse(DayLayout, k.Day); err != nil {
		return types.NewValidationError("day", fmt.Sprintf("%q is not a %s date", k.Day, DayLayout))
	}
	return nil
}

// Format renders the business number for seq under k.
func Format(k Key, seq int64) string {
	return fmt.Sprintf("%s%05d", k.NumberPrefix(), seq)
}

// Store is the counter persistence contract.
type Store interface {
	// IncrementSequence atomically increments an existing counter and
	// returns the new value. It returns an error matching
	// types.ErrNotFound when the counter does not exist.
	IncrementSequence(ctx context.Context, key Key) (int64, error)

	// CreateSequence atomically creates the counter at seed+1, or, when a
	// concurrent caller already created it, increments it. It returns the
	// value allocated to this caller.
	CreateSequence(ctx context.Context, key Key, seed int64) (int64, error)

	// PeekSequence returns the last allocated value, or 0 when the
	// counter does not exist.
	PeekSequence(ctx context.Context, key Key) (int64, error)
}

// Census counts documents already persisted under a counter key.
type Census interface {
	CountDocuments(ctx context.Context, key Key) (int64, error)
}

// CensusFunc adapts a function to Census.
type CensusFunc func(ctx context.Context, key Key) (int64, error)

// CountDocuments implements Census.
func (f CensusFunc) CountDocuments(ctx context.Context, key Key) (int64, error) {
	return f(ctx, key)
}

// EmptyCensus reports zero documents for every key.
var EmptyCensus Census = CensusFunc(func(context.Context, Key) (int64, error) { return 0, nil })

// Generator allocates sequence values and document numbers.
type Generator struct {
	store  Store
	census Census
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator over s. A nil census bootstraps every
// counter from zero.
func NewGenerator(s Store, census Census, opts ...Option) *Generator {
	if census == nil {
		census = EmptyCensus
	}
	g := &Generator{store: s, census: census, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns the next value for (dt, day). Values are unique per key
// across all callers and are never reused. Store failures are returned
// as *types.InfrastructureError; no value is ever synthesized.
func (g *Generator) Next(ctx context.Context, dt DocType, day string) (int64, error) {
	key := Key{DocType: dt, Day: day}
	if err := key.validate(); err != nil {
		return 0, err
	}

	v, err := g.store.IncrementSequence(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return 0, types.Infra("sequence increment "+key.String(), err)
	}

	seed, err := g.census.CountDocuments(ctx, key)
	if err != nil {
		return 0, types.Infra("sequence census "+key.String(), err)
	}

	v, err = g.store.CreateSequence(ctx, key, seed)
	if err != nil {
		return 0, types.Infra("sequence bootstrap "+key.String(), err)
	}
	g.logger.Debug("sequence bootstrapped",
		"key", key.String(),
		"seed", seed,
		"value", v,
	)
	return v, nil
}

// NextNumber allocates the next business number for dt on the day of at.
func (g *Generator) NextNumber(ctx context.Context, dt DocType, at time.Time) (string, error) {
	key := KeyFor(dt, at)
	v, err := g.Next(ctx, dt, key.Day)
	if err != nil {
		return "", err
	}
	return Format(key, v), nil
}

// Peek returns the last value allocated for (dt, day) without allocating.
func (g *Generator) Peek(ctx context.Context, dt DocType, day string) (int64, error) {
	key := Key{DocType: dt, Day: day}
	if err := key.validate(); err != nil {
		return 0, err
	}
	v, err := g.store.PeekSequence(ctx, key)
	if err != nil {
		return 0, types.Infra("sequence peek "+key.String(), err)
	}
	return v, nil
}
