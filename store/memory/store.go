// Package memory is an in-process store. Every read returns a deep copy
// and every versioned write checks the stored version under one mutex,
// so it honours the same concurrency contract as the database backends.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	sequences map[sequence.Key]int64

	bills     map[string]*bill.Bill
	billOrder []string

	anomalies    map[string]*anomaly.Anomaly
	anomalyOrder []string

	codings     map[string]*coding.Record
	codingOrder []string

	tariffs     map[string]*tariff.Tariff
	tariffOrder []string
}

func New() *Store {
	return &Store{
		sequences: make(map[sequence.Key]int64),
		bills:     make(map[string]*bill.Bill),
		anomalies: make(map[string]*anomaly.Anomaly),
		codings:   make(map[string]*coding.Record),
		tariffs:   make(map[string]*tariff.Tariff),
	}
}

// page applies offset and limit; a zero limit means no limit.
func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

// ──────────────────────────────────────────────────
// Sequences
// ──────────────────────────────────────────────────

func (s *Store) IncrementSequence(ctx context.Context, key sequence.Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.sequences[key]
	if !ok {
		return 0, types.NotFound("sequence " + key.String())
	}
	s.sequences[key] = v + 1
	return v + 1, nil
}

func (s *Store) CreateSequence(ctx context.Context, key sequence.Key, seed int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.sequences[key]
	if !ok {
		v = seed
	}
	s.sequences[key] = v + 1
	return v + 1, nil
}

func (s *Store) PeekSequence(ctx context.Context, key sequence.Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequences[key], nil
}

// CountDocuments counts documents whose business number falls under key.
func (s *Store) CountDocuments(ctx context.Context, key sequence.Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := key.NumberPrefix()
	var n int64
	switch key.DocType {
	case sequence.DocBill, sequence.DocMasterBill:
		for _, b := range s.bills {
			if strings.HasPrefix(b.Number, prefix) {
				n++
			}
		}
	case sequence.DocReceipt:
		for _, b := range s.bills {
			for _, p := range b.Payments {
				if strings.HasPrefix(p.ReceiptNumber, prefix) {
					n++
				}
			}
		}
	case sequence.DocAnomaly:
		for _, a := range s.anomalies {
			if strings.HasPrefix(a.Number, prefix) {
				n++
			}
		}
	case sequence.DocCoding:
		for _, r := range s.codings {
			if strings.HasPrefix(r.Number, prefix) {
				n++
			}
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Bills
// ──────────────────────────────────────────────────

func (s *Store) CreateBill(ctx context.Context, b *bill.Bill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bills[b.ID.String()]; exists {
		return types.ErrAlreadyExists
	}
	for _, existing := range s.bills {
		switch {
		case existing.Number == b.Number:
			return types.ErrAlreadyExists
		case b.IsMaster() && existing.IsMaster() && existing.EncounterID == b.EncounterID:
			return types.ErrAlreadyExists
		case b.IsOpenDepartment() && existing.IsOpenDepartment() &&
			existing.EncounterID == b.EncounterID && existing.Department == b.Department:
			return types.ErrAlreadyExists
		}
	}

	b.Version = 1
	s.bills[b.ID.String()] = b.Clone()
	s.billOrder = append(s.billOrder, b.ID.String())
	return nil
}

func (s *Store) GetBill(ctx context.Context, billID id.BillID) (*bill.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.bills[billID.String()]; ok {
		return b.Clone(), nil
	}
	return nil, bill.ErrNotFound
}

func (s *Store) findBill(ctx context.Context, match func(*bill.Bill) bool) (*bill.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.billOrder {
		if b := s.bills[key]; match(b) {
			return b.Clone(), nil
		}
	}
	return nil, bill.ErrNotFound
}

func (s *Store) GetBillByNumber(ctx context.Context, number string) (*bill.Bill, error) {
	return s.findBill(ctx, func(b *bill.Bill) bool { return b.Number == number })
}

func (s *Store) GetMasterBill(ctx context.Context, encounterID string) (*bill.Bill, error) {
	return s.findBill(ctx, func(b *bill.Bill) bool { return b.IsMaster() && b.EncounterID == encounterID })
}

func (s *Store) FindOpenDepartmentBill(ctx context.Context, encounterID string, dept bill.Department) (*bill.Bill, error) {
	return s.findBill(ctx, func(b *bill.Bill) bool {
		return b.IsOpenDepartment() && b.EncounterID == encounterID && b.Department == dept
	})
}

func (s *Store) GetBills(ctx context.Context, ids []id.BillID) ([]*bill.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*bill.Bill, 0, len(ids))
	for _, billID := range ids {
		if b, ok := s.bills[billID.String()]; ok {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListBills(ctx context.Context, opts bill.ListOpts) ([]*bill.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*bill.Bill, 0)
	for _, key := range s.billOrder {
		b := s.bills[key]
		if (opts.PatientID == "" || b.PatientID == opts.PatientID) &&
			(opts.EncounterID == "" || b.EncounterID == opts.EncounterID) &&
			(opts.Kind == "" || b.Kind == opts.Kind) &&
			(opts.Department == "" || b.Department == opts.Department) &&
			(opts.Status == "" || b.Status == opts.Status) {
			result = append(result, b)
		}
	}

	result = page(result, opts.Offset, opts.Limit)
	out := make([]*bill.Bill, len(result))
	for i, b := range result {
		out[i] = b.Clone()
	}
	return out, nil
}

func (s *Store) UpdateBill(ctx context.Context, b *bill.Bill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.bills[b.ID.String()]
	if !ok {
		return bill.ErrNotFound
	}
	if cur.Version != b.Version {
		return types.ErrConcurrencyConflict
	}
	b.Version++
	s.bills[b.ID.String()] = b.Clone()
	return nil
}

// ──────────────────────────────────────────────────
// Anomalies
// ──────────────────────────────────────────────────

func (s *Store) CreateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.anomalies[a.ID.String()]; exists {
		return types.ErrAlreadyExists
	}
	if a.OpenKey != "" {
		for _, existing := range s.anomalies {
			if existing.OpenKey == a.OpenKey {
				return types.ErrAlreadyExists
			}
		}
	}

	a.Version = 1
	s.anomalies[a.ID.String()] = a.Clone()
	s.anomalyOrder = append(s.anomalyOrder, a.ID.String())
	return nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.anomalies[anomalyID.String()]; ok {
		return a.Clone(), nil
	}
	return nil, anomaly.ErrNotFound
}

func (s *Store) FindOpenAnomaly(ctx context.Context, openKey string) (*anomaly.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.anomalyOrder {
		if a := s.anomalies[key]; openKey != "" && a.OpenKey == openKey {
			return a.Clone(), nil
		}
	}
	return nil, anomaly.ErrNotFound
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*anomaly.Anomaly, 0)
	for _, key := range s.anomalyOrder {
		a := s.anomalies[key]
		if (opts.Status == "" || a.Status == opts.Status) &&
			(opts.Category == "" || a.Category == opts.Category) &&
			(opts.Severity == "" || a.Severity == opts.Severity) &&
			(opts.EncounterID == "" || a.EncounterID == opts.EncounterID) &&
			(opts.PatientID == "" || a.PatientID == opts.PatientID) &&
			(opts.AssignedTo == "" || a.AssignedTo == opts.AssignedTo) &&
			(!opts.OverdueOnly || a.IsOverdue) {
			result = append(result, a)
		}
	}

	result = page(result, opts.Offset, opts.Limit)
	out := make([]*anomaly.Anomaly, len(result))
	for i, a := range result {
		out[i] = a.Clone()
	}
	return out, nil
}

func (s *Store) UpdateAnomaly(ctx context.Context, a *anomaly.Anomaly) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.anomalies[a.ID.String()]
	if !ok {
		return anomaly.ErrNotFound
	}
	if cur.Version != a.Version {
		return types.ErrConcurrencyConflict
	}
	a.Version++
	s.anomalies[a.ID.String()] = a.Clone()
	return nil
}

func (s *Store) FlagOverdueAnomalies(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.anomalies {
		if a.FlagOverdue(now) {
			a.Version++
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Coding records
// ──────────────────────────────────────────────────

func (s *Store) CreateCoding(ctx context.Context, r *coding.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codings[r.ID.String()]; exists {
		return types.ErrAlreadyExists
	}
	r.Version = 1
	s.codings[r.ID.String()] = r.Clone()
	s.codingOrder = append(s.codingOrder, r.ID.String())
	return nil
}

func (s *Store) GetCoding(ctx context.Context, codingID id.CodingID) (*coding.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.codings[codingID.String()]; ok {
		return r.Clone(), nil
	}
	return nil, coding.ErrNotFound
}

func (s *Store) ListCodings(ctx context.Context, opts coding.ListOpts) ([]*coding.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*coding.Record, 0)
	for _, key := range s.codingOrder {
		r := s.codings[key]
		if (opts.Status == "" || r.Status == opts.Status) &&
			(opts.EncounterID == "" || r.EncounterID == opts.EncounterID) &&
			(opts.PatientID == "" || r.PatientID == opts.PatientID) &&
			(opts.SyncStatus == "" || r.BillingSync.Status == opts.SyncStatus) {
			result = append(result, r)
		}
	}

	result = page(result, opts.Offset, opts.Limit)
	out := make([]*coding.Record, len(result))
	for i, r := range result {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *Store) UpdateCoding(ctx context.Context, r *coding.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.codings[r.ID.String()]
	if !ok {
		return coding.ErrNotFound
	}
	if cur.Version != r.Version {
		return types.ErrConcurrencyConflict
	}
	r.Version++
	s.codings[r.ID.String()] = r.Clone()
	return nil
}

func (s *Store) FlagOverdueCodings(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.codings {
		if r.FlagOverdue(now) {
			r.Version++
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Tariffs
// ──────────────────────────────────────────────────

func (s *Store) CreateTariff(ctx context.Context, t *tariff.Tariff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tariffs[t.ID.String()]; exists {
		return types.ErrAlreadyExists
	}
	for _, existing := range s.tariffs {
		if existing.Code == t.Code {
			return types.ErrAlreadyExists
		}
	}
	cp := *t
	s.tariffs[t.ID.String()] = &cp
	s.tariffOrder = append(s.tariffOrder, t.ID.String())
	return nil
}

func (s *Store) GetTariff(ctx context.Context, tariffID id.TariffID) (*tariff.Tariff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tariffs[tariffID.String()]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, tariff.ErrNotFound
}

func (s *Store) GetTariffByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tariffs {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tariff.ErrNotFound
}

func (s *Store) ListTariffs(ctx context.Context, opts tariff.ListOpts) ([]*tariff.Tariff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tariff.Tariff, 0)
	for _, key := range s.tariffOrder {
		t := s.tariffs[key]
		if (opts.Status == "" || t.Status == opts.Status) &&
			(opts.Department == "" || t.Department == opts.Department) {
			cp := *t
			result = append(result, &cp)
		}
	}
	slices.SortStableFunc(result, func(a, b *tariff.Tariff) int { return strings.Compare(a.Code, b.Code) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateTariff(ctx context.Context, t *tariff.Tariff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tariffs[t.ID.String()]; !exists {
		return tariff.ErrNotFound
	}
	cp := *t
	s.tariffs[t.ID.String()] = &cp
	return nil
}

func (s *Store) ArchiveTariff(ctx context.Context, tariffID id.TariffID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tariffs[tariffID.String()]
	if !exists {
		return tariff.ErrNotFound
	}
	t.Status = tariff.StatusArchived
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }
