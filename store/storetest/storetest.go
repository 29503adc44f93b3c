// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// Run exercises s against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Sequences", func(t *testing.T) { testSequences(t, newStore(t)) })
	t.Run("Census", func(t *testing.T) { testCensus(t, newStore(t)) })
	t.Run("BillRoundTrip", func(t *testing.T) { testBillRoundTrip(t, newStore(t)) })
	t.Run("BillUniqueness", func(t *testing.T) { testBillUniqueness(t, newStore(t)) })
	t.Run("BillVersioning", func(t *testing.T) { testBillVersioning(t, newStore(t)) })
	t.Run("ListBills", func(t *testing.T) { testListBills(t, newStore(t)) })
	t.Run("AnomalyOpenKey", func(t *testing.T) { testAnomalyOpenKey(t, newStore(t)) })
	t.Run("OverdueSweep", func(t *testing.T) { testOverdueSweep(t, newStore(t)) })
	t.Run("Codings", func(t *testing.T) { testCodings(t, newStore(t)) })
	t.Run("Tariffs", func(t *testing.T) { testTariffs(t, newStore(t)) })
}

func testSequences(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := sequence.KeyFor(sequence.DocBill, now)

	_, err := s.IncrementSequence(ctx, key)
	require.ErrorIs(t, err, types.ErrNotFound)

	v, err := s.CreateSequence(ctx, key, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	// A second creator increments instead of resetting.
	v, err = s.CreateSequence(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	v, err = s.IncrementSequence(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	peek, err := s.PeekSequence(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), peek)

	gen := sequence.NewGenerator(s, s)
	day := "2025-06-02"
	const callers = 50
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, callers)
		wg   sync.WaitGroup
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.Next(ctx, sequence.DocBill, day)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, callers)
	for i := int64(1); i <= callers; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}
}

func testCensus(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, num := range []string{"BIL-20250601-00001", "BIL-20250601-00002", "BIL-20250531-00009"} {
		b := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-"+string(rune('a'+i)), "inr", num, "test", now)
		require.NoError(t, s.CreateBill(ctx, b))
	}
	n, err := s.CountDocuments(ctx, sequence.KeyFor(sequence.DocBill, now))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountDocuments(ctx, sequence.KeyFor(sequence.DocAnomaly, now))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func newDept(dept bill.Department, encounter, number string) *bill.Bill {
	return bill.NewDepartment(dept, "pat-1", encounter, "inr", number, "test", now)
}

func testBillRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := newDept(bill.DepartmentLaboratory, "enc-1", "BIL-20250601-00001")
	_, err := b.AddItem(bill.LineItem{
		ItemType: bill.ItemLab, Description: "CBC", Quantity: 2,
		Rate: types.INR(15000), Discount: types.INR(5000), IdempotencyKey: "cbc",
	}, "lab", now)
	require.NoError(t, err)
	require.NoError(t, b.RecordPayment(bill.Payment{Amount: types.INR(10000), ReceiptNumber: "RCP-20250601-00001"}, "cashier", now))
	require.NoError(t, s.CreateBill(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Number, got.Number)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "cbc", got.Items[0].IdempotencyKey)
	assert.Equal(t, int64(25000), got.GrandTotal.Amount)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, bill.PaymentPartial, got.PaymentStatus)
	assert.Len(t, got.Audit, 3)

	byNumber, err := s.GetBillByNumber(ctx, b.Number)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byNumber.ID)

	master := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-20250601-00001", "test", now)
	_, err = master.Link(got, "test", now)
	require.NoError(t, err)
	require.NoError(t, s.CreateBill(ctx, master))

	m, err := s.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, master.ID, m.ID)
	assert.Equal(t, []id.BillID{b.ID}, m.LinkedBills)

	bills, err := s.GetBills(ctx, []id.BillID{id.NewBillID(), b.ID})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, b.ID, bills[0].ID)

	_, err = s.GetBill(ctx, id.NewBillID())
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.GetMasterBill(ctx, "enc-404")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testBillUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateBill(ctx, bill.NewMaster("pat-1", "enc-1", "inr", "MBL-1", "test", now)))
	assert.ErrorIs(t, s.CreateBill(ctx, bill.NewMaster("pat-1", "enc-1", "inr", "MBL-2", "test", now)), types.ErrAlreadyExists)

	first := newDept(bill.DepartmentPharmacy, "enc-1", "BIL-1")
	require.NoError(t, s.CreateBill(ctx, first))
	assert.ErrorIs(t, s.CreateBill(ctx, newDept(bill.DepartmentPharmacy, "enc-1", "BIL-2")), types.ErrAlreadyExists)
	require.NoError(t, s.CreateBill(ctx, newDept(bill.DepartmentLaboratory, "enc-1", "BIL-3")))
	assert.ErrorIs(t, s.CreateBill(ctx, newDept(bill.DepartmentRadiology, "enc-2", "BIL-3")), types.ErrAlreadyExists)

	open, err := s.FindOpenDepartmentBill(ctx, "enc-1", bill.DepartmentPharmacy)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	// A finalized bill no longer blocks a new open one.
	require.NoError(t, open.Finalize("test", now))
	require.NoError(t, s.UpdateBill(ctx, open))
	_, err = s.FindOpenDepartmentBill(ctx, "enc-1", bill.DepartmentPharmacy)
	assert.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, s.CreateBill(ctx, newDept(bill.DepartmentPharmacy, "enc-1", "BIL-4")))
}

func testBillVersioning(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := newDept(bill.DepartmentGeneral, "enc-1", "BIL-1")
	require.NoError(t, s.CreateBill(ctx, b))

	a, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	c, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)

	_, err = a.AddItem(bill.LineItem{Description: "bed", Quantity: 1, Rate: types.INR(100000)}, "nurse", now)
	require.NoError(t, err)
	require.NoError(t, s.UpdateBill(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	_, err = c.AddItem(bill.LineItem{Description: "linen", Quantity: 1, Rate: types.INR(500)}, "nurse", now)
	require.NoError(t, err)
	assert.ErrorIs(t, s.UpdateBill(ctx, c), types.ErrConcurrencyConflict)

	got, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "bed", got.Items[0].Description)
}

func testListBills(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateBill(ctx, newDept(bill.DepartmentPharmacy, "enc-1", "BIL-1")))
	require.NoError(t, s.CreateBill(ctx, newDept(bill.DepartmentLaboratory, "enc-1", "BIL-2")))
	require.NoError(t, s.CreateBill(ctx, newDept(bill.DepartmentLaboratory, "enc-2", "BIL-3")))

	list, err := s.ListBills(ctx, bill.ListOpts{EncounterID: "enc-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListBills(ctx, bill.ListOpts{Department: bill.DepartmentLaboratory, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListBills(ctx, bill.ListOpts{Kind: bill.KindMaster})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func newAnomaly(t *testing.T, encounter string, sev anomaly.Severity, number string) *anomaly.Anomaly {
	t.Helper()
	sig := anomaly.Signal{
		Category: anomaly.CategoryMissingCharges, Severity: sev,
		PatientID: "pat-1", EncounterID: encounter, Description: "bed charges missing",
	}
	require.NoError(t, sig.Validate())
	return anomaly.New(sig, number, "inr", now)
}

func testAnomalyOpenKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newAnomaly(t, "enc-1", anomaly.SeverityMedium, "ANM-1")
	require.NoError(t, s.CreateAnomaly(ctx, a))
	assert.ErrorIs(t, s.CreateAnomaly(ctx, newAnomaly(t, "enc-1", anomaly.SeverityLow, "ANM-2")), types.ErrAlreadyExists)

	open, err := s.FindOpenAnomaly(ctx, a.OpenKey)
	require.NoError(t, err)
	assert.Equal(t, a.ID, open.ID)

	_, err = open.Transition(anomaly.StatusFalsePositive, "auditor", "", anomaly.TransitionParams{Reason: "r", Justification: "j"}, now)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAnomaly(ctx, open))

	_, err = s.FindOpenAnomaly(ctx, a.OpenKey)
	assert.ErrorIs(t, err, types.ErrNotFound)
	require.NoError(t, s.CreateAnomaly(ctx, newAnomaly(t, "enc-1", anomaly.SeverityLow, "ANM-3")))

	got, err := s.GetAnomaly(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, anomaly.StatusFalsePositive, got.Status)
	require.Len(t, got.History, 1)
	require.NotNil(t, got.Dismissal)

	list, err := s.ListAnomalies(ctx, anomaly.ListOpts{Status: anomaly.StatusNew})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testOverdueSweep(t *testing.T, s store.Store) {
	ctx := context.Background()
	critical := newAnomaly(t, "enc-1", anomaly.SeverityCritical, "ANM-1")
	low := newAnomaly(t, "enc-2", anomaly.SeverityLow, "ANM-2")
	require.NoError(t, s.CreateAnomaly(ctx, critical))
	require.NoError(t, s.CreateAnomaly(ctx, low))

	r := coding.New("pat-1", "enc-1", "COD-1", "coder", now)
	require.NoError(t, s.CreateCoding(ctx, r))

	later := now.Add(5 * time.Hour)
	n, err := s.FlagOverdueAnomalies(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.FlagOverdueAnomalies(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetAnomaly(ctx, critical.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOverdue)
	assert.Equal(t, int64(2), got.Version)
	last, ok := got.Audit.Last()
	require.True(t, ok)
	assert.Equal(t, "overdue_flagged", string(last.Action))

	list, err := s.ListAnomalies(ctx, anomaly.ListOpts{OverdueOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err = s.FlagOverdueCodings(ctx, now.Add(coding.DefaultSLA+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	rec, err := s.GetCoding(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsOverdue)
}

func testCodings(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := coding.New("pat-1", "enc-1", "COD-1", "coder", now)
	require.NoError(t, r.SetCodes([]coding.ProcedureCode{{Code: "99223"}}, []coding.DiagnosisCode{{Code: "K35.80", Primary: true}}, "coder", now))
	require.NoError(t, s.CreateCoding(ctx, r))

	got, err := s.GetCoding(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Procedures, 1)
	assert.Equal(t, int64(1), got.Procedures[0].Quantity)

	_, err = got.Transition(coding.StatusInProgress, "coder", "", coding.TransitionParams{}, now)
	require.NoError(t, err)
	require.NoError(t, s.UpdateCoding(ctx, got))
	assert.ErrorIs(t, s.UpdateCoding(ctx, r), types.ErrConcurrencyConflict)

	list, err := s.ListCodings(ctx, coding.ListOpts{Status: coding.StatusInProgress})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "coder", list[0].Coder)

	_, err = s.GetCoding(ctx, id.NewCodingID())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testTariffs(t *testing.T, s store.Store) {
	ctx := context.Background()
	mk := func(code string, dept bill.Department) *tariff.Tariff {
		return &tariff.Tariff{
			Entity: types.NewEntity(now), ID: id.NewTariffID(), Code: code, Name: code,
			Department: dept, Rate: types.INR(35000), TaxPercent: "18", Status: tariff.StatusActive,
		}
	}
	cbc := mk("LAB-CBC", bill.DepartmentLaboratory)
	require.NoError(t, s.CreateTariff(ctx, cbc))
	require.NoError(t, s.CreateTariff(ctx, mk("RAD-XR", bill.DepartmentRadiology)))
	assert.ErrorIs(t, s.CreateTariff(ctx, mk("LAB-CBC", bill.DepartmentLaboratory)), types.ErrAlreadyExists)

	got, err := s.GetTariffByCode(ctx, "LAB-CBC")
	require.NoError(t, err)
	assert.Equal(t, cbc.ID, got.ID)
	assert.Equal(t, "18", got.TaxPercent)

	got.Rate = types.INR(40000)
	require.NoError(t, s.UpdateTariff(ctx, got))
	require.NoError(t, s.ArchiveTariff(ctx, cbc.ID))

	got, err = s.GetTariff(ctx, cbc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), got.Rate.Amount)
	assert.Equal(t, tariff.StatusArchived, got.Status)

	list, err := s.ListTariffs(ctx, tariff.ListOpts{Status: tariff.StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "RAD-XR", list[0].Code)

	_, err = s.GetTariffByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
