package revenue_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue"
	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/store/memory"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

var start = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newEngine(t *testing.T, opts ...revenue.Option) (*revenue.Engine, *memory.Store, *clock) {
	t.Helper()
	s := memory.New()
	clk := &clock{now: start}
	opts = append([]revenue.Option{
		revenue.WithClock(clk.Now),
		revenue.WithSweepInterval(0),
	}, opts...)
	return revenue.New(s, opts...), s, clk
}

func rate(paise int64) *types.Money {
	m := types.INR(paise)
	return &m
}

func order(dept bill.Department, encounter string, paise int64, key string) revenue.BillableItem {
	return revenue.BillableItem{
		PatientID:      "pat-1",
		EncounterID:    encounter,
		Department:     dept,
		Description:    string(dept) + " order",
		Rate:           rate(paise),
		IdempotencyKey: key,
		Actor:          "order-svc",
	}
}

func pay(t *testing.T, eng *revenue.Engine, billID id.BillID, paise int64) *bill.Bill {
	t.Helper()
	b, err := eng.RecordPayment(context.Background(), revenue.PaymentInput{
		BillID: billID,
		Amount: types.INR(paise),
		Mode:   bill.ModeUPI,
		Actor:  "cashier-1",
	})
	require.NoError(t, err)
	return b
}

// ──────────────────────────────────────────────────
// Bills
// ──────────────────────────────────────────────────

func TestLineItemsAndPaymentLock(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	b, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind:        bill.KindDepartment,
		Department:  bill.DepartmentConsultation,
		PatientID:   "pat-1",
		EncounterID: "enc-1",
		Actor:       "frontdesk",
	})
	require.NoError(t, err)
	assert.Equal(t, "BIL-20250601-00001", b.Number)

	_, err = eng.AddLineItem(ctx, revenue.LineItemInput{
		BillID: b.ID, ItemType: bill.ItemConsultation, Description: "OPD consultation",
		Quantity: 1, Rate: rate(50000), Actor: "dr-rao",
	})
	require.NoError(t, err)
	b, err = eng.AddLineItem(ctx, revenue.LineItemInput{
		BillID: b.ID, ItemType: bill.ItemLab, Description: "CBC",
		Quantity: 2, Rate: rate(15000), Discount: types.INR(5000), Actor: "dr-rao",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(80000), b.Subtotal.Amount)
	assert.Equal(t, int64(5000), b.TotalDiscount.Amount)
	assert.Equal(t, int64(75000), b.GrandTotal.Amount)
	assert.Equal(t, bill.PaymentPending, b.PaymentStatus)

	b = pay(t, eng, b.ID, 75000)
	assert.Equal(t, bill.PaymentPaid, b.PaymentStatus)
	assert.True(t, b.IsLocked)
	assert.Equal(t, "RCP-20250601-00001", b.Payments[0].ReceiptNumber)
	assert.Zero(t, b.BalanceAmount.Amount)

	_, err = eng.AddLineItem(ctx, revenue.LineItemInput{
		BillID: b.ID, Description: "late item", Rate: rate(100), Actor: "dr-rao",
	})
	assert.ErrorIs(t, err, revenue.ErrBillLocked)

	stored, err := eng.GetBillByNumber(ctx, b.Number)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, b.Version, stored.Version)
}

func TestOverpaymentRejected(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	b, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 10000, "rx-1"))
	require.NoError(t, err)

	_, err = eng.RecordPayment(ctx, revenue.PaymentInput{BillID: b.ID, Amount: types.INR(20000), Actor: "cashier-1"})
	assert.True(t, revenue.IsValidation(err))
	assert.ErrorIs(t, err, revenue.ErrOverpayment)

	_, err = eng.RecordPayment(ctx, revenue.PaymentInput{BillID: b.ID, Amount: types.INR(0), Actor: "cashier-1"})
	assert.True(t, revenue.IsValidation(err))

	_, err = eng.RecordPayment(ctx, revenue.PaymentInput{BillID: b.ID, Amount: types.INR(100), Mode: "barter", Actor: "cashier-1"})
	var ve *revenue.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mode", ve.Field)

	stored, err := eng.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Payments)
}

func TestCreateBillValidation(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    revenue.CreateBillInput
		field string
	}{
		{"missing kind", revenue.CreateBillInput{PatientID: "p", EncounterID: "e", Actor: "a"}, "kind"},
		{"unknown department", revenue.CreateBillInput{Kind: bill.KindDepartment, Department: "cafeteria", PatientID: "p", EncounterID: "e", Actor: "a"}, "department"},
		{"department required", revenue.CreateBillInput{Kind: bill.KindDepartment, PatientID: "p", EncounterID: "e", Actor: "a"}, "department"},
		{"missing encounter", revenue.CreateBillInput{Kind: bill.KindMaster, PatientID: "p", Actor: "a"}, "encounter_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.CreateBill(ctx, tt.in)
			var ve *revenue.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, revenue.ErrInvalidInput)
		})
	}
}

func TestCancelAndFinalize(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	b, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindDepartment, Department: bill.DepartmentRadiology,
		PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk",
	})
	require.NoError(t, err)

	_, err = eng.CancelBill(ctx, b.ID, "", "frontdesk")
	assert.True(t, revenue.IsValidation(err))

	b, err = eng.CancelBill(ctx, b.ID, "duplicate order", "frontdesk")
	require.NoError(t, err)
	assert.Equal(t, bill.StatusCancelled, b.Status)

	_, err = eng.FinalizeBill(ctx, b.ID, "frontdesk")
	assert.ErrorIs(t, err, revenue.ErrBillNotDraft)

	_, err = eng.FinalizeBill(ctx, id.NewBillID(), "frontdesk")
	assert.True(t, revenue.IsNotFound(err))
}

// ──────────────────────────────────────────────────
// Rollup
// ──────────────────────────────────────────────────

func TestDefaultRateIsLogged(t *testing.T) {
	var logs bytes.Buffer
	eng, _, _ := newEngine(t,
		revenue.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		revenue.WithDefaultRate(types.INR(25000)),
	)
	ctx := context.Background()

	item := order(bill.DepartmentProcedure, "enc-1", 0, "proc-1")
	item.Rate = nil
	item.TariffCode = "PROC-404"
	b, err := eng.AddBillableItem(ctx, item)
	require.NoError(t, err)

	assert.Equal(t, int64(25000), b.GrandTotal.Amount)
	assert.Contains(t, logs.String(), "billing default rate")
	assert.Contains(t, logs.String(), "tariff_code=PROC-404")
}

func TestEncounterCannotBePaidTwice(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	lab, err := eng.AddBillableItem(ctx, order(bill.DepartmentLaboratory, "enc-1", 50000, "lab-1"))
	require.NoError(t, err)

	_, err = eng.RecordPayment(ctx, revenue.PaymentInput{BillID: lab.MasterID, Amount: types.INR(50000), Actor: "cashier-1"})
	assert.ErrorIs(t, err, revenue.ErrOverpayment)

	pay(t, eng, lab.ID, 50000)

	master, err := eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Empty(t, master.Payments)
	assert.Equal(t, int64(50000), master.GrandTotal.Amount)
	assert.Equal(t, int64(50000), master.PaidAmount.Amount)
	assert.True(t, master.BalanceAmount.IsZero())
	assert.Equal(t, bill.PaymentPaid, master.PaymentStatus)
}

func TestResyncRestoresMissingLink(t *testing.T) {
	eng, s, _ := newEngine(t)
	ctx := context.Background()

	dept, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindDepartment, Department: bill.DepartmentRadiology,
		PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk",
	})
	require.NoError(t, err)
	master, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindMaster, PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk",
	})
	require.NoError(t, err)

	// Back-reference written, master never updated.
	attached, err := s.GetBill(ctx, dept.ID)
	require.NoError(t, err)
	_, err = attached.AttachTo(master, "frontdesk", start)
	require.NoError(t, err)
	require.NoError(t, s.UpdateBill(ctx, attached))

	_, err = eng.AddLineItem(ctx, revenue.LineItemInput{
		BillID: dept.ID, ItemType: bill.ItemRadiology, Description: "Chest X-ray",
		Rate: rate(80000), Actor: "rad-tech",
	})
	require.NoError(t, err)

	healed, err := eng.GetBill(ctx, master.ID)
	require.NoError(t, err)
	assert.True(t, healed.IsLinked(dept.ID))
	assert.Equal(t, int64(80000), healed.GrandTotal.Amount)
}

func TestMasterSummaryAcrossDepartments(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	lab, err := eng.AddBillableItem(ctx, order(bill.DepartmentLaboratory, "enc-1", 50000, "lab-1"))
	require.NoError(t, err)
	rad, err := eng.AddBillableItem(ctx, order(bill.DepartmentRadiology, "enc-1", 120000, "rad-1"))
	require.NoError(t, err)
	require.Equal(t, lab.MasterID, rad.MasterID)

	pay(t, eng, lab.ID, 50000)

	master, err := eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, "MBL-20250601-00001", master.Number)
	assert.Len(t, master.LinkedBills, 2)
	assert.Equal(t, bill.PaymentPaid, master.DepartmentPayments[bill.DepartmentLaboratory].Status)
	assert.Equal(t, bill.PaymentPending, master.DepartmentPayments[bill.DepartmentRadiology].Status)
	assert.Equal(t, int64(50000), master.PaidAmount.Amount)
	assert.Equal(t, int64(170000), master.GrandTotal.Amount)
	assert.Equal(t, bill.PaymentPartial, master.PaymentStatus)

	again, err := eng.SyncPaymentSummary(ctx, master.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, master.Version, again.Version)
}

func TestAddBillableItemReusesOpenBill(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	first, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 2000, "rx-1"))
	require.NoError(t, err)
	second, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 3000, "rx-2"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Items, 2)

	dup, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 3000, "rx-2"))
	require.NoError(t, err)
	assert.Len(t, dup.Items, 2)

	pay(t, eng, second.ID, 5000)
	third, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 1500, "rx-3"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	master, err := eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Len(t, master.LinkedBills, 2)
	summary := master.DepartmentPayments[bill.DepartmentPharmacy]
	assert.Equal(t, 2, summary.Bills)
	assert.Equal(t, int64(6500), summary.Total.Amount)
	assert.Equal(t, bill.PaymentPartial, summary.Status)
}

func TestLinkIsIdempotent(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	dept, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindDepartment, Department: bill.DepartmentLaboratory,
		PatientID: "pat-1", EncounterID: "enc-1", Actor: "lab",
	})
	require.NoError(t, err)

	master, err := eng.LinkDepartmentBill(ctx, id.Nil, dept.ID, "lab")
	require.NoError(t, err)
	again, err := eng.LinkDepartmentBill(ctx, master.ID, dept.ID, "lab")
	require.NoError(t, err)

	assert.Len(t, again.LinkedBills, 1)
	assert.Equal(t, 1, again.Audit.Count(audit.ActionDepartmentLinked))

	dept, err = eng.GetBill(ctx, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, master.ID, dept.MasterID)

	other, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindMaster, PatientID: "pat-1", EncounterID: "enc-2", Actor: "frontdesk",
	})
	require.NoError(t, err)
	_, err = eng.LinkDepartmentBill(ctx, other.ID, dept.ID, "lab")
	require.Error(t, err)

	_, err = eng.LinkDepartmentBill(ctx, id.Nil, master.ID, "lab")
	assert.ErrorIs(t, err, revenue.ErrNotDepartmentBill)
}

func TestSecondMasterRejected(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	in := revenue.CreateBillInput{Kind: bill.KindMaster, PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk"}

	_, err := eng.CreateBill(ctx, in)
	require.NoError(t, err)
	_, err = eng.CreateBill(ctx, in)
	assert.ErrorIs(t, err, revenue.ErrAlreadyExists)
}

// ──────────────────────────────────────────────────
// Tariffs
// ──────────────────────────────────────────────────

func TestTariffPricing(t *testing.T) {
	eng, _, _ := newEngine(t, revenue.WithDefaultRate(types.INR(10000)))
	ctx := context.Background()

	require.NoError(t, eng.CreateTariff(ctx, &tariff.Tariff{
		Code: "LAB-CBC", Name: "Complete blood count", ItemType: bill.ItemLab,
		Department: bill.DepartmentLaboratory, Rate: types.INR(35000), TaxPercent: "18",
	}))

	in := order(bill.DepartmentLaboratory, "enc-1", 0, "cbc-1")
	in.Rate, in.Description, in.TariffCode = nil, "", "LAB-CBC"
	b, err := eng.AddBillableItem(ctx, in)
	require.NoError(t, err)

	item := b.Items[0]
	assert.Equal(t, "Complete blood count", item.Description)
	assert.Equal(t, int64(35000), item.Rate.Amount)
	assert.Equal(t, int64(6300), item.Tax.Amount)
	assert.True(t, item.IsSystemGenerated)

	in.TariffCode, in.IdempotencyKey, in.Description = "LAB-UNKNOWN", "cbc-2", "Unlisted test"
	b, err = eng.AddBillableItem(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.Items[1].Rate.Amount)

	q, err := eng.Quote(ctx, "LAB-CBC")
	require.NoError(t, err)
	assert.Equal(t, tariff.SourceTariff, q.Source)

	err = eng.CreateTariff(ctx, &tariff.Tariff{Code: "LAB-CBC", Rate: types.INR(1)})
	assert.ErrorIs(t, err, revenue.ErrAlreadyExists)
}

// ──────────────────────────────────────────────────
// Anomalies
// ──────────────────────────────────────────────────

func signal(encounter string) anomaly.Signal {
	return anomaly.Signal{
		Category:        anomaly.CategoryUnbilledService,
		Severity:        anomaly.SeverityHigh,
		PatientID:       "pat-1",
		EncounterID:     encounter,
		EstimatedImpact: types.INR(200000),
		Score:           0.82,
		Description:     "radiology study performed without a charge",
	}
}

func TestAnomalyReviewPath(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	a, created, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "ANM-20250601-00001", a.Number)

	_, err = eng.TransitionAnomaly(ctx, a.ID, anomaly.StatusResolved, "auditor", "", anomaly.TransitionParams{})
	assert.True(t, revenue.IsDisallowedTransition(err))

	for _, s := range []anomaly.Status{anomaly.StatusUnderReview, anomaly.StatusInvestigating} {
		a, err = eng.TransitionAnomaly(ctx, a.ID, s, "auditor", "", anomaly.TransitionParams{})
		require.NoError(t, err)
	}
	a, err = eng.TransitionAnomaly(ctx, a.ID, anomaly.StatusResolved, "auditor", "charge added", anomaly.TransitionParams{
		ResolutionType:  anomaly.ResolutionCorrected,
		AmountRecovered: types.INR(20000),
	})
	require.NoError(t, err)
	assert.Len(t, a.History, 3)
	require.NotNil(t, a.Resolution)
	assert.Equal(t, int64(20000), a.Resolution.AmountRecovered.Amount)

	stats, err := eng.AnomalyStats(ctx, anomaly.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[anomaly.StatusResolved])
	assert.Equal(t, int64(20000), stats.Recovered.Amount)
}

func TestRaiseAnomalyDeduplicates(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	first, created, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	require.True(t, created)

	dup, created, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	_, err = eng.TransitionAnomaly(ctx, first.ID, anomaly.StatusFalsePositive, "auditor", "", anomaly.TransitionParams{
		Reason: "charge posted late", Justification: "batch posting at midnight",
	})
	require.NoError(t, err)

	fresh, created, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)

	_, _, err = eng.RaiseAnomaly(ctx, anomaly.Signal{Category: "astrology", Severity: anomaly.SeverityLow, PatientID: "p", EncounterID: "e", Description: "x"})
	assert.True(t, revenue.IsValidation(err))
}

func TestAssignAnomaly(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	a, _, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	a, err = eng.AssignAnomaly(ctx, a.ID, "auditor-2", "lead")
	require.NoError(t, err)
	assert.Equal(t, "auditor-2", a.AssignedTo)
	assert.Equal(t, anomaly.StatusNew, a.Status)

	list, err := eng.ListAnomalies(ctx, anomaly.ListOpts{AssignedTo: "auditor-2"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// ──────────────────────────────────────────────────
// Coding
// ──────────────────────────────────────────────────

func approve(t *testing.T, eng *revenue.Engine, codingID id.CodingID) *coding.Record {
	t.Helper()
	ctx := context.Background()
	var r *coding.Record
	var err error
	for _, s := range []coding.Status{coding.StatusInProgress, coding.StatusSubmitted} {
		_, err = eng.TransitionCoding(ctx, codingID, s, "coder-1", "", coding.TransitionParams{})
		require.NoError(t, err)
	}
	r, err = eng.TransitionCoding(ctx, codingID, coding.StatusApproved, "reviewer-1", "", coding.TransitionParams{})
	require.NoError(t, err)
	return r
}

func TestCodingApprovalFeedsMasterBill(t *testing.T) {
	eng, _, _ := newEngine(t, revenue.WithDefaultRate(types.INR(100000)))
	ctx := context.Background()

	r, err := eng.CreateCoding(ctx, revenue.CreateCodingInput{
		PatientID:   "pat-1",
		EncounterID: "enc-1",
		Procedures: []coding.ProcedureCode{
			{Code: "0DTJ4ZZ", Description: "Laparoscopic appendectomy", Rate: rate(2500000)},
			{Code: "99223", Quantity: 2},
		},
		Actor: "coder-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "COD-20250601-00001", r.Number)

	r = approve(t, eng, r.ID)
	assert.Equal(t, coding.SyncSynced, r.BillingSync.Status)
	assert.Len(t, r.BillingSync.LineItemIDs, 2)

	master, err := eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, master.ID, r.MasterBillID)
	require.Len(t, master.Items, 2)
	assert.Equal(t, r.ItemKey(0), master.Items[0].IdempotencyKey)
	assert.Equal(t, "99223", master.Items[1].Description)
	assert.Equal(t, int64(2500000+200000), master.GrandTotal.Amount)

	_, err = eng.RetryCodingSync(ctx, r.ID, "reviewer-1")
	require.NoError(t, err)
	master, err = eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Len(t, master.Items, 2)
}

func TestCodingSyncFailureKeepsApproval(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	master, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindMaster, PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk",
	})
	require.NoError(t, err)
	_, err = eng.FinalizeBill(ctx, master.ID, "frontdesk")
	require.NoError(t, err)

	r, err := eng.CreateCoding(ctx, revenue.CreateCodingInput{
		PatientID: "pat-1", EncounterID: "enc-1",
		Procedures: []coding.ProcedureCode{{Code: "99223", Rate: rate(5000)}},
		Actor:      "coder-1",
	})
	require.NoError(t, err)

	r = approve(t, eng, r.ID)
	assert.Equal(t, coding.StatusApproved, r.Status)
	assert.Equal(t, coding.SyncFailed, r.BillingSync.Status)
	assert.Equal(t, 1, r.Audit.Count(audit.ActionSyncFailed))

	_, err = eng.RetryCodingSync(ctx, r.ID, "reviewer-1")
	assert.ErrorIs(t, err, revenue.ErrBillNotDraft)

	r, err = eng.GetCoding(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, r.BillingSync.Attempts)
}

func TestRetryCodingSyncRequiresApproval(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()

	r, err := eng.CreateCoding(ctx, revenue.CreateCodingInput{PatientID: "pat-1", EncounterID: "enc-1", Actor: "coder-1"})
	require.NoError(t, err)

	_, err = eng.RetryCodingSync(ctx, r.ID, "reviewer-1")
	assert.ErrorIs(t, err, revenue.ErrCodingNotApproved)

	_, err = eng.TransitionCoding(ctx, r.ID, coding.StatusSubmitted, "coder-1", "", coding.TransitionParams{})
	assert.True(t, revenue.IsDisallowedTransition(err))
}

// ──────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────

// conflictingStore loses the first n bill writes to a phantom writer.
type conflictingStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) UpdateBill(ctx context.Context, b *bill.Bill) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return types.ErrConcurrencyConflict
	}
	s.mu.Unlock()
	return s.Store.UpdateBill(ctx, b)
}

func TestConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	s := &conflictingStore{Store: memory.New()}
	eng := revenue.New(s, revenue.WithSweepInterval(0), revenue.WithMaxRetries(2))

	b, err := eng.CreateBill(ctx, revenue.CreateBillInput{
		Kind: bill.KindDepartment, Department: bill.DepartmentGeneral,
		PatientID: "pat-1", EncounterID: "enc-1", Actor: "frontdesk",
	})
	require.NoError(t, err)

	s.conflicts = 2
	_, err = eng.AddLineItem(ctx, revenue.LineItemInput{BillID: b.ID, Description: "bed", Rate: rate(100000), Actor: "nurse"})
	require.NoError(t, err)

	s.conflicts = 3
	_, err = eng.AddLineItem(ctx, revenue.LineItemInput{BillID: b.ID, Description: "linen", Rate: rate(5000), Actor: "nurse"})
	assert.True(t, revenue.IsConflict(err))
	assert.True(t, revenue.IsRetryable(err))

	stored, err := eng.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
}

func TestConcurrentPaymentsAllApplied(t *testing.T) {
	eng, _, _ := newEngine(t, revenue.WithMaxRetries(50))
	ctx := context.Background()

	b, err := eng.AddBillableItem(ctx, order(bill.DepartmentPharmacy, "enc-1", 100000, "rx-1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.RecordPayment(ctx, revenue.PaymentInput{BillID: b.ID, Amount: types.INR(10000), Actor: "cashier"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err = eng.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, b.Payments, 10)
	assert.True(t, b.IsLocked)

	master, err := eng.GetMasterBill(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), master.PaidAmount.Amount)
}

// ──────────────────────────────────────────────────
// Overdue sweep and plugins
// ──────────────────────────────────────────────────

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnBillLocked(_ context.Context, _ *bill.Bill) error {
	r.add("locked")
	return nil
}

func (r *recorder) OnSummarySynced(_ context.Context, _ *bill.Bill) error {
	r.add("synced")
	return nil
}

func (r *recorder) OnOverdueFlagged(_ context.Context, anomalies, codings int64) error {
	r.add("overdue")
	return errors.New("pager unavailable")
}

func TestSweepOverdue(t *testing.T) {
	rec := &recorder{}
	eng, _, clk := newEngine(t, revenue.WithPlugin(rec))
	ctx := context.Background()

	_, _, err := eng.RaiseAnomaly(ctx, signal("enc-1"))
	require.NoError(t, err)
	_, err = eng.CreateCoding(ctx, revenue.CreateCodingInput{PatientID: "pat-1", EncounterID: "enc-1", Actor: "coder-1"})
	require.NoError(t, err)

	n, c, err := eng.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n+c)

	clk.Advance(49 * time.Hour)
	n, c, err = eng.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), c)

	n, c, err = eng.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n+c)

	list, err := eng.ListAnomalies(ctx, anomaly.ListOpts{OverdueOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Audit.Count(audit.ActionOverdueFlagged))
	assert.Equal(t, []string{"overdue"}, rec.events)
}

func TestPluginHooksFire(t *testing.T) {
	rec := &recorder{}
	eng, _, _ := newEngine(t, revenue.WithPlugin(rec))
	ctx := context.Background()

	b, err := eng.AddBillableItem(ctx, order(bill.DepartmentLaboratory, "enc-1", 30000, "lab-1"))
	require.NoError(t, err)
	pay(t, eng, b.ID, 30000)

	assert.Contains(t, rec.events, "locked")
	assert.Contains(t, rec.events, "synced")
	assert.Equal(t, 1, eng.Plugins().Count())
}

func TestStartStop(t *testing.T) {
	eng, _, _ := newEngine(t, revenue.WithSweepInterval(10*time.Millisecond))
	require.NoError(t, eng.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop())
}
