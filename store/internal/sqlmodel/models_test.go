package sqlmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestBillModelKeepsRollupState(t *testing.T) {
	dept := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-1", "inr", "BIL-20250601-00001", "pharmacist", now)
	_, err := dept.AddItem(bill.LineItem{ItemType: bill.ItemMedicine, Description: "Paracetamol", Quantity: 10, Rate: types.INR(200)}, "pharmacist", now)
	require.NoError(t, err)
	require.NoError(t, dept.RecordPayment(bill.Payment{Amount: types.INR(500), Mode: bill.ModeCash, ReceiptNumber: "RCP-20250601-00001"}, "cashier", now))

	master := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-20250601-00001", "system", now)
	_, err = master.Link(dept, "system", now)
	require.NoError(t, err)
	master.Version = 4

	m, err := ToBillModel(master)
	require.NoError(t, err)
	assert.Empty(t, m.MasterID)
	assert.JSONEq(t, `["`+dept.ID.String()+`"]`, m.LinkedBills)

	got, err := FromBillModel(m)
	require.NoError(t, err)
	assert.Equal(t, master.ID, got.ID)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, []id.BillID{dept.ID}, got.LinkedBills)
	assert.True(t, got.MasterID.IsNil())
	assert.Equal(t, master.GrandTotal, got.GrandTotal)
	assert.Equal(t, master.Audit.Count(audit.ActionDepartmentLinked), got.Audit.Count(audit.ActionDepartmentLinked))

	dm, err := ToBillModel(dept)
	require.NoError(t, err)
	back, err := FromBillModel(dm)
	require.NoError(t, err)
	require.Len(t, back.Items, 1)
	assert.Equal(t, int64(2000), back.Items[0].NetAmount.Amount)
	require.Len(t, back.Payments, 1)
	assert.Equal(t, "RCP-20250601-00001", back.Payments[0].ReceiptNumber)
	assert.Equal(t, bill.PaymentPartial, back.PaymentStatus)
}

func TestAnomalyModelOptionalParts(t *testing.T) {
	sig := anomaly.Signal{
		Category: anomaly.CategoryUnbilledLabTest, Severity: anomaly.SeverityHigh,
		PatientID: "pat-1", EncounterID: "enc-1", Description: "CBC not billed",
		EstimatedImpact: types.INR(35000), Evidence: map[string]any{"order": "ord-9"},
	}
	require.NoError(t, sig.Validate())
	a := anomaly.New(sig, "ANM-20250601-00001", "inr", now)

	m, err := ToAnomalyModel(a)
	require.NoError(t, err)
	assert.Equal(t, "{}", m.Resolution)
	assert.Equal(t, "{}", m.Dismissal)

	got, err := FromAnomalyModel(m)
	require.NoError(t, err)
	assert.Nil(t, got.Resolution)
	assert.Nil(t, got.Dismissal)
	assert.Equal(t, "ord-9", got.Evidence["order"])
	assert.Equal(t, a.OpenKey, got.OpenKey)
	assert.Equal(t, a.DueBy, got.DueBy)
	assert.Equal(t, types.INR(35000), got.EstimatedImpact)
}

func TestCodingModelSyncState(t *testing.T) {
	r := coding.New("pat-1", "enc-1", "COD-20250601-00001", "coder", now)
	require.NoError(t, r.SetCodes([]coding.ProcedureCode{{Code: "47562", Description: "Lap chole"}}, nil, "coder", now))

	m, err := ToCodingModel(r)
	require.NoError(t, err)
	assert.Equal(t, string(coding.SyncPending), m.SyncStatus)

	got, err := FromCodingModel(m)
	require.NoError(t, err)
	require.Len(t, got.Procedures, 1)
	assert.Equal(t, "47562", got.Procedures[0].Code)
	assert.Equal(t, coding.SyncPending, got.BillingSync.Status)
	assert.True(t, got.MasterBillID.IsNil())
}

func TestOverdueEntry(t *testing.T) {
	due := now.Add(-time.Hour)

	wrapped, err := OverdueEntry(due, now, true)
	require.NoError(t, err)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(wrapped), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionOverdueFlagged, entries[0].Action)
	assert.Equal(t, due.Format(time.RFC3339), entries[0].Details["due_by"])

	single, err := OverdueEntry(due, now, false)
	require.NoError(t, err)
	var entry audit.Entry
	require.NoError(t, json.Unmarshal([]byte(single), &entry))
	assert.Equal(t, "system", entry.Actor)
}
