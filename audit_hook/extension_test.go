package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/revenue/audit_hook"
	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type captured struct{ events []*audithook.AuditEvent }

func (c *captured) Record(_ context.Context, ev *audithook.AuditEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestPaymentRecorded(t *testing.T) {
	rec := &captured{}
	ext := audithook.New(rec)

	b := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-1", "inr", "BIL-20250601-00001", "pharmacist", now)
	_, err := b.AddItem(bill.LineItem{ItemType: bill.ItemMedicine, Description: "ORS", Quantity: 2, Rate: types.INR(100)}, "pharmacist", now)
	require.NoError(t, err)
	p := bill.Payment{Amount: types.INR(200), Mode: bill.ModeCash, ReceiptNumber: "RCP-20250601-00001"}
	require.NoError(t, b.RecordPayment(p, "cashier", now))

	require.NoError(t, ext.OnPaymentRecorded(context.Background(), b, b.Payments[0]))
	require.Len(t, rec.events, 1)

	ev := rec.events[0]
	assert.Equal(t, audithook.ActionPaymentRecorded, ev.Action)
	assert.Equal(t, audithook.CategoryPayment, ev.Category)
	assert.Equal(t, b.ID.String(), ev.ResourceID)
	assert.Equal(t, audithook.OutcomeSuccess, ev.Outcome)
	assert.Equal(t, audithook.SeverityInfo, ev.Severity)
	assert.Equal(t, "RCP-20250601-00001", ev.Metadata["receipt_number"])
	assert.Equal(t, int64(200), ev.Metadata["amount"])
}

func TestFailuresCarryReason(t *testing.T) {
	rec := &captured{}
	ext := audithook.New(rec)

	master := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-20250601-00001", "system", now)
	require.NoError(t, ext.OnRollupFailed(context.Background(), master.ID, errors.New("store down")))

	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.OutcomeFailure, rec.events[0].Outcome)
	assert.Equal(t, audithook.SeverityError, rec.events[0].Severity)
	assert.Equal(t, "store down", rec.events[0].Reason)
}

func TestAnomalyTransitionAndFilters(t *testing.T) {
	rec := &captured{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionAnomalyRaised))

	sig := anomaly.Signal{
		Category: anomaly.CategoryUnbilledLabTest, Severity: anomaly.SeverityCritical,
		PatientID: "pat-1", EncounterID: "enc-1", Description: "MRI not billed",
		EstimatedImpact: types.INR(900000),
	}
	require.NoError(t, sig.Validate())
	a := anomaly.New(sig, "ANM-20250601-00001", "inr", now)

	require.NoError(t, ext.OnAnomalyRaised(context.Background(), a))
	assert.Empty(t, rec.events)

	c := workflow.Change[anomaly.Status]{From: anomaly.StatusNew, To: anomaly.StatusInvestigating, Actor: "auditor", At: now}
	require.NoError(t, ext.OnAnomalyTransitioned(context.Background(), a, c))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "auditor", rec.events[0].Actor)
	assert.Equal(t, string(anomaly.StatusInvestigating), rec.events[0].Metadata["to"])
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("trail offline")
	}))
	assert.NoError(t, ext.OnOverdueFlagged(context.Background(), 2, 1))
}
