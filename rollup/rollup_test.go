package rollup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/rollup"
	"github.com/xraph/revenue/types"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func deptBill(t *testing.T, dept bill.Department, rate, paid int64) *bill.Bill {
	t.Helper()
	b := bill.NewDepartment(dept, "pat-1", "enc-1", "inr", "BIL-"+string(dept), "clerk", now)
	_, err := b.AddItem(bill.LineItem{Description: string(dept) + " charge", Quantity: 1, Rate: types.INR(rate)}, "clerk", now)
	require.NoError(t, err)
	if paid > 0 {
		require.NoError(t, b.RecordPayment(bill.Payment{Amount: types.INR(paid), ReceiptNumber: "R-" + string(dept)}, "cashier", now))
	}
	return b
}

func TestSummarizeAndApply(t *testing.T) {
	lab := deptBill(t, bill.DepartmentLaboratory, 1000, 0)
	rad := deptBill(t, bill.DepartmentRadiology, 500, 500)
	master := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-1", "clerk", now)

	s := rollup.Summarize("inr", []*bill.Bill{lab, rad})
	require.Len(t, s.Departments, 2)
	assert.Equal(t, bill.PaymentPending, s.Departments[bill.DepartmentLaboratory].Status)
	assert.Equal(t, bill.PaymentPaid, s.Departments[bill.DepartmentRadiology].Status)
	assert.Equal(t, int64(1500), s.Rollup.Subtotal.Amount)
	assert.Equal(t, int64(500), s.Rollup.Paid.Amount)

	require.True(t, rollup.Apply(master, s, "system", now))
	assert.Equal(t, int64(500), master.PaidAmount.Amount)
	assert.Equal(t, int64(1500), master.GrandTotal.Amount)
	assert.Equal(t, int64(1000), master.BalanceAmount.Amount)
	assert.Equal(t, bill.PaymentPartial, master.PaymentStatus)
	assert.Equal(t, 1, master.Audit.Count(audit.ActionSummarySynced))

	again := rollup.Summarize("inr", []*bill.Bill{lab, rad})
	assert.False(t, rollup.Apply(master, again, "system", now))
	assert.Equal(t, 1, master.Audit.Count(audit.ActionSummarySynced))
}

func TestSummarizeGroupsSameDepartment(t *testing.T) {
	a := deptBill(t, bill.DepartmentPharmacy, 300, 100)
	b := deptBill(t, bill.DepartmentPharmacy, 200, 0)
	cancelled := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-1", "inr", "BIL-X", "clerk", now)
	require.NoError(t, cancelled.Cancel("duplicate", "clerk", now))

	s := rollup.Summarize("inr", []*bill.Bill{a, b, cancelled, nil})
	p := s.Departments[bill.DepartmentPharmacy]
	assert.Equal(t, 2, p.Bills)
	assert.Equal(t, int64(500), p.Total.Amount)
	assert.Equal(t, int64(100), p.Paid.Amount)
	assert.Equal(t, bill.PaymentPartial, p.Status)
}

func TestMasterDirectPaymentsSurviveSync(t *testing.T) {
	master := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-1", "clerk", now)
	_, err := master.AddItem(bill.LineItem{ItemType: bill.ItemBed, Description: "Ward bed", Quantity: 2, Rate: types.INR(1000)}, "clerk", now)
	require.NoError(t, err)
	require.NoError(t, master.RecordPayment(bill.Payment{Amount: types.INR(300), ReceiptNumber: "R1"}, "cashier", now))

	lab := deptBill(t, bill.DepartmentLaboratory, 400, 400)
	rollup.Apply(master, rollup.Summarize("inr", []*bill.Bill{lab}), "system", now)

	assert.Equal(t, int64(700), master.PaidAmount.Amount)
	assert.Equal(t, int64(2400), master.GrandTotal.Amount)
	assert.Equal(t, master.GrandTotal.Amount-master.PaidAmount.Amount, master.BalanceAmount.Amount)
}
