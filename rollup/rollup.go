// Package rollup folds department bills into their encounter master bill.
//
// Summarize is a full recomputation over every linked bill. It is cheap
// enough at encounter scale and makes repeated syncs self-healing.
package rollup

import (
	"maps"
	"time"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/types"
)

// Summary is the result of folding a master's linked bills.
type Summary struct {
	Departments map[bill.Department]bill.DepartmentSummary
	Rollup      bill.Rollup
}

// Summarize buckets depts by department. Cancelled bills are skipped.
func Summarize(currency string, depts []*bill.Bill) Summary {
	zero := types.Zero(currency)
	s := Summary{
		Departments: make(map[bill.Department]bill.DepartmentSummary),
		Rollup:      bill.Rollup{Subtotal: zero, Discount: zero, Tax: zero, Paid: zero},
	}

	for _, d := range depts {
		if d == nil || d.Status == bill.StatusCancelled {
			continue
		}
		bucket, ok := s.Departments[d.Department]
		if !ok {
			bucket = bill.DepartmentSummary{Total: zero, Paid: zero}
		}
		bucket.Total = bucket.Total.Add(d.GrandTotal)
		bucket.Paid = bucket.Paid.Add(d.PaidAmount)
		bucket.Bills++
		s.Departments[d.Department] = bucket

		s.Rollup.Subtotal = s.Rollup.Subtotal.Add(d.Subtotal)
		s.Rollup.Discount = s.Rollup.Discount.Add(d.TotalDiscount)
		s.Rollup.Tax = s.Rollup.Tax.Add(d.TotalTax)
		s.Rollup.Paid = s.Rollup.Paid.Add(d.PaidAmount)
	}

	for k, b := range s.Departments {
		b.Status = bill.DerivePaymentStatus(b.Paid, b.Total)
		s.Departments[k] = b
	}
	return s
}

// Apply writes s onto master and recomputes it. It appends a
// summary_synced entry and returns true only when something changed.
func Apply(master *bill.Bill, s Summary, actor string, now time.Time) bool {
	if master.Rollup == s.Rollup && maps.Equal(master.DepartmentPayments, s.Departments) {
		return false
	}

	prevPaid := master.PaidAmount
	master.DepartmentPayments = s.Departments
	master.Rollup = s.Rollup
	master.Recalculate()
	master.Touch(now)

	details := make(map[string]any, len(s.Departments)+1)
	details["linked_bills"] = len(master.LinkedBills)
	for dept, b := range s.Departments {
		details[string(dept)] = b.Paid.Amount
	}
	master.Audit.Change(audit.ActionSummarySynced, actor, now, prevPaid.FormatMajor(), master.PaidAmount.FormatMajor(), details)
	return true
}
