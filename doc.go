// Package revenue consolidates hospital billing and tracks revenue
// integrity for an encounter.
//
// Revenue is a library, not a service. Import it into the hospital
// application and give it a store:
//
//	import (
//	    "github.com/xraph/revenue"
//	    "github.com/xraph/revenue/store/postgres"
//	)
//
//	s := postgres.New(db)
//	eng := revenue.New(s, revenue.WithCurrency("inr"))
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Bills
//
// Pharmacy, laboratory and radiology orders land on department bills.
// AddBillableItem finds the encounter's open bill for the department,
// prices the item from the tariff master and links the bill to the
// encounter's master bill:
//
//	dept, err := eng.AddBillableItem(ctx, revenue.BillableItem{
//	    PatientID:   "pat-1",
//	    EncounterID: "enc-1",
//	    Department:  bill.DepartmentPharmacy,
//	    TariffCode:  "PARA500",
//	    Quantity:    10,
//	    Actor:       "pharmacist-7",
//	})
//
// Totals and payment status are always recomputed from items and
// payments. A bill locks once it is paid in full. The master bill keeps a
// per-department payment summary that SyncPaymentSummary rebuilds from
// every linked bill.
//
// # Revenue integrity
//
// Detectors report anomalies with RaiseAnomaly; reviewers move them
// through new, under_review, investigating, escalated, resolved,
// false_positive and closed. Coders move coding records through pending,
// in_progress, submitted, returned and approved. Approval adds the
// procedure codes to the master bill as system-generated items.
//
// Every change appends an audit entry and is written with a version check;
// conflicting writers are retried.
//
// All monetary values are integers in the currency's minor unit (paise for
// INR, cents for USD).
package revenue
