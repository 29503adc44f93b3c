package revenue_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/xraph/revenue"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/store/memory"
	"github.com/xraph/revenue/types"
)

// Orders from two departments land on their own bills and roll up into
// the encounter's master bill.
func Example() {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	eng := revenue.New(memory.New(),
		revenue.WithLogger(slog.New(slog.DiscardHandler)),
		revenue.WithClock(func() time.Time { return at }),
		revenue.WithSweepInterval(0),
	)
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Stop()

	pharmacy := types.INR(50000)
	if _, err := eng.AddBillableItem(ctx, revenue.BillableItem{
		PatientID:      "pat-7",
		EncounterID:    "enc-42",
		Department:     bill.DepartmentPharmacy,
		Description:    "Amoxicillin 500mg x10",
		Rate:           &pharmacy,
		IdempotencyKey: "rx-1001",
		Actor:          "pharmacy-svc",
	}); err != nil {
		log.Fatal(err)
	}

	lab := types.INR(120000)
	labBill, err := eng.AddBillableItem(ctx, revenue.BillableItem{
		PatientID:      "pat-7",
		EncounterID:    "enc-42",
		Department:     bill.DepartmentLaboratory,
		Description:    "Complete blood count",
		Rate:           &lab,
		IdempotencyKey: "lab-2001",
		Actor:          "lab-svc",
	})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := eng.RecordPayment(ctx, revenue.PaymentInput{
		BillID: labBill.ID,
		Amount: types.INR(120000),
		Mode:   bill.ModeUPI,
		Actor:  "cashier-1",
	}); err != nil {
		log.Fatal(err)
	}

	master, err := eng.GetMasterBill(ctx, "enc-42")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(master.Number, len(master.LinkedBills))
	fmt.Println(master.GrandTotal.Amount, master.PaidAmount.Amount, master.PaymentStatus)
	// Output:
	// MBL-20250601-00001 2
	// 170000 120000 partial
}
