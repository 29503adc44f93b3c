package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/store/memory"
	"github.com/xraph/revenue/store/storetest"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-1", "inr", "BIL-1", "test", now)
	require.NoError(t, s.CreateBill(ctx, b))

	got, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	got.Items = append(got.Items, bill.LineItem{Description: "leak"})
	got.Audit = nil

	again, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Items)
	assert.Len(t, again.Audit, 1)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.New()

	err := s.CreateBill(ctx, bill.NewMaster("pat-1", "enc-1", "inr", "MBL-1", "test", now))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetMasterBill(context.Background(), "enc-1")
	assert.Error(t, err)
}
