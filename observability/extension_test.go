package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/observability"
	"github.com/xraph/revenue/plugin"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestMetricsThroughRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	plugins := plugin.NewRegistry()
	require.NoError(t, plugins.Register(metrics))

	ctx := context.Background()
	b := bill.NewDepartment(bill.DepartmentPharmacy, "pat-1", "enc-1", "inr", "BIL-20250601-00001", "pharmacist", now)
	plugins.EmitBillCreated(ctx, b)
	plugins.EmitBillItemAdded(ctx, b, bill.LineItem{ItemType: bill.ItemMedicine, IsSystemGenerated: true})
	plugins.EmitPaymentRecorded(ctx, b, bill.Payment{Amount: types.INR(5000)})
	plugins.EmitOverdueFlagged(ctx, 3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BillCreated.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SystemItemAdded.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PaymentRecorded.(prometheus.Counter)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AnomalyOverdue.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CodingOverdue.(prometheus.Counter)))

	n, err := testutil.GatherAndCount(reg, "revenue_payment_amount")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAnomalyOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	sig := anomaly.Signal{
		Category: anomaly.CategoryUnbilledLabTest, Severity: anomaly.SeverityCritical,
		PatientID: "pat-1", EncounterID: "enc-1", Description: "CT not billed",
		EstimatedImpact: types.INR(450000),
	}
	require.NoError(t, sig.Validate())
	a := anomaly.New(sig, "ANM-20250601-00001", "inr", now)

	require.NoError(t, metrics.OnAnomalyRaised(ctx, a))
	require.NoError(t, metrics.OnAnomalyTransitioned(ctx, a, workflow.Change[anomaly.Status]{To: anomaly.StatusFalsePositive}))
	require.NoError(t, metrics.OnAnomalyTransitioned(ctx, a, workflow.Change[anomaly.Status]{To: anomaly.StatusResolved}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnomalyCritical.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnomalyDismissed.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnomalyResolved.(prometheus.Counter)))
}

func TestFactoryReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	second := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	first.BillLocked.Inc()
	second.BillLocked.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.BillLocked.(prometheus.Counter)))
}
