package audithook

// Action constants for audit events.
const (
	// Bill actions
	ActionBillCreated     = "bill.created"
	ActionBillItemAdded   = "bill.item_added"
	ActionPaymentRecorded = "bill.payment_recorded"
	ActionBillLocked      = "bill.locked"
	ActionBillFinalized   = "bill.finalized"
	ActionBillCancelled   = "bill.cancelled"

	// Rollup actions
	ActionDepartmentLinked = "rollup.department_linked"
	ActionSummarySynced    = "rollup.summary_synced"
	ActionRollupFailed     = "rollup.failed"

	// Anomaly actions
	ActionAnomalyRaised       = "anomaly.raised"
	ActionAnomalyTransitioned = "anomaly.transitioned"
	ActionAnomalyAssigned     = "anomaly.assigned"

	// Coding actions
	ActionCodingTransitioned = "coding.transitioned"
	ActionBillingSynced      = "coding.billing_synced"
	ActionBillingSyncFailed  = "coding.billing_sync_failed"

	// Sweep actions
	ActionOverdueFlagged = "sweep.overdue_flagged"
)

// Resource constants for audit events.
const (
	ResourceBill    = "bill"
	ResourceAnomaly = "anomaly"
	ResourceCoding  = "coding"
	ResourceSweep   = "sweep"
)

// Category constants for audit events.
const (
	CategoryBilling   = "billing"
	CategoryPayment   = "payment"
	CategoryIntegrity = "revenue_integrity"
	CategoryCoding    = "coding"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
