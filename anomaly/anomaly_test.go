package anomaly_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/anomaly"
	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func raise(t *testing.T, sev anomaly.Severity, impact int64) *anomaly.Anomaly {
	t.Helper()
	sig := anomaly.Signal{
		Category:        anomaly.CategoryUnbilledLabTest,
		Severity:        sev,
		PatientID:       "pat-1",
		EncounterID:     "enc-1",
		EstimatedImpact: types.INR(impact),
		Score:           0.87,
		Description:     "CBC resulted but never billed",
	}
	require.NoError(t, sig.Validate())
	return anomaly.New(sig, "ANM-20250601-00001", "inr", now)
}

func TestNewAnomaly(t *testing.T) {
	a := raise(t, anomaly.SeverityHigh, 120000)

	assert.Equal(t, anomaly.StatusNew, a.Status)
	assert.Equal(t, anomaly.SourceRules, a.Source)
	assert.Equal(t, 3, a.Priority)
	assert.Equal(t, "enc-1:unbilled-lab-test", a.OpenKey)
	assert.Equal(t, now.Add(24*time.Hour), a.DueBy)
	require.Len(t, a.Audit, 1)
	assert.Equal(t, audit.ActionCreated, a.Audit[0].Action)
	assert.Equal(t, "rules", a.Audit[0].Actor)
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		sev    anomaly.Severity
		impact int64
		want   int
	}{
		{anomaly.SeverityLow, 1_000_000, 4},
		{anomaly.SeverityLow, 500_000, 3},
		{anomaly.SeverityCritical, 0, 3},
		{anomaly.SeverityHigh, 100, 3},
		{anomaly.SeverityMedium, 499_999, 2},
		{anomaly.SeverityLow, 0, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, anomaly.PriorityFor(tc.sev, types.INR(tc.impact)), "%s/%d", tc.sev, tc.impact)
	}
}

func TestSeveritySLA(t *testing.T) {
	assert.Equal(t, 4*time.Hour, anomaly.SeverityCritical.SLA())
	assert.Equal(t, 72*time.Hour, anomaly.SeverityMedium.SLA())
	assert.Equal(t, 168*time.Hour, anomaly.SeverityLow.SLA())
}

func TestSignalValidate(t *testing.T) {
	base := anomaly.Signal{
		Category: anomaly.CategoryPriceMismatch, Severity: anomaly.SeverityLow,
		PatientID: "p", EncounterID: "e", Description: "d",
	}

	bad := base
	bad.Category = "fraud"
	assert.ErrorIs(t, bad.Validate(), types.ErrInvalidInput)

	bad = base
	bad.Source = "oracle"
	assert.ErrorIs(t, bad.Validate(), types.ErrInvalidInput)

	bad = base
	bad.EstimatedImpact = types.INR(-5)
	assert.ErrorIs(t, bad.Validate(), types.ErrInvalidInput)

	assert.NoError(t, base.Validate())
}

func TestReviewToResolution(t *testing.T) {
	a := raise(t, anomaly.SeverityMedium, 40000)
	later := now.Add(time.Hour)

	_, err := a.Transition(anomaly.StatusUnderReview, "auditor", "", anomaly.TransitionParams{}, later)
	require.NoError(t, err)
	_, err = a.Transition(anomaly.StatusInvestigating, "auditor", "", anomaly.TransitionParams{}, later)
	require.NoError(t, err)

	_, err = a.Transition(anomaly.StatusResolved, "auditor", "", anomaly.TransitionParams{}, later)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, anomaly.StatusInvestigating, a.Status)

	_, err = a.Transition(anomaly.StatusResolved, "auditor", "added to bill", anomaly.TransitionParams{
		ResolutionType:  anomaly.ResolutionBilled,
		AmountRecovered: types.INR(40000),
	}, later)
	require.NoError(t, err)

	require.NotNil(t, a.Resolution)
	assert.Equal(t, "auditor", a.Resolution.ResolvedBy)
	assert.Equal(t, "added to bill", a.Resolution.Notes)
	assert.Equal(t, "inr", a.Resolution.AmountRecovered.Currency)
	assert.Empty(t, a.OpenKey)
	assert.Len(t, a.History, 3)
	assert.Equal(t, 3, a.Audit.Count(audit.ActionStatusChanged))

	_, err = a.Transition(anomaly.StatusClosed, "manager", "", anomaly.TransitionParams{}, later)
	require.NoError(t, err)
	require.NotNil(t, a.ClosedAt)
	assert.True(t, anomaly.Machine().IsTerminal(a.Status))
}

func TestTerminalStateRejects(t *testing.T) {
	a := raise(t, anomaly.SeverityLow, 0)
	_, err := a.Transition(anomaly.StatusFalsePositive, "auditor", "", anomaly.TransitionParams{
		Reason: "billed under package", Justification: "package PKG-12 covers CBC",
	}, now)
	require.NoError(t, err)
	require.NotNil(t, a.Dismissal)
	_, err = a.Transition(anomaly.StatusClosed, "auditor", "", anomaly.TransitionParams{}, now)
	require.NoError(t, err)

	history := len(a.History)
	_, err = a.Transition(anomaly.StatusInvestigating, "auditor", "", anomaly.TransitionParams{}, now)

	var te *workflow.TransitionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, workflow.ErrDisallowedTransition)
	assert.Equal(t, "closed", te.From)
	assert.Empty(t, te.Allowed)
	assert.Len(t, a.History, history)
	assert.ErrorIs(t, a.Assign("bob", "manager", now), anomaly.ErrClosed)
}

func TestGuards(t *testing.T) {
	a := raise(t, anomaly.SeverityLow, 0)

	_, err := a.Transition(anomaly.StatusFalsePositive, "auditor", "", anomaly.TransitionParams{Reason: "dup"}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = a.Transition(anomaly.StatusUnderReview, "auditor", "", anomaly.TransitionParams{}, now)
	require.NoError(t, err)
	_, err = a.Transition(anomaly.StatusEscalated, "auditor", "", anomaly.TransitionParams{}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	_, err = a.Transition(anomaly.StatusEscalated, "auditor", "", anomaly.TransitionParams{Reason: "needs finance"}, now)
	require.NoError(t, err)
	assert.Equal(t, "needs finance", a.EscalationReason)
	assert.NotEmpty(t, a.OpenKey)

	_, err = a.Transition(anomaly.StatusResolved, "auditor", "", anomaly.TransitionParams{
		ResolutionType: anomaly.ResolutionCorrected, AmountRecovered: types.INR(-1),
	}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestAssign(t *testing.T) {
	a := raise(t, anomaly.SeverityLow, 0)
	require.NoError(t, a.Assign("bob", "manager", now))

	assert.Equal(t, "bob", a.AssignedTo)
	assert.Equal(t, anomaly.StatusNew, a.Status)
	last, _ := a.Audit.Last()
	assert.Equal(t, audit.ActionAssigned, last.Action)
	assert.Equal(t, "bob", last.NewValue)
	assert.ErrorIs(t, a.Assign(" ", "manager", now), types.ErrInvalidInput)
}

func TestFlagOverdue(t *testing.T) {
	a := raise(t, anomaly.SeverityCritical, 0)

	assert.False(t, a.FlagOverdue(now.Add(time.Hour)))
	assert.True(t, a.FlagOverdue(now.Add(5*time.Hour)))
	assert.False(t, a.FlagOverdue(now.Add(6*time.Hour)))
	assert.Equal(t, 1, a.Audit.Count(audit.ActionOverdueFlagged))
}

func TestTally(t *testing.T) {
	a := raise(t, anomaly.SeverityLow, 1000)
	b := raise(t, anomaly.SeverityLow, 2000)
	_, err := b.Transition(anomaly.StatusUnderReview, "x", "", anomaly.TransitionParams{}, now)
	require.NoError(t, err)
	_, err = b.Transition(anomaly.StatusInvestigating, "x", "", anomaly.TransitionParams{}, now)
	require.NoError(t, err)
	_, err = b.Transition(anomaly.StatusResolved, "x", "", anomaly.TransitionParams{
		ResolutionType: anomaly.ResolutionBilled, AmountRecovered: types.INR(1500),
	}, now)
	require.NoError(t, err)

	s := anomaly.Tally("inr", []*anomaly.Anomaly{a, b})
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.ByStatus[anomaly.StatusNew])
	assert.Equal(t, 1, s.ByStatus[anomaly.StatusResolved])
	assert.Equal(t, 2, s.ByCategory[anomaly.CategoryUnbilledLabTest])
	assert.Equal(t, int64(3000), s.EstimatedImpact.Amount)
	assert.Equal(t, int64(1500), s.Recovered.Amount)
}

func TestCloneIsDeep(t *testing.T) {
	a := raise(t, anomaly.SeverityLow, 0)
	a.Evidence = map[string]any{"order": "o-1"}
	c := a.Clone()
	c.Evidence["order"] = "o-2"
	c.History = append(c.History, workflow.Change[anomaly.Status]{To: anomaly.StatusClosed})

	assert.Equal(t, "o-1", a.Evidence["order"])
	assert.Empty(t, a.History)
}
