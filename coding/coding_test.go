package coding_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/coding"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var now = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newRecord() *coding.Record {
	return coding.New("pat-1", "enc-1", "COD-20250602-00001", "coder-1", now)
}

func procs() []coding.ProcedureCode {
	rate := types.INR(250000)
	return []coding.ProcedureCode{
		{Code: "0DTJ4ZZ", System: "ICD-10-PCS", Description: "Laparoscopic appendectomy"},
		{Code: "99223", System: "CPT", Description: "Initial hospital care", Quantity: 2, Rate: &rate},
	}
}

func TestSubmitRequiresCodes(t *testing.T) {
	r := newRecord()
	_, err := r.Transition(coding.StatusInProgress, "coder-1", "", coding.TransitionParams{}, now)
	require.NoError(t, err)
	assert.Equal(t, "coder-1", r.Coder)

	_, err = r.Transition(coding.StatusSubmitted, "coder-1", "", coding.TransitionParams{}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, coding.StatusInProgress, r.Status)
	assert.Len(t, r.History, 1)
}

func TestFullApprovalPath(t *testing.T) {
	r := newRecord()
	require.NoError(t, r.SetCodes(procs(), []coding.DiagnosisCode{{Code: "K35.80", Primary: true}}, "coder-1", now))
	assert.Equal(t, int64(1), r.Procedures[0].Quantity)

	steps := []coding.Status{coding.StatusInProgress, coding.StatusSubmitted}
	for _, s := range steps {
		_, err := r.Transition(s, "coder-1", "", coding.TransitionParams{}, now)
		require.NoError(t, err)
	}
	require.NotNil(t, r.SubmittedAt)

	_, err := r.Transition(coding.StatusReturned, "reviewer-1", "", coding.TransitionParams{}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = r.Transition(coding.StatusReturned, "reviewer-1", "", coding.TransitionParams{Reason: "missing modifier"}, now)
	require.NoError(t, err)
	assert.Equal(t, "missing modifier", r.ReturnReason)
	require.NoError(t, r.SetCodes(procs(), nil, "coder-1", now))

	for _, s := range steps {
		_, err = r.Transition(s, "coder-1", "", coding.TransitionParams{}, now)
		require.NoError(t, err)
	}
	assert.Empty(t, r.ReturnReason)

	_, err = r.Transition(coding.StatusApproved, "reviewer-1", "ok", coding.TransitionParams{}, now)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-1", r.Reviewer)
	require.NotNil(t, r.ApprovedAt)
	assert.True(t, r.NeedsSync())
	assert.Len(t, r.History, 6)
	assert.Equal(t, 6, r.Audit.Count(audit.ActionStatusChanged))

	assert.ErrorIs(t, r.SetCodes(procs(), nil, "coder-1", now), coding.ErrNotEditable)

	_, err = r.Transition(coding.StatusReturned, "reviewer-1", "", coding.TransitionParams{Reason: "late"}, now)
	var te *workflow.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "approved", te.From)
}

func TestApproveRequiresEncounter(t *testing.T) {
	r := coding.New("pat-1", "", "COD-1", "coder-1", now)
	require.NoError(t, r.SetCodes(procs(), nil, "coder-1", now))
	for _, s := range []coding.Status{coding.StatusInProgress, coding.StatusSubmitted} {
		_, err := r.Transition(s, "coder-1", "", coding.TransitionParams{}, now)
		require.NoError(t, err)
	}
	_, err := r.Transition(coding.StatusApproved, "reviewer-1", "", coding.TransitionParams{}, now)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = r.Transition(coding.StatusApproved, "", "", coding.TransitionParams{}, now)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reviewer", ve.Field)
}

func TestSetCodesValidation(t *testing.T) {
	r := newRecord()
	assert.ErrorIs(t, r.SetCodes([]coding.ProcedureCode{{Code: " "}}, nil, "c", now), types.ErrInvalidInput)
	assert.ErrorIs(t, r.SetCodes([]coding.ProcedureCode{{Code: "A", Quantity: -1}}, nil, "c", now), types.ErrInvalidInput)
	neg := types.INR(-1)
	assert.ErrorIs(t, r.SetCodes([]coding.ProcedureCode{{Code: "A", Rate: &neg}}, nil, "c", now), types.ErrInvalidInput)
	assert.ErrorIs(t, r.SetCodes(nil, []coding.DiagnosisCode{{}}, "c", now), types.ErrInvalidInput)
	assert.Empty(t, r.Procedures)
	assert.Equal(t, 0, r.Audit.Count(audit.ActionCodesUpdated))
}

func TestSyncMarkers(t *testing.T) {
	r := newRecord()
	require.NoError(t, r.SetCodes(procs(), nil, "coder-1", now))
	assert.Equal(t, r.ID.String()+":99223:1", r.ItemKey(1))

	r.MarkSyncFailed(errors.New("master bill locked"), "system", now)
	assert.Equal(t, coding.SyncFailed, r.BillingSync.Status)
	assert.Equal(t, "master bill locked", r.BillingSync.LastError)

	master := id.NewBillID()
	items := []id.LineItemID{id.NewLineItemID(), id.NewLineItemID()}
	r.MarkSynced(master, items, "system", now)
	assert.Equal(t, coding.SyncSynced, r.BillingSync.Status)
	assert.Equal(t, 2, r.BillingSync.Attempts)
	assert.Empty(t, r.BillingSync.LastError)
	assert.Equal(t, master, r.MasterBillID)
	assert.Equal(t, 1, r.Audit.Count(audit.ActionSyncFailed))
	assert.Equal(t, 1, r.Audit.Count(audit.ActionBillingSynced))
}

func TestFlagOverdue(t *testing.T) {
	r := newRecord()
	assert.False(t, r.FlagOverdue(now.Add(time.Hour)))
	assert.True(t, r.FlagOverdue(now.Add(coding.DefaultSLA+time.Minute)))
	assert.False(t, r.FlagOverdue(now.Add(coding.DefaultSLA+time.Hour)))
}

func TestCloneIsDeep(t *testing.T) {
	r := newRecord()
	require.NoError(t, r.SetCodes(procs(), nil, "coder-1", now))
	c := r.Clone()
	c.Procedures[1].Rate.Amount = 1
	c.Procedures[0].Code = "X"

	assert.Equal(t, int64(250000), r.Procedures[1].Rate.Amount)
	assert.Equal(t, "0DTJ4ZZ", r.Procedures[0].Code)
}
