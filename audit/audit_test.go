package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/audit"
)

func TestTrailAppendOnly(t *testing.T) {
	var trail audit.Trail
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	trail.Record(audit.ActionCreated, "clerk", at, nil)
	trail.Change(audit.ActionStatusChanged, "reviewer", at.Add(time.Minute), "new", "under_review", nil)

	require.Len(t, trail, 2)
	assert.Equal(t, audit.ActionCreated, trail[0].Action)

	last, ok := trail.Last()
	require.True(t, ok)
	assert.Equal(t, "new", last.PreviousValue)
	assert.Equal(t, "under_review", last.NewValue)
	assert.Equal(t, 1, trail.Count(audit.ActionStatusChanged))
}

func TestTrailCloneIsIndependent(t *testing.T) {
	var trail audit.Trail
	trail.Record(audit.ActionItemAdded, "clerk", time.Now(), map[string]any{"item": "cbc"})

	clone := trail.Clone()
	clone[0].Details["item"] = "changed"
	clone.Record(audit.ActionFinalized, "clerk", time.Now(), nil)

	assert.Equal(t, "cbc", trail[0].Details["item"])
	assert.Len(t, trail, 1)
	assert.Len(t, clone, 2)
}

func TestEmptyTrail(t *testing.T) {
	var trail audit.Trail
	_, ok := trail.Last()
	assert.False(t, ok)
	assert.Nil(t, trail.Clone())
}
