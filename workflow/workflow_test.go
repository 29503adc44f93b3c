package workflow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

type doorState string

const (
	closed doorState = "closed"
	open   doorState = "open"
	locked doorState = "locked"
	gone   doorState = "gone"
)

type door struct {
	status  doorState
	history []workflow.Change[doorState]
	trail   audit.Trail
	entered int
}

func (d *door) CurrentStatus() doorState { return d.status }
func (d *door) SetStatus(s doorState) { d.status = s }
func (d *door) AppendChange(c workflow.Change[doorState]) { d.history = append(d.history, c) }
func (d *door) AuditTrail() *audit.Trail { return &d.trail }

type doorParams struct{ Key string }

func newMachine() *workflow.Machine[doorState, *door, doorParams] {
	return workflow.New[doorState, *door, doorParams]("door", map[doorState][]doorState{
		closed: {open, locked},
		open:   {closed},
		locked: {closed, gone},
	}).
		Guard(locked, func(_ *door, p doorParams) error {
			if p.Key == "" {
				return types.NewValidationError("key", "required to lock")
			}
			return nil
		}).
		OnEnter(open, func(d *door, _ doorParams, _ workflow.Change[doorState]) { d.entered++ })
}

func TestApplyAllowedTransition(t *testing.T) {
	m := newMachine()
	d := &door{status: closed}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	c, err := m.Apply(d, open, "alice", "airing", doorParams{}, at)
	require.NoError(t, err)

	assert.Equal(t, open, d.status)
	assert.Equal(t, closed, c.From)
	assert.Equal(t, open, c.To)
	require.Len(t, d.history, 1)
	assert.Equal(t, "airing", d.history[0].Notes)
	assert.Equal(t, 1, d.entered)

	require.Len(t, d.trail, 1)
	assert.Equal(t, audit.ActionStatusChanged, d.trail[0].Action)
	assert.Equal(t, "closed", d.trail[0].PreviousValue)
	assert.Equal(t, "open", d.trail[0].NewValue)
}

func TestApplyDisallowedLeavesSubjectUntouched(t *testing.T) {
	m := newMachine()
	d := &door{status: open}

	_, err := m.Apply(d, locked, "alice", "", doorParams{Key: "k"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrDisallowedTransition))

	var te *workflow.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "open", te.From)
	assert.Equal(t, "locked", te.To)
	assert.Equal(t, []string{"closed"}, te.Allowed)

	assert.Equal(t, open, d.status)
	assert.Empty(t, d.history)
	assert.Empty(t, d.trail)
}

func TestGuardFailureIsValidationNotTransition(t *testing.T) {
	m := newMachine()
	d := &door{status: closed}

	_, err := m.Apply(d, locked, "alice", "", doorParams{}, time.Now())
	require.Error(t, err)

	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.False(t, errors.Is(err, workflow.ErrDisallowedTransition))
	assert.Equal(t, closed, d.status)
	assert.Empty(t, d.history)
}

func TestTerminalState(t *testing.T) {
	m := newMachine()
	assert.True(t, m.IsTerminal(gone))
	assert.False(t, m.IsTerminal(closed))

	d := &door{status: gone}
	_, err := m.Apply(d, closed, "alice", "", doorParams{}, time.Now())
	require.ErrorIs(t, err, workflow.ErrDisallowedTransition)
	assert.Contains(t, err.Error(), "terminal")
}

func TestAllowedReturnsCopy(t *testing.T) {
	m := newMachine()
	allowed := m.Allowed(closed)
	allowed[0] = gone
	assert.True(t, m.CanTransition(closed, open))
}
