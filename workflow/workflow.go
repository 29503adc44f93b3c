// Package workflow provides a table-driven state machine shared by every
// revenue document with a governed lifecycle (anomalies, coding records).
//
// A Machine validates a requested transition against its table, runs the
// target state's guard, and only then mutates the subject: it appends a
// history Change, sets the new status, appends one audit entry and runs
// the target's entry action. A rejected transition leaves the subject
// untouched, so callers persist the subject in a single write.
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/revenue/audit"
)

// ErrDisallowedTransition is matched by every *TransitionError.
var ErrDisallowedTransition = errors.New("revenue: disallowed transition")

// TransitionError reports a transition that is not in the table.
type TransitionError struct {
	Kind    string
	From    string
	To      string
	Allowed []string
}

func (e *TransitionError) Error() string {
	allowed := "none (terminal state)"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("revenue: %s cannot move from %q to %q; allowed: %s", e.Kind, e.From, e.To, allowed)
}

// Is makes errors.Is(err, ErrDisallowedTransition) true.
func (e *TransitionError) Is(target error) bool { return target == ErrDisallowedTransition }

// Change is one entry of a subject's status history.
type Change[S ~string] struct {
	From  S         `json:"from"  bson:"from"`
	To    S         `json:"to"    bson:"to"`
	Actor string    `json:"actor" bson:"actor"`
	At    time.Time `json:"at"    bson:"at"`
	Notes string    `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Subject is a document whose status is governed by a Machine.
type Subject[S ~string] interface {
	CurrentStatus() S
	SetStatus(S)
	AppendChange(Change[S])
	AuditTrail() *audit.Trail
}

// Guard validates transition parameters against the subject before any
// mutation. It returns a *types.ValidationError on bad input.
type Guard[T any, P any] func(subject T, params P) error

// Action runs after a successful transition.
type Action[S ~string, T any, P any] func(subject T, params P, c Change[S])

// Machine is an immutable transition table with guards and entry actions.
type Machine[S ~string, T Subject[S], P any] struct {
	kind    string
	table   map[S][]S
	guards  map[S]Guard[T, P]
	onEnter map[S]Action[S, T, P]
}

// New creates a Machine for documents of kind ("anomaly", "coding").
// States absent from table, or mapped to an empty slice, are terminal.
func New[S ~string, T Subject[S], P any](kind string, table map[S][]S) *Machine[S, T, P] {
	t := make(map[S][]S, len(table))
	for from, to := range table {
		t[from] = slices.Clone(to)
	}
	return &Machine[S, T, P]{
		kind:    kind,
		table:   t,
		guards:  make(map[S]Guard[T, P]),
		onEnter: make(map[S]Action[S, T, P]),
	}
}

// Guard registers the validation run before entering state.
func (m *Machine[S, T, P]) Guard(state S, g Guard[T, P]) *Machine[S, T, P] {
	m.guards[state] = g
	return m
}

// OnEnter registers the action run after entering state.
func (m *Machine[S, T, P]) OnEnter(state S, a Action[S, T, P]) *Machine[S, T, P] {
	m.onEnter[state] = a
	return m
}

// Allowed returns the states reachable from state in one step.
func (m *Machine[S, T, P]) Allowed(state S) []S {
	return slices.Clone(m.table[state])
}

// CanTransition reports whether to is reachable from from in one step.
func (m *Machine[S, T, P]) CanTransition(from, to S) bool {
	return slices.Contains(m.table[from], to)
}

// IsTerminal reports whether state has no outgoing transitions.
func (m *Machine[S, T, P]) IsTerminal(state S) bool {
	return len(m.table[state]) == 0
}

// Apply moves subject to target.
func (m *Machine[S, T, P]) Apply(subject T, target S, actor, notes string, params P, at time.Time) (Change[S], error) {
	from := subject.CurrentStatus()
	if !m.CanTransition(from, target) {
		allowed := make([]string, 0, len(m.table[from]))
		for _, s := range m.table[from] {
			allowed = append(allowed, string(s))
		}
		return Change[S]{}, &TransitionError{
			Kind:    m.kind,
			From:    string(from),
			To:      string(target),
			Allowed: allowed,
		}
	}

	if g, ok := m.guards[target]; ok {
		if err := g(subject, params); err != nil {
			return Change[S]{}, err
		}
	}

	c := Change[S]{From: from, To: target, Actor: actor, At: at.UTC(), Notes: notes}
	subject.AppendChange(c)
	subject.SetStatus(target)

	details := map[string]any{}
	if notes != "" {
		details["notes"] = notes
	}
	subject.AuditTrail().Change(audit.ActionStatusChanged, actor, at, string(from), string(target), details)

	if a, ok := m.onEnter[target]; ok {
		a(subject, params, c)
	}
	return c, nil
}
