// Package audit holds the append-only trail embedded in every mutable
// revenue document.
package audit

import "time"

// Action names a recorded state change.
type Action string

const (
	ActionCreated          Action = "created"
	ActionItemAdded        Action = "item_added"
	ActionPaymentRecorded  Action = "payment_recorded"
	ActionFinalized        Action = "finalized"
	ActionCancelled        Action = "cancelled"
	ActionDepartmentLinked Action = "department_linked"
	ActionSummarySynced    Action = "summary_synced"
	ActionStatusChanged    Action = "status_changed"
	ActionAssigned         Action = "assigned"
	ActionCodesUpdated     Action = "codes_updated"
	ActionBillingSynced    Action = "billing_synced"
	ActionSyncFailed       Action = "sync_failed"
	ActionOverdueFlagged   Action = "overdue_flagged"
)

// Entry is one immutable audit record.
type Entry struct {
	Action        Action         `json:"action"                   bson:"action"`
	Actor         string         `json:"actor"                    bson:"actor"`
	At            time.Time      `json:"at"                       bson:"at"`
	Details       map[string]any `json:"details,omitempty"        bson:"details,omitempty"`
	PreviousValue string         `json:"previous_value,omitempty" bson:"previous_value,omitempty"`
	NewValue      string         `json:"new_value,omitempty"      bson:"new_value,omitempty"`
}

// Trail is an append-only list of entries. Append is its only mutator.
type Trail []Entry

// Append adds e to the end of the trail.
func (t *Trail) Append(e Entry) {
	*t = append(*t, e)
}

// Record is shorthand for appending an entry without previous/new values.
func (t *Trail) Record(action Action, actor string, at time.Time, details map[string]any) {
	t.Append(Entry{Action: action, Actor: actor, At: at.UTC(), Details: details})
}

// Change appends an entry carrying a previous and new value.
func (t *Trail) Change(action Action, actor string, at time.Time, prev, next string, details map[string]any) {
	t.Append(Entry{
		Action:        action,
		Actor:         actor,
		At:            at.UTC(),
		Details:       details,
		PreviousValue: prev,
		NewValue:      next,
	})
}

// Last returns the most recent entry and false when the trail is empty.
func (t Trail) Last() (Entry, bool) {
	if len(t) == 0 {
		return Entry{}, false
	}
	return t[len(t)-1], true
}

// Count returns how many entries carry action.
func (t Trail) Count(action Action) int {
	n := 0
	for _, e := range t {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Clone returns a copy that shares no backing array with t.
func (t Trail) Clone() Trail {
	if t == nil {
		return nil
	}
	out := make(Trail, len(t))
	for i, e := range t {
		if e.Details != nil {
			d := make(map[string]any, len(e.Details))
			for k, v := range e.Details {
				d[k] = v
			}
			e.Details = d
		}
		out[i] = e
	}
	return out
}

// Overdue is the entry appended when a document passes its due time.
// SQL stores marshal it into the same statement that sets the flag.
func Overdue(dueBy, now time.Time) Entry {
	return Entry{
		Action:  ActionOverdueFlagged,
		Actor:   "system",
		At:      now.UTC(),
		Details: map[string]any{"due_by": dueBy.UTC().Format(time.RFC3339)},
	}
}
