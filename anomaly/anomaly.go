// Package anomaly models revenue-leakage findings and their review
// lifecycle. Detection happens elsewhere; this package only governs what
// may happen to a finding once it is raised.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/revenue/audit"
	"github.com/xraph/revenue/id"
	"github.com/xraph/revenue/types"
	"github.com/xraph/revenue/workflow"
)

var (
	ErrNotFound = types.NotFound("anomaly")
	ErrClosed   = errors.New("revenue: anomaly is closed")
)

type Status string

const (
	StatusNew           Status = "new"
	StatusUnderReview   Status = "under_review"
	StatusInvestigating Status = "investigating"
	StatusEscalated     Status = "escalated"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
	StatusClosed        Status = "closed"
)

// OpenStatuses are the statuses that still need work. Only open
// anomalies deduplicate new signals and become overdue.
func OpenStatuses() []Status {
	return []Status{StatusNew, StatusUnderReview, StatusInvestigating, StatusEscalated}
}

// IsOpen reports whether s is one of OpenStatuses.
func (s Status) IsOpen() bool { return slices.Contains(OpenStatuses(), s) }

type Category string

const (
	CategoryUnbilledService   Category = "unbilled-service"
	CategoryUnbilledMedicine  Category = "unbilled-medicine"
	CategoryUnbilledLabTest   Category = "unbilled-lab-test"
	CategoryUnbilledRadiology Category = "unbilled-radiology-test"
	CategoryPriceMismatch     Category = "price-mismatch"
	CategoryUnusualPattern    Category = "unusual-pattern"
	CategoryDuplicateBilling  Category = "duplicate-billing"
	CategoryMissingCharges    Category = "missing-charges"
)

var categories = []Category{
	CategoryUnbilledService, CategoryUnbilledMedicine, CategoryUnbilledLabTest,
	CategoryUnbilledRadiology, CategoryPriceMismatch, CategoryUnusualPattern,
	CategoryDuplicateBilling, CategoryMissingCharges,
}

// Categories returns every known category.
func Categories() []Category { return slices.Clone(categories) }

func (c Category) Valid() bool { return slices.Contains(categories, c) }

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SLA is the time allowed to work an anomaly of this severity.
func (s Severity) SLA() time.Duration {
	switch s {
	case SeverityCritical:
		return 4 * time.Hour
	case SeverityHigh:
		return 24 * time.Hour
	case SeverityMedium:
		return 72 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

type Source string

const (
	SourceML     Source = "ml"
	SourceRules  Source = "rules"
	SourceManual Source = "manual"
)

func (s Source) Valid() bool {
	return s == SourceML || s == SourceRules || s == SourceManual
}

type ResolutionType string

const (
	ResolutionCorrected  ResolutionType = "corrected"
	ResolutionBilled     ResolutionType = "billed"
	ResolutionWrittenOff ResolutionType = "written_off"
	ResolutionNoAction   ResolutionType = "no_action"
)

func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionCorrected, ResolutionBilled, ResolutionWrittenOff, ResolutionNoAction:
		return true
	}
	return false
}

// Impact thresholds, in minor units (₹10,000 and ₹5,000).
const (
	CriticalImpact int64 = 1_000_000
	HighImpact     int64 = 500_000
)

// PriorityFor ranks an anomaly from 1 (lowest) to 4. Estimated impact
// dominates; severity decides below the impact thresholds.
func PriorityFor(sev Severity, impact types.Money) int {
	switch {
	case impact.Amount >= CriticalImpact:
		return 4
	case impact.Amount >= HighImpact:
		return 3
	case sev == SeverityCritical, sev == SeverityHigh:
		return 3
	case sev == SeverityMedium:
		return 2
	default:
		return 1
	}
}

// DedupKey identifies the open anomaly a signal would duplicate.
func DedupKey(encounterID string, c Category) string {
	return encounterID + ":" + string(c)
}

type Resolution struct {
	Type            ResolutionType `json:"type"`
	AmountRecovered types.Money    `json:"amount_recovered"`
	Notes           string         `json:"notes,omitempty"`
	ResolvedBy      string         `json:"resolved_by"`
	ResolvedAt      time.Time      `json:"resolved_at"`
}

type Dismissal struct {
	Reason        string    `json:"reason"`
	Justification string    `json:"justification"`
	DismissedBy   string    `json:"dismissed_by"`
	DismissedAt   time.Time `json:"dismissed_at"`
}

type Anomaly struct {
	types.Entity
	ID              id.AnomalyID   `json:"id"`
	Number          string         `json:"number"`
	Status          Status         `json:"status"`
	Category        Category       `json:"category"`
	Severity        Severity       `json:"severity"`
	Priority        int            `json:"priority"`
	Source          Source         `json:"source"`
	PatientID       string         `json:"patient_id"`
	EncounterID     string         `json:"encounter_id"`
	AffectedRef     string         `json:"affected_ref,omitempty"`
	EstimatedImpact types.Money    `json:"estimated_impact"`
	Score           float64        `json:"score"`
	Description     string         `json:"description"`
	Evidence        map[string]any `json:"evidence,omitempty"`
	AssignedTo      string         `json:"assigned_to,omitempty"`

	Resolution       *Resolution `json:"resolution,omitempty"`
	Dismissal        *Dismissal  `json:"dismissal,omitempty"`
	EscalationReason string      `json:"escalation_reason,omitempty"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty"`

	// OpenKey holds DedupKey while the anomaly is open and is empty
	// afterwards. Stores index it uniquely.
	OpenKey   string    `json:"open_key,omitempty"`
	DueBy     time.Time `json:"due_by"`
	IsOverdue bool      `json:"is_overdue"`

	History []workflow.Change[Status] `json:"history"`
	Audit   audit.Trail               `json:"audit"`
}

func (a *Anomaly) CurrentStatus() Status                  { return a.Status }
func (a *Anomaly) SetStatus(s Status)                     { a.Status = s }
func (a *Anomaly) AppendChange(c workflow.Change[Status]) { a.History = append(a.History, c) }
func (a *Anomaly) AuditTrail() *audit.Trail               { return &a.Audit }

// Signal is what a detector reports.
type Signal struct {
	Category        Category       `json:"category"         validate:"required"`
	Severity        Severity       `json:"severity"         validate:"required"`
	Source          Source         `json:"source"`
	PatientID       string         `json:"patient_id"       validate:"required"`
	EncounterID     string         `json:"encounter_id"     validate:"required"`
	AffectedRef     string         `json:"affected_ref"`
	EstimatedImpact types.Money    `json:"estimated_impact"`
	Score           float64        `json:"score"            validate:"gte=0,lte=1"`
	Description     string         `json:"description"      validate:"required"`
	Evidence        map[string]any `json:"evidence"`
	Actor           string         `json:"actor"`
}

// Validate checks the enumerated fields of s.
func (s *Signal) Validate() error {
	if s.Source == "" {
		s.Source = SourceRules
	}
	switch {
	case !s.Category.Valid():
		return types.NewValidationError("category", fmt.Sprintf("unknown category %q", s.Category))
	case !s.Severity.Valid():
		return types.NewValidationError("severity", fmt.Sprintf("unknown severity %q", s.Severity))
	case !s.Source.Valid():
		return types.NewValidationError("source", fmt.Sprintf("unknown source %q", s.Source))
	case s.EstimatedImpact.IsNegative():
		return types.NewValidationError("estimated_impact", "must not be negative")
	case strings.TrimSpace(s.EncounterID) == "":
		return types.NewValidationError("encounter_id", "is required")
	}
	return nil
}

// New raises an anomaly from sig. The caller validates sig first.
func New(sig Signal, number, currency string, now time.Time) *Anomaly {
	impact := sig.EstimatedImpact
	if impact.Currency == "" {
		impact = types.Money{Amount: impact.Amount, Currency: types.Zero(currency).Currency}
	}
	actor := sig.Actor
	if actor == "" {
		actor = string(sig.Source)
	}
	a := &Anomaly{
		Entity:          types.NewEntity(now),
		ID:              id.NewAnomalyID(),
		Number:          number,
		Status:          StatusNew,
		Category:        sig.Category,
		Severity:        sig.Severity,
		Priority:        PriorityFor(sig.Severity, impact),
		Source:          sig.Source,
		PatientID:       sig.PatientID,
		EncounterID:     sig.EncounterID,
		AffectedRef:     sig.AffectedRef,
		EstimatedImpact: impact,
		Score:           sig.Score,
		Description:     sig.Description,
		Evidence:        sig.Evidence,
		OpenKey:         DedupKey(sig.EncounterID, sig.Category),
		DueBy:           now.UTC().Add(sig.Severity.SLA()),
	}
	a.Audit.Record(audit.ActionCreated, actor, now, map[string]any{
		"number":   number,
		"category": string(sig.Category),
		"severity": string(sig.Severity),
		"priority": a.Priority,
	})
	return a
}

// TransitionParams carries the inputs the target state's guard checks.
type TransitionParams struct {
	Reason          string         `json:"reason,omitempty"`
	Justification   string         `json:"justification,omitempty"`
	ResolutionType  ResolutionType `json:"resolution_type,omitempty"`
	AmountRecovered types.Money    `json:"amount_recovered"`
}

var machine = workflow.New[Status, *Anomaly, TransitionParams]("anomaly", map[Status][]Status{
	StatusNew:           {StatusUnderReview, StatusFalsePositive},
	StatusUnderReview:   {StatusInvestigating, StatusEscalated, StatusFalsePositive},
	StatusInvestigating: {StatusResolved, StatusEscalated, StatusFalsePositive},
	StatusEscalated:     {StatusInvestigating, StatusResolved},
	StatusResolved:      {StatusClosed},
	StatusFalsePositive: {StatusClosed},
	StatusClosed:        {},
}).
	Guard(StatusFalsePositive, func(_ *Anomaly, p TransitionParams) error {
		if strings.TrimSpace(p.Reason) == "" {
			return types.NewValidationError("reason", "is required to mark a false positive")
		}
		if strings.TrimSpace(p.Justification) == "" {
			return types.NewValidationError("justification", "is required to mark a false positive")
		}
		return nil
	}).
	Guard(StatusResolved, func(a *Anomaly, p TransitionParams) error {
		if !p.ResolutionType.Valid() {
			return types.NewValidationError("resolution_type", fmt.Sprintf("unknown resolution type %q", p.ResolutionType))
		}
		if p.AmountRecovered.IsNegative() {
			return types.NewValidationError("amount_recovered", "must not be negative")
		}
		if p.AmountRecovered.Currency != "" && p.AmountRecovered.Currency != a.EstimatedImpact.Currency {
			return types.NewValidationError("amount_recovered", "currency does not match the estimated impact")
		}
		return nil
	}).
	Guard(StatusEscalated, func(_ *Anomaly, p TransitionParams) error {
		if strings.TrimSpace(p.Reason) == "" {
			return types.NewValidationError("reason", "is required to escalate")
		}
		return nil
	}).
	OnEnter(StatusResolved, func(a *Anomaly, p TransitionParams, c workflow.Change[Status]) {
		recovered := p.AmountRecovered
		if recovered.Currency == "" {
			recovered.Currency = a.EstimatedImpact.Currency
		}
		a.Resolution = &Resolution{
			Type:            p.ResolutionType,
			AmountRecovered: recovered,
			Notes:           c.Notes,
			ResolvedBy:      c.Actor,
			ResolvedAt:      c.At,
		}
	}).
	OnEnter(StatusFalsePositive, func(a *Anomaly, p TransitionParams, c workflow.Change[Status]) {
		a.Dismissal = &Dismissal{
			Reason:        p.Reason,
			Justification: p.Justification,
			DismissedBy:   c.Actor,
			DismissedAt:   c.At,
		}
	}).
	OnEnter(StatusEscalated, func(a *Anomaly, p TransitionParams, _ workflow.Change[Status]) {
		a.EscalationReason = p.Reason
	}).
	OnEnter(StatusClosed, func(a *Anomaly, _ TransitionParams, c workflow.Change[Status]) {
		at := c.At
		a.ClosedAt = &at
	})

// Machine returns the anomaly state machine.
func Machine() *workflow.Machine[Status, *Anomaly, TransitionParams] { return machine }

// Transition moves a to target through the anomaly machine.
func (a *Anomaly) Transition(target Status, actor, notes string, p TransitionParams, now time.Time) (workflow.Change[Status], error) {
	c, err := machine.Apply(a, target, actor, notes, p, now)
	if err != nil {
		return c, err
	}
	if !a.Status.IsOpen() {
		a.OpenKey = ""
		a.IsOverdue = false
	}
	a.Touch(now)
	return c, nil
}

// Assign hands the anomaly to assignee. Status is unchanged.
func (a *Anomaly) Assign(assignee, actor string, now time.Time) error {
	if a.Status == StatusClosed {
		return ErrClosed
	}
	if strings.TrimSpace(assignee) == "" {
		return types.NewValidationError("assignee", "is required")
	}
	prev := a.AssignedTo
	a.AssignedTo = assignee
	a.Touch(now)
	a.Audit.Change(audit.ActionAssigned, actor, now, prev, assignee, nil)
	return nil
}

// FlagOverdue marks an open anomaly past its due time. It returns false
// when nothing changed.
func (a *Anomaly) FlagOverdue(now time.Time) bool {
	if a.IsOverdue || !a.Status.IsOpen() || !now.After(a.DueBy) {
		return false
	}
	a.IsOverdue = true
	a.Touch(now)
	a.Audit.Append(audit.Overdue(a.DueBy, now))
	return true
}

// Clone returns a deep copy of a.
func (a *Anomaly) Clone() *Anomaly {
	c := *a
	c.History = slices.Clone(a.History)
	c.Audit = a.Audit.Clone()
	if a.Evidence != nil {
		c.Evidence = make(map[string]any, len(a.Evidence))
		for k, v := range a.Evidence {
			c.Evidence[k] = v
		}
	}
	if a.Resolution != nil {
		r := *a.Resolution
		c.Resolution = &r
	}
	if a.Dismissal != nil {
		d := *a.Dismissal
		c.Dismissal = &d
	}
	if a.ClosedAt != nil {
		t := *a.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

type ListOpts struct {
	Status      Status
	Category    Category
	Severity    Severity
	EncounterID string
	PatientID   string
	AssignedTo  string
	OverdueOnly bool
	Limit       int
	Offset      int
}

// Stats summarises a set of anomalies.
type Stats struct {
	Total           int              `json:"total"`
	Overdue         int              `json:"overdue"`
	ByStatus        map[Status]int   `json:"by_status"`
	ByCategory      map[Category]int `json:"by_category"`
	EstimatedImpact types.Money      `json:"estimated_impact"`
	Recovered       types.Money      `json:"recovered"`
}

// Tally builds Stats over list. Amounts in other currencies are skipped.
func Tally(currency string, list []*Anomaly) Stats {
	s := Stats{
		ByStatus:        make(map[Status]int),
		ByCategory:      make(map[Category]int),
		EstimatedImpact: types.Zero(currency),
		Recovered:       types.Zero(currency),
	}
	for _, a := range list {
		s.Total++
		s.ByStatus[a.Status]++
		s.ByCategory[a.Category]++
		if a.IsOverdue {
			s.Overdue++
		}
		if a.EstimatedImpact.Currency == s.EstimatedImpact.Currency {
			s.EstimatedImpact = s.EstimatedImpact.Add(a.EstimatedImpact)
		}
		if a.Resolution != nil && a.Resolution.AmountRecovered.Currency == s.Recovered.Currency {
			s.Recovered = s.Recovered.Add(a.Resolution.AmountRecovered)
		}
	}
	return s
}

type Store interface {
	// CreateAnomaly returns ErrAlreadyExists when an open anomaly with the
	// same OpenKey exists.
	CreateAnomaly(ctx context.Context, a *Anomaly) error
	GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*Anomaly, error)
	// FindOpenAnomaly returns the open anomaly for key, or ErrNotFound.
	FindOpenAnomaly(ctx context.Context, openKey string) (*Anomaly, error)
	ListAnomalies(ctx context.Context, opts ListOpts) ([]*Anomaly, error)
	// UpdateAnomaly is a versioned write like bill.Store.UpdateBill.
	UpdateAnomaly(ctx context.Context, a *Anomaly) error
	// FlagOverdueAnomalies flags every open anomaly whose DueBy is before
	// now and returns how many changed. Rows already flagged are skipped.
	FlagOverdueAnomalies(ctx context.Context, now time.Time) (int64, error)
}
