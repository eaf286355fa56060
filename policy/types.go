/*
Package policy defines authored policies and the conflict analysis that
runs before they go live.

PURPOSE:
  A Policy binds a trigger event to structured conditions and actions,
  optionally with tiered occurrence penalties. Policies are owned by the
  policy-authoring subsystem; the rule engine reads them and never mutates
  them. The Detector (conflict.go) finds pairs of independently authored
  policies whose conditions overlap and whose actions contradict, so
  authors are warned before activation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Policy:    trigger event + conditions + actions + status
  - Condition: structured (field, operator, value) predicate
  - Action:    structured (type, component, value) effect
  - Status:    DRAFT -> PENDING -> ACTIVE lifecycle

SEE ALSO:
  - conflict.go: Pairwise conflict detection
  - factory.go: JSON policy definitions
*/
package policy

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/rule-engine/occurrence"
)

// =============================================================================
// IDENTIFIERS AND STATUS
// =============================================================================

type ID = occurrence.PolicyID

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Live reports whether the policy participates in conflict analysis.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusPending
}

// =============================================================================
// CONDITIONS AND ACTIONS
// =============================================================================

// Operator is the comparison used by a structured condition. The values
// mirror the word comparators accepted by the condition evaluator.
type Operator string

const (
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
)

// Condition is one structured predicate over a context field.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Render produces the evaluator-grammar form of the condition.
func (c Condition) Render() string {
	return c.Field + " " + string(c.Operator) + " " + c.Value
}

// ActionType mirrors occurrence.ActionType for policy-level actions.
type Action struct {
	Type      occurrence.ActionType `json:"type"`
	Component string                `json:"component"`
	Value     decimal.Decimal       `json:"value"`
}

// =============================================================================
// POLICY
// =============================================================================

// Policy is read-only to the rule engine.
type Policy struct {
	ID        ID
	CompanyID string
	Name      string

	// TriggerEvent is the named event category the policy is registered
	// against, e.g. "attendance.recorded".
	TriggerEvent string

	// Conditions are ANDed. An empty list means the policy applies
	// unconditionally to its trigger.
	Conditions []Condition

	// ConditionExpr optionally carries a free-form authored predicate. When
	// set it takes precedence over the structured Conditions at runtime;
	// conflict analysis always uses the structured form.
	ConditionExpr string

	Actions []Action

	// Occurrence tracking, for tiered policies. Empty Tiers means the
	// policy's actions apply directly on every fire.
	OccurrenceType occurrence.Type
	ResetPeriod    occurrence.ResetPeriod
	Tiers          []occurrence.Tier

	Status Status
}

// RuntimeCondition returns the predicate the condition evaluator should
// run: the free-form expression when present, otherwise the structured
// conditions ANDed together. Empty string means "always fires".
func (p Policy) RuntimeCondition() string {
	if strings.TrimSpace(p.ConditionExpr) != "" {
		return p.ConditionExpr
	}
	if len(p.Conditions) == 0 {
		return ""
	}
	parts := make([]string, len(p.Conditions))
	for i, c := range p.Conditions {
		parts[i] = "(" + c.Render() + ")"
	}
	return strings.Join(parts, " AND ")
}

// Tiered reports whether this policy resolves its effect through the
// occurrence tracker.
func (p Policy) Tiered() bool {
	return len(p.Tiers) > 0 && p.OccurrenceType != ""
}
