/*
Package occurrence implements the tiered-penalty state machine.

PURPOSE:
  Policies like "deduct 25 on the 2nd late arrival this month, 50 on the
  3rd" need a per-employee counter that increments on each matching event
  and resets on a period boundary. This package owns that counter and the
  tier resolution that turns a count into a monetary effect.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tracker:     The counter row, keyed by (policy, employee, occurrence type)
  - ResetPeriod: The cadence at which the counter returns to zero
  - Tier:        A band of counts mapped to a penalty/reward action
  - Effect:      The resolved monetary outcome for the current count

LIFECYCLE OF A TRACKER:
  absent -> active(count>=1) -> (boundary crossed) -> reset to 0, increment

  Created lazily on first occurrence. Reset lazily whenever the current
  date has crossed the configured boundary since LastResetAt - on writes
  AND on reads, so a stale count is never reported. Never deleted except
  by explicit administrative action.

DESIGN PRINCIPLES:
  1. Precision: monetary values use decimal.Decimal end to end
  2. Single writer per key: concurrent payroll runs must not race on the
     same tracker (see Service)
  3. Explicit zero: "no tier matches this count" is a reported outcome,
     not an error

SEE ALSO:
  - tracker.go: The stateful service
  - period.go: Boundary math
*/
package occurrence

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS AND KEYS
// =============================================================================

type PolicyID string
type EmployeeID string

// Type names the tracked event category, e.g. "late_arrival".
type Type string

// Key identifies one tracker row.
type Key struct {
	PolicyID   PolicyID
	EmployeeID EmployeeID
	Type       Type
}

// =============================================================================
// RESET PERIOD
// =============================================================================

type ResetPeriod string

const (
	ResetMonthly   ResetPeriod = "MONTHLY"
	ResetQuarterly ResetPeriod = "QUARTERLY"
	ResetYearly    ResetPeriod = "YEARLY"
	ResetNever     ResetPeriod = "NEVER"
)

// Valid reports whether the period is one of the defined cadences.
func (p ResetPeriod) Valid() bool {
	switch p {
	case ResetMonthly, ResetQuarterly, ResetYearly, ResetNever:
		return true
	}
	return false
}

// =============================================================================
// TRACKER - One counter row
// =============================================================================

// Tracker holds the occurrence count for one (policy, employee, type)
// triple. Mutated only by the Service.
type Tracker struct {
	Key            Key
	Count          int
	ResetPeriod    ResetPeriod
	LastResetAt    time.Time
	LastOccurredAt time.Time
}

// =============================================================================
// PENALTY TIERS
// =============================================================================

type ActionType string

const (
	ActionNone   ActionType = "NONE"
	ActionDeduct ActionType = "DEDUCT"
	ActionAdd    ActionType = "ADD"
)

type ValueType string

const (
	ValueFixed      ValueType = "FIXED"
	ValuePercentage ValueType = "PERCENTAGE"
	ValueFormula    ValueType = "FORMULA"
)

// Tier maps a band of occurrence counts [MinOccurrences, MaxOccurrences]
// to an action. MaxOccurrences nil means unbounded. Tiers for one
// policy+type must not overlap where max is defined; selection takes the
// highest MinOccurrences not exceeding the current count, so the most
// severe matching tier always wins.
type Tier struct {
	MinOccurrences int
	MaxOccurrences *int
	Action         ActionType
	ValueType      ValueType
	Value          decimal.Decimal
	Formula        string

	// PerOccurrence multiplies a FIXED value by the number of occurrences
	// at or past the tier threshold.
	PerOccurrence bool
}

// Matches reports whether the tier band contains the count.
func (t Tier) Matches(count int) bool {
	if count < t.MinOccurrences {
		return false
	}
	return t.MaxOccurrences == nil || count <= *t.MaxOccurrences
}

// =============================================================================
// EFFECT - Resolved monetary outcome
// =============================================================================

// Effect is the outcome of resolving tiers against the current count.
// Applied=false with a zero Amount means no tier matched - an explicit
// "no penalty for this count", not an error.
type Effect struct {
	Applied bool
	Action  ActionType
	Amount  decimal.Decimal
	Count   int
	Tier    *Tier
	Reason  string
}

// ZeroEffect reports the explicit no-penalty outcome for a count.
func ZeroEffect(count int, reason string) Effect {
	return Effect{Applied: false, Action: ActionNone, Amount: decimal.Zero, Count: count, Reason: reason}
}
