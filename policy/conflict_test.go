package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rule-engine/occurrence"
)

func latePolicy(id string, actionType occurrence.ActionType, value int64) Policy {
	return Policy{
		ID:           ID(id),
		CompanyID:    "acme",
		Name:         id,
		TriggerEvent: "PAYROLL_RUN",
		Status:       StatusActive,
		Conditions: []Condition{
			{Field: "attendance.lateDays", Operator: OpGreaterThan, Value: "3"},
		},
		Actions: []Action{
			{Type: actionType, Component: "BASIC", Value: decimal.NewFromInt(value)},
		},
	}
}

func TestContradictingActionsSameComponent(t *testing.T) {
	// GIVEN two active policies on the same trigger, both conditioned on
	// lateDays, one deducting and one adding to BASIC
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-bonus", occurrence.ActionAdd, 50)

	// WHEN conflicts are computed
	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	// THEN the pair is flagged as a high-severity contradiction
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradictingActions, conflicts[0].Type)
	assert.Equal(t, SeverityHigh, conflicts[0].Severity)
	assert.Equal(t, ID("late-penalty"), conflicts[0].PolicyA)
	assert.Equal(t, ID("late-bonus"), conflicts[0].PolicyB)
}

func TestSameActionDifferentValueIsHigh(t *testing.T) {
	// Two deductions of different size on the same component are reported
	// at HIGH severity, same as a direct ADD/DEDUCT contradiction. Arguably
	// MEDIUM, but downgrading would silently change activation outcomes.
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-penalty-2", occurrence.ActionDeduct, 75)

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradictingActions, conflicts[0].Type)
	assert.Equal(t, SeverityHigh, conflicts[0].Severity)
}

func TestIdenticalActionsOverlapIsMedium(t *testing.T) {
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-penalty-dup", occurrence.ActionDeduct, 50)

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictOverlappingConditions, conflicts[0].Type)
	assert.Equal(t, SeverityMedium, conflicts[0].Severity)
}

func TestDifferentTriggersNeverConflict(t *testing.T) {
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-bonus", occurrence.ActionAdd, 50)
	b.TriggerEvent = "MONTH_END"

	conflicts := NewDetector().FindConflicts([]Policy{a, b})
	assert.Empty(t, conflicts)
}

func TestInactivePoliciesIgnored(t *testing.T) {
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-bonus", occurrence.ActionAdd, 50)
	b.Status = StatusDraft
	c := latePolicy("late-extra", occurrence.ActionAdd, 50)
	c.Status = StatusArchived

	conflicts := NewDetector().FindConflicts([]Policy{a, b, c})
	assert.Empty(t, conflicts)
}

func TestPendingCountsAsLive(t *testing.T) {
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("late-bonus", occurrence.ActionAdd, 50)
	b.Status = StatusPending

	conflicts := NewDetector().FindConflicts([]Policy{a, b})
	require.Len(t, conflicts, 1)
	assert.Equal(t, SeverityHigh, conflicts[0].Severity)
}

func TestUnconditionalPolicyOverlapsEverything(t *testing.T) {
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("blanket-bonus", occurrence.ActionAdd, 50)
	b.Conditions = nil

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradictingActions, conflicts[0].Type)
}

func TestNoSharedFieldsNoOverlap(t *testing.T) {
	// Same trigger but conditions on unrelated fields: the heuristic
	// reports only the informational same-trigger conflict.
	a := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	b := latePolicy("tenure-bonus", occurrence.ActionAdd, 50)
	b.Conditions = []Condition{
		{Field: "tenureYears", Operator: OpGreaterThanOrEqual, Value: "5"},
	}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSameTrigger, conflicts[0].Type)
	assert.Equal(t, SeverityLow, conflicts[0].Severity)
}

func TestDisjointIntervalsDowngradeToLow(t *testing.T) {
	// lateDays > 10 and lateDays < 5 cannot both hold, so the shared-field
	// heuristic is refined down to the informational report. The refinement
	// never suppresses the pair entirely.
	a := latePolicy("heavy-penalty", occurrence.ActionDeduct, 100)
	a.Conditions = []Condition{
		{Field: "attendance.lateDays", Operator: OpGreaterThan, Value: "10"},
	}
	b := latePolicy("light-bonus", occurrence.ActionAdd, 20)
	b.Conditions = []Condition{
		{Field: "attendance.lateDays", Operator: OpLessThan, Value: "5"},
	}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSameTrigger, conflicts[0].Type)
	assert.Equal(t, SeverityLow, conflicts[0].Severity)
}

func TestTouchingOpenIntervalsAreDisjoint(t *testing.T) {
	// lateDays > 5 and lateDays < 5 share only the excluded point.
	a := latePolicy("a", occurrence.ActionDeduct, 10)
	a.Conditions = []Condition{{Field: "lateDays", Operator: OpGreaterThan, Value: "5"}}
	b := latePolicy("b", occurrence.ActionAdd, 10)
	b.Conditions = []Condition{{Field: "lateDays", Operator: OpLessThan, Value: "5"}}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSameTrigger, conflicts[0].Type)
}

func TestClosedIntervalsSharingEndpointOverlap(t *testing.T) {
	// >= 5 and <= 5 both admit exactly 5; the pair stays a contradiction.
	a := latePolicy("a", occurrence.ActionDeduct, 10)
	a.Conditions = []Condition{{Field: "lateDays", Operator: OpGreaterThanOrEqual, Value: "5"}}
	b := latePolicy("b", occurrence.ActionAdd, 10)
	b.Conditions = []Condition{{Field: "lateDays", Operator: OpLessThanOrEqual, Value: "5"}}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradictingActions, conflicts[0].Type)
}

func TestStringEqualityDisjointness(t *testing.T) {
	a := latePolicy("a", occurrence.ActionDeduct, 10)
	a.Conditions = []Condition{{Field: "department", Operator: OpEquals, Value: "sales"}}
	b := latePolicy("b", occurrence.ActionAdd, 10)
	b.Conditions = []Condition{{Field: "department", Operator: OpEquals, Value: "engineering"}}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSameTrigger, conflicts[0].Type)
}

func TestNotEqualsNeverProvesDisjoint(t *testing.T) {
	// != admits everything but one point; conservatively kept overlapping.
	a := latePolicy("a", occurrence.ActionDeduct, 10)
	a.Conditions = []Condition{{Field: "lateDays", Operator: OpNotEquals, Value: "3"}}
	b := latePolicy("b", occurrence.ActionAdd, 10)
	b.Conditions = []Condition{{Field: "lateDays", Operator: OpNotEquals, Value: "7"}}

	conflicts := NewDetector().FindConflicts([]Policy{a, b})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradictingActions, conflicts[0].Type)
}

func TestThreePoliciesAllPairsChecked(t *testing.T) {
	a := latePolicy("a", occurrence.ActionDeduct, 50)
	b := latePolicy("b", occurrence.ActionAdd, 50)
	c := latePolicy("c", occurrence.ActionAdd, 50)
	c.Conditions = []Condition{
		{Field: "tenureYears", Operator: OpGreaterThan, Value: "5"},
	}

	conflicts := NewDetector().FindConflicts([]Policy{a, b, c})

	// a-b contradiction, a-c same-trigger, b-c same-trigger
	assert.Len(t, conflicts, 3)
}

func TestValidateBeforeActivationBlocksOnHigh(t *testing.T) {
	existing := []Policy{latePolicy("late-penalty", occurrence.ActionDeduct, 50)}
	candidate := latePolicy("late-bonus", occurrence.ActionAdd, 50)
	candidate.Status = StatusDraft

	result := NewDetector().ValidateBeforeActivation(candidate, existing)

	assert.False(t, result.Allowed)
	require.Len(t, result.Blocking, 1)
	assert.Equal(t, ConflictContradictingActions, result.Blocking[0].Type)
	assert.Empty(t, result.Warnings)
}

func TestValidateBeforeActivationWarnsOnMedium(t *testing.T) {
	existing := []Policy{latePolicy("late-penalty", occurrence.ActionDeduct, 50)}
	candidate := latePolicy("late-penalty-dup", occurrence.ActionDeduct, 50)
	candidate.Status = StatusDraft

	result := NewDetector().ValidateBeforeActivation(candidate, existing)

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Blocking)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, SeverityMedium, result.Warnings[0].Severity)
}

func TestValidateBeforeActivationIgnoresSelf(t *testing.T) {
	p := latePolicy("late-penalty", occurrence.ActionDeduct, 50)
	result := NewDetector().ValidateBeforeActivation(p, []Policy{p})
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Blocking)
	assert.Empty(t, result.Warnings)
}
