/*
conflict.go - Pairwise policy conflict detection

PURPOSE:
  Finds pairs of independently authored policies that would fight over the
  same payroll outcome. Runs offline/on-save, never on the payroll hot
  path; output is advisory except for HIGH-severity contradictions, which
  block activation (validate.go).

CLASSIFICATION:
  CONTRADICTING_ACTIONS / HIGH   DEDUCT vs ADD on the same component, or
                                 same action type with differing values
                                 (the latter is arguably MEDIUM; kept HIGH
                                 to preserve observable behavior)
  OVERLAPPING_CONDITIONS / MEDIUM  shared trigger + overlapping conditions,
                                 actions compatible
  SAME_TRIGGER / LOW             shared trigger, conditions provably or
                                 heuristically disjoint - informational

OVERLAP HEURISTIC:
  A policy with no conditions applies unconditionally and overlaps
  everything on its trigger. Otherwise any shared field name counts as
  overlap - a conservative, false-positive-tolerant rule. Numeric interval
  analysis refines it: when every shared field carries provably disjoint
  ranges (lateDays > 10 vs lateDays < 5) the pair is downgraded to the
  LOW informational report. The refinement only ever downgrades; it never
  suppresses a report, so the conservative bias is preserved.
*/
package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/rule-engine/occurrence"
)

// =============================================================================
// CONFLICT REPORT - Ephemeral, computed on demand
// =============================================================================

type ConflictType string

const (
	ConflictSameTrigger           ConflictType = "SAME_TRIGGER"
	ConflictOverlappingConditions ConflictType = "OVERLAPPING_CONDITIONS"
	ConflictContradictingActions  ConflictType = "CONTRADICTING_ACTIONS"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Conflict describes one conflicting pair.
type Conflict struct {
	PolicyA  ID           `json:"policy_a"`
	PolicyB  ID           `json:"policy_b"`
	Type     ConflictType `json:"type"`
	Severity Severity     `json:"severity"`
	Detail   string       `json:"detail"`
}

// =============================================================================
// DETECTOR
// =============================================================================

// Detector performs pairwise conflict analysis. Stateless and safe to
// share; pair comparisons are independent.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// FindConflicts analyzes every live pair within one company scope.
func (d *Detector) FindConflicts(policies []Policy) []Conflict {
	var live []Policy
	for _, p := range policies {
		if p.Status.Live() {
			live = append(live, p)
		}
	}

	var conflicts []Conflict
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			if c := d.comparePair(live[i], live[j]); c != nil {
				conflicts = append(conflicts, *c)
			}
		}
	}
	return conflicts
}

// comparePair classifies one pair, or returns nil when they cannot
// interact at all.
func (d *Detector) comparePair(a, b Policy) *Conflict {
	if a.TriggerEvent != b.TriggerEvent {
		return nil
	}

	if !conditionsOverlap(a, b) {
		return &Conflict{
			PolicyA: a.ID, PolicyB: b.ID,
			Type:     ConflictSameTrigger,
			Severity: SeverityLow,
			Detail:   "same trigger event with disjoint conditions",
		}
	}

	if detail, contradicting := actionsContradict(a, b); contradicting {
		return &Conflict{
			PolicyA: a.ID, PolicyB: b.ID,
			Type:     ConflictContradictingActions,
			Severity: SeverityHigh,
			Detail:   detail,
		}
	}

	return &Conflict{
		PolicyA: a.ID, PolicyB: b.ID,
		Type:     ConflictOverlappingConditions,
		Severity: SeverityMedium,
		Detail:   "conditions overlap on shared fields",
	}
}

// =============================================================================
// CONDITION OVERLAP
// =============================================================================

func conditionsOverlap(a, b Policy) bool {
	// Unconditional policies overlap everything on their trigger.
	if len(a.Conditions) == 0 || len(b.Conditions) == 0 {
		return true
	}

	shared := sharedFields(a.Conditions, b.Conditions)
	if len(shared) == 0 {
		return false
	}

	// Interval refinement: only a provable contradiction on a shared field
	// makes the pair disjoint. Anything unprovable stays "overlapping".
	for _, field := range shared {
		if fieldDisjoint(field, a.Conditions, b.Conditions) {
			return false
		}
	}
	return true
}

func sharedFields(a, b []Condition) []string {
	inA := make(map[string]struct{}, len(a))
	for _, c := range a {
		inA[normalizeField(c.Field)] = struct{}{}
	}
	var shared []string
	seen := make(map[string]struct{})
	for _, c := range b {
		f := normalizeField(c.Field)
		if _, ok := inA[f]; !ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		shared = append(shared, f)
	}
	return shared
}

func normalizeField(f string) string {
	return strings.ToUpper(strings.TrimSpace(f))
}

// fieldDisjoint reports whether some condition pair on the field is
// provably unsatisfiable together.
func fieldDisjoint(field string, a, b []Condition) bool {
	for _, ca := range a {
		if normalizeField(ca.Field) != field {
			continue
		}
		for _, cb := range b {
			if normalizeField(cb.Field) != field {
				continue
			}
			if intervalsDisjoint(ca, cb) {
				return true
			}
		}
	}
	return false
}

// interval is the numeric range [lo, hi] a condition admits.
type interval struct {
	lo, hi         float64
	loOpen, hiOpen bool
}

// intervalsDisjoint proves, when both values are numeric, that two
// conditions on the same field cannot hold simultaneously. Non-numeric
// values are only provable for EQUALS vs EQUALS with different literals
// and EQUALS vs NOT_EQUALS with the same literal.
func intervalsDisjoint(a, b Condition) bool {
	av, aNum := parseNumeric(a.Value)
	bv, bNum := parseNumeric(b.Value)

	if !aNum || !bNum {
		sameValue := strings.EqualFold(strings.TrimSpace(a.Value), strings.TrimSpace(b.Value))
		switch {
		case a.Operator == OpEquals && b.Operator == OpEquals:
			return !sameValue
		case a.Operator == OpEquals && b.Operator == OpNotEquals,
			a.Operator == OpNotEquals && b.Operator == OpEquals:
			return sameValue
		}
		return false
	}

	ia, ok := toInterval(a.Operator, av)
	if !ok {
		return false
	}
	ib, ok := toInterval(b.Operator, bv)
	if !ok {
		return false
	}

	// Disjoint when one interval ends before the other begins.
	if ia.hi < ib.lo || ib.hi < ia.lo {
		return true
	}
	if ia.hi == ib.lo && (ia.hiOpen || ib.loOpen) {
		return true
	}
	if ib.hi == ia.lo && (ib.hiOpen || ia.loOpen) {
		return true
	}
	return false
}

func toInterval(op Operator, v float64) (interval, bool) {
	inf := maxFloat
	switch op {
	case OpEquals:
		return interval{lo: v, hi: v}, true
	case OpGreaterThan:
		return interval{lo: v, hi: inf, loOpen: true}, true
	case OpGreaterThanOrEqual:
		return interval{lo: v, hi: inf}, true
	case OpLessThan:
		return interval{lo: -inf, hi: v, hiOpen: true}, true
	case OpLessThanOrEqual:
		return interval{lo: -inf, hi: v}, true
	default:
		// NOT_EQUALS admits everything but a point; never disjoint.
		return interval{}, false
	}
}

const maxFloat = 1.797693134862315708145274237317043567981e+308

func parseNumeric(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// =============================================================================
// ACTION CONTRADICTION
// =============================================================================

// actionsContradict reports a hard fight between the two action lists:
// DEDUCT vs ADD on the same target component, or the same action type on
// the same component with differing values.
func actionsContradict(a, b Policy) (string, bool) {
	for _, aa := range a.Actions {
		for _, ba := range b.Actions {
			if !strings.EqualFold(aa.Component, ba.Component) {
				continue
			}
			if opposite(aa.Type, ba.Type) {
				return fmt.Sprintf("%s vs %s on component %s", aa.Type, ba.Type, aa.Component), true
			}
			if aa.Type == ba.Type && !aa.Value.Equal(ba.Value) {
				return fmt.Sprintf("both %s component %s with different values (%s vs %s)",
					aa.Type, aa.Component, aa.Value, ba.Value), true
			}
		}
	}
	return "", false
}

func opposite(x, y occurrence.ActionType) bool {
	return (x == occurrence.ActionDeduct && y == occurrence.ActionAdd) ||
		(x == occurrence.ActionAdd && y == occurrence.ActionDeduct)
}
