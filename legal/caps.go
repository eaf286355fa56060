/*
Package legal enforces statutory limits on payroll penalties.

PURPOSE:
  Applies jurisdiction-level caps after policy evaluation has produced its
  proposed effects. Policies express business intent; this package makes
  sure the combined outcome stays within what labor law allows, regardless
  of how many policies fired.

KEY CONCEPTS:
  - Deduction cap: total deductions in one payroll run may not exceed a
    percentage of the base salary. When exceeded, every deduction is
    scaled proportionally so relative policy weights are preserved.
  - Penalty-days cap: a single penalty may not exceed a maximum number of
    unpaid days. Violations are reported, never silently truncated, so
    the caller can surface them to the policy author.

MONEY:
  All amounts are decimal.Decimal. Scaling uses decimal division and is
  rounded to 2 places per line; the scaled total can therefore differ
  from the exact cap by a cent in the caller's favor.
*/
package legal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIMITS
// =============================================================================

// Limits holds the statutory caps for one jurisdiction.
type Limits struct {
	// MaxDeductionPercent caps total deductions per run as a percent of
	// base salary. 50 means half the salary. Zero or negative disables
	// the cap.
	MaxDeductionPercent decimal.Decimal `yaml:"max_deduction_percent"`

	// MaxSinglePenaltyDays caps one penalty at this many unpaid days.
	// Zero disables the check.
	MaxSinglePenaltyDays int `yaml:"max_single_penalty_days"`
}

// DefaultLimits returns the caps applied when no jurisdiction config is
// loaded.
func DefaultLimits() Limits {
	return Limits{
		MaxDeductionPercent:  decimal.NewFromInt(50),
		MaxSinglePenaltyDays: 0,
	}
}

// =============================================================================
// PROPOSED EFFECTS AND CAP RESULT
// =============================================================================

// ProposedEffect is one deduction a policy wants to apply. Source
// identifies the policy for reporting.
type ProposedEffect struct {
	Source string          `json:"source"`
	Amount decimal.Decimal `json:"amount"`
}

// CappedEffect is one deduction after cap enforcement.
type CappedEffect struct {
	Source   string          `json:"source"`
	Original decimal.Decimal `json:"original"`
	Capped   decimal.Decimal `json:"capped"`
}

// CapResult reports the outcome of applying the deduction cap.
type CapResult struct {
	Effects       []CappedEffect  `json:"effects"`
	TotalOriginal decimal.Decimal `json:"total_original"`
	TotalCapped   decimal.Decimal `json:"total_capped"`
	WasCapped     bool            `json:"was_capped"`
}

// =============================================================================
// ENFORCER
// =============================================================================

// Enforcer applies Limits to proposed effects. Stateless; safe to share.
type Enforcer struct {
	limits Limits
}

func NewEnforcer(limits Limits) *Enforcer {
	return &Enforcer{limits: limits}
}

// Limits returns the configured caps.
func (e *Enforcer) Limits() Limits {
	return e.limits
}

// ApplyDeductionCap scales the proposed deductions so their total does
// not exceed the configured percent of baseSalary. Inputs are not
// mutated. Negative proposed amounts are treated as zero.
func (e *Enforcer) ApplyDeductionCap(baseSalary decimal.Decimal, proposed []ProposedEffect) CapResult {
	result := CapResult{
		TotalOriginal: decimal.Zero,
		TotalCapped:   decimal.Zero,
	}

	total := decimal.Zero
	for _, p := range proposed {
		amt := p.Amount
		if amt.IsNegative() {
			amt = decimal.Zero
		}
		total = total.Add(amt)
	}
	result.TotalOriginal = total

	limit := e.deductionCap(baseSalary)
	capped := limit.IsPositive() && total.GreaterThan(limit)

	// ratio scales every line the same way so relative policy weights
	// survive the cap.
	ratio := decimal.NewFromInt(1)
	if capped && total.IsPositive() {
		ratio = limit.Div(total)
	}

	for _, p := range proposed {
		amt := p.Amount
		if amt.IsNegative() {
			amt = decimal.Zero
		}
		line := CappedEffect{
			Source:   p.Source,
			Original: p.Amount,
			Capped:   amt,
		}
		if capped {
			line.Capped = amt.Mul(ratio).Round(2)
		}
		result.TotalCapped = result.TotalCapped.Add(line.Capped)
		result.Effects = append(result.Effects, line)
	}
	result.WasCapped = capped
	return result
}

// deductionCap returns the maximum total deduction for the salary, or
// zero when the cap is disabled.
func (e *Enforcer) deductionCap(baseSalary decimal.Decimal) decimal.Decimal {
	if !e.limits.MaxDeductionPercent.IsPositive() {
		return decimal.Zero
	}
	return baseSalary.Mul(e.limits.MaxDeductionPercent).Div(decimal.NewFromInt(100))
}

// CheckPenaltyDays reports whether a single penalty of the given length
// violates the per-penalty cap. The penalty is never mutated; a non-nil
// error names the violation for the policy author.
func (e *Enforcer) CheckPenaltyDays(source string, days int) error {
	if e.limits.MaxSinglePenaltyDays <= 0 {
		return nil
	}
	if days > e.limits.MaxSinglePenaltyDays {
		return fmt.Errorf("policy %s: penalty of %d unpaid days exceeds legal maximum of %d",
			source, days, e.limits.MaxSinglePenaltyDays)
	}
	return nil
}
