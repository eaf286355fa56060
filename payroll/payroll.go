/*
Package payroll orchestrates one rule-engine evaluation for one employee.

PURPOSE:
  Ties the stateless evaluators, the policy catalog, the occurrence
  tracker and the legal enforcer into a single Run call:

    1. Build the evaluation context from employee facts
    2. Evaluate salary component formulas
    3. Select live policies on the trigger event and test their conditions
    4. Resolve effects: tiered policies go through the occurrence tracker,
       plain policies apply their actions directly
    5. Apply statutory caps to the combined deductions
    6. Report the net outcome with per-policy detail

FAILURE POLICY:
  A broken formula or condition in one policy must not sink the whole
  run. Fatal evaluation diagnostics mark that policy's outcome as skipped
  and the run carries on; only infrastructure errors (store failures)
  abort the run.
*/
package payroll

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rule-engine/engine"
	"github.com/warp/rule-engine/legal"
	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/policy"
)

// =============================================================================
// INPUT / OUTPUT TYPES
// =============================================================================

// ComponentFormula defines one salary component by name and formula.
// Components are evaluated in order; later formulas see earlier results
// by name.
type ComponentFormula struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
}

// RunInput is everything needed to evaluate one employee for one event.
type RunInput struct {
	CompanyID    string                 `json:"company_id"`
	EmployeeID   string                 `json:"employee_id"`
	TriggerEvent string                 `json:"trigger_event"`
	Jurisdiction string                 `json:"jurisdiction,omitempty"`
	BaseSalary   decimal.Decimal        `json:"base_salary"`
	Facts        map[string]any         `json:"facts,omitempty"`
	Components   []ComponentFormula     `json:"components,omitempty"`
	At           time.Time              `json:"at,omitempty"`
}

// PolicyOutcome reports what one policy did during the run.
type PolicyOutcome struct {
	PolicyID  policy.ID             `json:"policy_id"`
	Fired     bool                  `json:"fired"`
	Skipped   bool                  `json:"skipped,omitempty"`
	Action    occurrence.ActionType `json:"action,omitempty"`
	Component string                `json:"component,omitempty"`
	Amount    decimal.Decimal       `json:"amount"`
	Count     int                   `json:"count,omitempty"`
	Detail    string                `json:"detail,omitempty"`
}

// RunResult is the outcome of one evaluation.
type RunResult struct {
	EmployeeID string                     `json:"employee_id"`
	Components map[string]decimal.Decimal `json:"components"`
	Outcomes   []PolicyOutcome            `json:"outcomes"`
	Additions  decimal.Decimal            `json:"additions"`
	Deductions legal.CapResult            `json:"deductions"`
	GrossPay   decimal.Decimal            `json:"gross_pay"`
	NetPay     decimal.Decimal            `json:"net_pay"`
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator runs rule evaluations. Stateless apart from the occurrence
// service it delegates to; safe for concurrent runs on distinct
// employees, and safe on the same employee through the tracker's per-key
// serialization.
type Calculator struct {
	eval     *engine.Evaluator
	policies policy.Store
	occ      *occurrence.Service
	limits   *legal.LimitsConfig
	logger   *log.Logger
}

func NewCalculator(eval *engine.Evaluator, policies policy.Store, occ *occurrence.Service, limits *legal.LimitsConfig, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.Default()
	}
	return &Calculator{
		eval:     eval,
		policies: policies,
		occ:      occ,
		limits:   limits,
		logger:   logger,
	}
}

// Run evaluates every live policy of the company against one employee.
func (c *Calculator) Run(ctx context.Context, in RunInput) (RunResult, error) {
	if in.TriggerEvent == "" {
		return RunResult{}, fmt.Errorf("trigger event is required")
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	result := RunResult{
		EmployeeID: in.EmployeeID,
		Components: make(map[string]decimal.Decimal),
		Additions:  decimal.Zero,
	}

	// Step 1-2: context and salary components. Components feed back into
	// the context so later formulas and policy conditions can reference
	// them by name.
	base, _ := in.BaseSalary.Float64()
	evalCtx := engine.NewContext(in.Facts).With("BASE_SALARY", base)
	gross := in.BaseSalary

	for _, comp := range in.Components {
		value, diag := c.eval.Evaluate(comp.Formula, evalCtx)
		if diag != nil && diag.Fatal {
			c.logger.Printf("[Payroll] employee=%s component=%s rejected: %v", in.EmployeeID, comp.Name, diag)
			value = 0
		}
		amount := decimal.NewFromFloat(value).Round(2)
		result.Components[comp.Name] = amount
		gross = gross.Add(amount)
		evalCtx = evalCtx.With(comp.Name, value)
	}

	// Step 3-4: policy selection and effect resolution.
	candidates, err := c.policies.ListByCompany(ctx, in.CompanyID)
	if err != nil {
		return RunResult{}, fmt.Errorf("list policies: %w", err)
	}

	var proposed []legal.ProposedEffect
	for _, p := range candidates {
		if !p.Status.Live() || p.TriggerEvent != in.TriggerEvent {
			continue
		}
		outcome, deduction, err := c.applyPolicy(ctx, p, in, evalCtx, at)
		if err != nil {
			return RunResult{}, err
		}
		result.Outcomes = append(result.Outcomes, outcome)
		if deduction != nil {
			proposed = append(proposed, *deduction)
		} else if outcome.Fired && outcome.Action == occurrence.ActionAdd {
			result.Additions = result.Additions.Add(outcome.Amount)
		}
	}

	// Step 5: statutory caps on the combined deductions.
	enforcer := legal.NewEnforcer(c.limitsFor(in.Jurisdiction))
	result.Deductions = enforcer.ApplyDeductionCap(in.BaseSalary, proposed)
	if result.Deductions.WasCapped {
		c.logger.Printf("[Payroll] employee=%s deductions capped from %s to %s",
			in.EmployeeID, result.Deductions.TotalOriginal, result.Deductions.TotalCapped)
	}

	result.GrossPay = gross.Add(result.Additions)
	result.NetPay = result.GrossPay.Sub(result.Deductions.TotalCapped)
	return result, nil
}

// applyPolicy evaluates one policy's condition and resolves its effect.
// The returned ProposedEffect is non-nil only for deductions, which are
// deferred for cap enforcement.
func (c *Calculator) applyPolicy(ctx context.Context, p policy.Policy, in RunInput, evalCtx engine.Context, at time.Time) (PolicyOutcome, *legal.ProposedEffect, error) {
	outcome := PolicyOutcome{PolicyID: p.ID, Amount: decimal.Zero}

	if cond := p.RuntimeCondition(); cond != "" {
		fired, diag := c.eval.EvaluateCondition(cond, evalCtx)
		if diag != nil && diag.Fatal {
			c.logger.Printf("[Payroll] policy=%s condition rejected: %v", p.ID, diag)
			outcome.Skipped = true
			outcome.Detail = diag.Message
			return outcome, nil, nil
		}
		if !fired {
			return outcome, nil, nil
		}
	}
	outcome.Fired = true

	if p.Tiered() {
		return c.applyTiered(ctx, p, in, outcome, at)
	}

	// Plain policies apply their declared actions directly. Multiple
	// actions on one policy are summed per type.
	for _, a := range p.Actions {
		switch a.Type {
		case occurrence.ActionDeduct:
			outcome.Action = occurrence.ActionDeduct
			outcome.Component = a.Component
			outcome.Amount = outcome.Amount.Add(a.Value)
		case occurrence.ActionAdd:
			outcome.Action = occurrence.ActionAdd
			outcome.Component = a.Component
			outcome.Amount = outcome.Amount.Add(a.Value)
		}
	}
	if outcome.Action == occurrence.ActionDeduct {
		return outcome, &legal.ProposedEffect{Source: string(p.ID), Amount: outcome.Amount}, nil
	}
	return outcome, nil, nil
}

// applyTiered records the occurrence and resolves the tier ladder.
func (c *Calculator) applyTiered(ctx context.Context, p policy.Policy, in RunInput, outcome PolicyOutcome, at time.Time) (PolicyOutcome, *legal.ProposedEffect, error) {
	key := occurrence.Key{
		PolicyID:   occurrence.PolicyID(p.ID),
		EmployeeID: occurrence.EmployeeID(in.EmployeeID),
		Type:       p.OccurrenceType,
	}
	count, err := c.occ.Record(ctx, key, p.ResetPeriod, at)
	if err != nil {
		return outcome, nil, fmt.Errorf("policy %s: record occurrence: %w", p.ID, err)
	}
	outcome.Count = count

	effect, err := c.occ.ResolveTier(count, p.Tiers, in.BaseSalary, 0)
	if err != nil {
		c.logger.Printf("[Payroll] policy=%s tier resolution failed: %v", p.ID, err)
		outcome.Skipped = true
		outcome.Detail = err.Error()
		return outcome, nil, nil
	}

	outcome.Action = effect.Action
	outcome.Amount = effect.Amount
	outcome.Detail = effect.Reason
	if len(p.Actions) > 0 {
		outcome.Component = p.Actions[0].Component
	}

	if effect.Action == occurrence.ActionDeduct && effect.Amount.IsPositive() {
		return outcome, &legal.ProposedEffect{Source: string(p.ID), Amount: effect.Amount}, nil
	}
	return outcome, nil, nil
}

func (c *Calculator) limitsFor(jurisdiction string) legal.Limits {
	if c.limits == nil {
		return legal.DefaultLimits()
	}
	return c.limits.For(jurisdiction)
}
