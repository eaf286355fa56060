package payroll

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rule-engine/engine"
	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/policy"
	"github.com/warp/rule-engine/store/memory"
)

func newCalculator(t *testing.T, policies ...policy.Policy) *Calculator {
	t.Helper()
	eval := engine.NewEvaluator()
	policyStore := memory.NewPolicyStore()
	for _, p := range policies {
		require.NoError(t, policyStore.Put(context.Background(), p))
	}
	occ := occurrence.NewService(memory.NewTrackerStore(), eval)
	logger := log.New(io.Discard, "", 0)
	return NewCalculator(eval, policyStore, occ, nil, logger)
}

func runInput(facts map[string]any) RunInput {
	return RunInput{
		CompanyID:    "acme",
		EmployeeID:   "emp-1",
		TriggerEvent: "PAYROLL_RUN",
		BaseSalary:   decimal.NewFromInt(4000),
		Facts:        facts,
		At:           time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC),
	}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRunComponentsOnly(t *testing.T) {
	calc := newCalculator(t)
	in := runInput(nil)
	in.Components = []ComponentFormula{
		{Name: "HRA", Formula: "BASE_SALARY * 0.2"},
		{Name: "TRANSPORT", Formula: "300"},
	}

	result, err := calc.Run(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, result.Components["HRA"].Equal(d("800")))
	assert.True(t, result.Components["TRANSPORT"].Equal(d("300")))
	assert.True(t, result.GrossPay.Equal(d("5100")))
	assert.True(t, result.NetPay.Equal(d("5100")))
}

func TestComponentsSeeEarlierComponents(t *testing.T) {
	calc := newCalculator(t)
	in := runInput(nil)
	in.Components = []ComponentFormula{
		{Name: "HRA", Formula: "BASE_SALARY * 0.2"},
		{Name: "SPECIAL", Formula: "HRA / 2"},
	}

	result, err := calc.Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Components["SPECIAL"].Equal(d("400")))
}

func TestBrokenComponentDoesNotSinkRun(t *testing.T) {
	calc := newCalculator(t)
	in := runInput(nil)
	in.Components = []ComponentFormula{
		{Name: "BAD", Formula: "eval(process)"},
		{Name: "GOOD", Formula: "100"},
	}

	result, err := calc.Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Components["BAD"].IsZero())
	assert.True(t, result.Components["GOOD"].Equal(d("100")))
}

func TestPlainDeductionPolicy(t *testing.T) {
	p := policy.Policy{
		ID: "late-penalty", CompanyID: "acme", Name: "Late Penalty",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
		ConditionExpr: "lateDays > 3",
		Actions: []policy.Action{
			{Type: occurrence.ActionDeduct, Component: "BASIC", Value: d("50")},
		},
	}
	calc := newCalculator(t, p)

	result, err := calc.Run(context.Background(), runInput(map[string]any{"lateDays": 5}))
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Fired)
	assert.True(t, result.Deductions.TotalCapped.Equal(d("50")))
	assert.True(t, result.NetPay.Equal(d("3950")))
}

func TestConditionNotMetPolicyDoesNotFire(t *testing.T) {
	p := policy.Policy{
		ID: "late-penalty", CompanyID: "acme", Name: "Late Penalty",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
		ConditionExpr: "lateDays > 3",
		Actions: []policy.Action{
			{Type: occurrence.ActionDeduct, Component: "BASIC", Value: d("50")},
		},
	}
	calc := newCalculator(t, p)

	result, err := calc.Run(context.Background(), runInput(map[string]any{"lateDays": 2}))
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].Fired)
	assert.True(t, result.NetPay.Equal(d("4000")))
}

func TestUnconditionalAdditionPolicy(t *testing.T) {
	p := policy.Policy{
		ID: "attendance-bonus", CompanyID: "acme", Name: "Attendance Bonus",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
		Actions: []policy.Action{
			{Type: occurrence.ActionAdd, Component: "BONUS", Value: d("150")},
		},
	}
	calc := newCalculator(t, p)

	result, err := calc.Run(context.Background(), runInput(nil))
	require.NoError(t, err)

	assert.True(t, result.Additions.Equal(d("150")))
	assert.True(t, result.GrossPay.Equal(d("4150")))
	assert.True(t, result.NetPay.Equal(d("4150")))
}

func TestOtherTriggerIgnored(t *testing.T) {
	p := policy.Policy{
		ID: "eoy-bonus", CompanyID: "acme", Name: "Year End Bonus",
		TriggerEvent: "YEAR_END", Status: policy.StatusActive,
		Actions: []policy.Action{
			{Type: occurrence.ActionAdd, Component: "BONUS", Value: d("1000")},
		},
	}
	calc := newCalculator(t, p)

	result, err := calc.Run(context.Background(), runInput(nil))
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
}

func TestDraftPolicyIgnored(t *testing.T) {
	p := policy.Policy{
		ID: "draft", CompanyID: "acme", Name: "Draft",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusDraft,
		Actions: []policy.Action{
			{Type: occurrence.ActionDeduct, Component: "BASIC", Value: d("500")},
		},
	}
	calc := newCalculator(t, p)

	result, err := calc.Run(context.Background(), runInput(nil))
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.True(t, result.NetPay.Equal(d("4000")))
}

func TestTieredPolicyEscalates(t *testing.T) {
	two := 2
	p := policy.Policy{
		ID: "late-ladder", CompanyID: "acme", Name: "Late Ladder",
		TriggerEvent: "LATE_ARRIVAL", Status: policy.StatusActive,
		OccurrenceType: "LATE_ARRIVAL", ResetPeriod: occurrence.ResetMonthly,
		Actions: []policy.Action{{Type: occurrence.ActionDeduct, Component: "BASIC"}},
		Tiers: []occurrence.Tier{
			{MinOccurrences: 1, MaxOccurrences: &two, Action: occurrence.ActionNone},
			{MinOccurrences: 3, Action: occurrence.ActionDeduct,
				ValueType: occurrence.ValueFixed, Value: d("25")},
		},
	}
	calc := newCalculator(t, p)
	ctx := context.Background()

	in := runInput(nil)
	in.TriggerEvent = "LATE_ARRIVAL"

	// First two occurrences are warnings.
	for i := 0; i < 2; i++ {
		result, err := calc.Run(ctx, in)
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, occurrence.ActionNone, result.Outcomes[0].Action)
		assert.True(t, result.NetPay.Equal(d("4000")))
	}

	// Third deducts.
	result, err := calc.Run(ctx, in)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 3, result.Outcomes[0].Count)
	assert.Equal(t, occurrence.ActionDeduct, result.Outcomes[0].Action)
	assert.True(t, result.Deductions.TotalCapped.Equal(d("25")))
	assert.True(t, result.NetPay.Equal(d("3975")))
}

func TestLegalCapAppliedAcrossPolicies(t *testing.T) {
	mk := func(id string, amount string) policy.Policy {
		return policy.Policy{
			ID: policy.ID(id), CompanyID: "acme", Name: id,
			TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
			Actions: []policy.Action{
				{Type: occurrence.ActionDeduct, Component: "BASIC", Value: d(amount)},
			},
		}
	}
	calc := newCalculator(t, mk("a", "1500"), mk("b", "1500"))

	// Base 4000, default 50% cap: 3000 proposed scales to 2000.
	result, err := calc.Run(context.Background(), runInput(nil))
	require.NoError(t, err)

	assert.True(t, result.Deductions.WasCapped)
	assert.True(t, result.Deductions.TotalCapped.Equal(d("2000")))
	assert.True(t, result.NetPay.Equal(d("2000")))
}

func TestBrokenConditionSkipsPolicyOnly(t *testing.T) {
	bad := policy.Policy{
		ID: "bad", CompanyID: "acme", Name: "Bad",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
		ConditionExpr: "eval(lateDays)",
		Actions: []policy.Action{
			{Type: occurrence.ActionDeduct, Component: "BASIC", Value: d("999")},
		},
	}
	good := policy.Policy{
		ID: "good", CompanyID: "acme", Name: "Good",
		TriggerEvent: "PAYROLL_RUN", Status: policy.StatusActive,
		Actions: []policy.Action{
			{Type: occurrence.ActionAdd, Component: "BONUS", Value: d("100")},
		},
	}
	calc := newCalculator(t, bad, good)

	result, err := calc.Run(context.Background(), runInput(nil))
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	var badOutcome, goodOutcome PolicyOutcome
	for _, o := range result.Outcomes {
		if o.PolicyID == "bad" {
			badOutcome = o
		} else {
			goodOutcome = o
		}
	}
	assert.True(t, badOutcome.Skipped)
	assert.False(t, badOutcome.Fired)
	assert.True(t, goodOutcome.Fired)
	assert.True(t, result.NetPay.Equal(d("4100")))
}

func TestMissingTriggerEventRejected(t *testing.T) {
	calc := newCalculator(t)
	in := runInput(nil)
	in.TriggerEvent = ""
	_, err := calc.Run(context.Background(), in)
	assert.Error(t, err)
}
