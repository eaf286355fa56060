package legal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestDeductionCapScalesProportionally(t *testing.T) {
	// GIVEN a 50% cap, base salary 4000 and two proposed deductions of
	// 1500 each (total 3000, cap 2000)
	e := NewEnforcer(Limits{MaxDeductionPercent: d("50")})
	proposed := []ProposedEffect{
		{Source: "late-penalty", Amount: d("1500")},
		{Source: "damage-recovery", Amount: d("1500")},
	}

	// WHEN the cap is applied
	result := e.ApplyDeductionCap(d("4000"), proposed)

	// THEN both lines scale by 2000/3000 and the relative weights survive
	require.True(t, result.WasCapped)
	require.Len(t, result.Effects, 2)
	assert.True(t, result.Effects[0].Capped.Equal(d("1000")), "got %s", result.Effects[0].Capped)
	assert.True(t, result.Effects[1].Capped.Equal(d("1000")), "got %s", result.Effects[1].Capped)
	assert.True(t, result.TotalOriginal.Equal(d("3000")))
	assert.True(t, result.TotalCapped.Equal(d("2000")))
}

func TestDeductionCapUnevenWeights(t *testing.T) {
	e := NewEnforcer(Limits{MaxDeductionPercent: d("50")})
	proposed := []ProposedEffect{
		{Source: "a", Amount: d("2400")},
		{Source: "b", Amount: d("600")},
	}

	result := e.ApplyDeductionCap(d("4000"), proposed)

	require.True(t, result.WasCapped)
	// 2400 and 600 scale by 2/3
	assert.True(t, result.Effects[0].Capped.Equal(d("1600")), "got %s", result.Effects[0].Capped)
	assert.True(t, result.Effects[1].Capped.Equal(d("400")), "got %s", result.Effects[1].Capped)
}

func TestDeductionWithinCapUntouched(t *testing.T) {
	e := NewEnforcer(Limits{MaxDeductionPercent: d("50")})
	proposed := []ProposedEffect{{Source: "a", Amount: d("500")}}

	result := e.ApplyDeductionCap(d("4000"), proposed)

	assert.False(t, result.WasCapped)
	assert.True(t, result.Effects[0].Capped.Equal(d("500")))
	assert.True(t, result.TotalCapped.Equal(d("500")))
}

func TestDeductionExactlyAtCapUntouched(t *testing.T) {
	e := NewEnforcer(Limits{MaxDeductionPercent: d("50")})
	proposed := []ProposedEffect{{Source: "a", Amount: d("2000")}}

	result := e.ApplyDeductionCap(d("4000"), proposed)

	assert.False(t, result.WasCapped)
	assert.True(t, result.TotalCapped.Equal(d("2000")))
}

func TestDisabledCapPassesEverything(t *testing.T) {
	e := NewEnforcer(Limits{MaxDeductionPercent: decimal.Zero})
	proposed := []ProposedEffect{{Source: "a", Amount: d("9999")}}

	result := e.ApplyDeductionCap(d("100"), proposed)

	assert.False(t, result.WasCapped)
	assert.True(t, result.Effects[0].Capped.Equal(d("9999")))
}

func TestNegativeProposalsTreatedAsZero(t *testing.T) {
	e := NewEnforcer(Limits{MaxDeductionPercent: d("50")})
	proposed := []ProposedEffect{
		{Source: "a", Amount: d("-100")},
		{Source: "b", Amount: d("1000")},
	}

	result := e.ApplyDeductionCap(d("4000"), proposed)

	assert.False(t, result.WasCapped)
	assert.True(t, result.TotalOriginal.Equal(d("1000")))
	assert.True(t, result.Effects[0].Capped.IsZero())
	assert.True(t, result.Effects[0].Original.Equal(d("-100")))
}

func TestEmptyProposalsZeroResult(t *testing.T) {
	e := NewEnforcer(DefaultLimits())
	result := e.ApplyDeductionCap(d("4000"), nil)

	assert.False(t, result.WasCapped)
	assert.True(t, result.TotalOriginal.IsZero())
	assert.True(t, result.TotalCapped.IsZero())
	assert.Empty(t, result.Effects)
}

func TestCheckPenaltyDays(t *testing.T) {
	e := NewEnforcer(Limits{MaxSinglePenaltyDays: 3})

	assert.NoError(t, e.CheckPenaltyDays("late-penalty", 3))
	assert.NoError(t, e.CheckPenaltyDays("late-penalty", 0))

	err := e.CheckPenaltyDays("late-penalty", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "late-penalty")
	assert.Contains(t, err.Error(), "5")
	assert.Contains(t, err.Error(), "3")
}

func TestCheckPenaltyDaysDisabled(t *testing.T) {
	e := NewEnforcer(Limits{MaxSinglePenaltyDays: 0})
	assert.NoError(t, e.CheckPenaltyDays("x", 365))
}

func TestParseLimitsYAML(t *testing.T) {
	cfg, err := ParseLimits([]byte(`
default:
  max_deduction_percent: 50
  max_single_penalty_days: 3
jurisdictions:
  AE:
    max_deduction_percent: 25
    max_single_penalty_days: 5
`))
	require.NoError(t, err)

	ae := cfg.For("AE")
	assert.True(t, ae.MaxDeductionPercent.Equal(d("25")))
	assert.Equal(t, 5, ae.MaxSinglePenaltyDays)

	// Unknown jurisdiction falls back to the file default.
	in := cfg.For("IN")
	assert.True(t, in.MaxDeductionPercent.Equal(d("50")))
	assert.Equal(t, 3, in.MaxSinglePenaltyDays)
}

func TestParseLimitsWithoutDefault(t *testing.T) {
	cfg, err := ParseLimits([]byte(`jurisdictions: {}`))
	require.NoError(t, err)

	l := cfg.For("")
	assert.True(t, l.MaxDeductionPercent.Equal(DefaultLimits().MaxDeductionPercent))
}

func TestParseLimitsBadYAML(t *testing.T) {
	_, err := ParseLimits([]byte(`default: [not a map`))
	assert.Error(t, err)
}
