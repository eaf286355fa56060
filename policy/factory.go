/*
factory.go - JSON to Go policy conversion

PURPOSE:
  Converts JSON policy definitions into Policy objects. This enables rule
  configuration without code changes - HR admins define policies in JSON,
  and the factory creates the proper Go structs with validated fields and
  sensible defaults.

WHY JSON?
  - Non-developers can modify policies
  - Easy integration with admin UI
  - Version control for policy definitions
  - Database storage of policy configs

JSON SCHEMA:
  {
    "id": "late-penalty",
    "company_id": "acme",
    "name": "Late Arrival Penalty",
    "trigger_event": "PAYROLL_RUN",
    "conditions": [
      {"field": "attendance.lateDays", "operator": "GREATER_THAN", "value": "3"}
    ],
    "actions": [
      {"type": "DEDUCT", "component": "BASIC", "value": "50"}
    ],
    "occurrence": {
      "type": "LATE_ARRIVAL",
      "reset_period": "MONTHLY",
      "tiers": [
        {"min_occurrences": 1, "action": "NONE"},
        {"min_occurrences": 3, "action": "DEDUCT", "value_type": "FIXED", "value": "25"}
      ]
    }
  }

KEY FEATURES:
  - Validates JSON structure and enumerated fields
  - Sets sensible defaults (DRAFT status, NEVER reset period)
  - Round-trips via ToJSON for storage and the admin API
*/
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/rule-engine/occurrence"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	ID            string          `json:"id"`
	CompanyID     string          `json:"company_id"`
	Name          string          `json:"name"`
	TriggerEvent  string          `json:"trigger_event"`
	Conditions    []ConditionJSON `json:"conditions,omitempty"`
	ConditionExpr string          `json:"condition_expr,omitempty"`
	Actions       []ActionJSON    `json:"actions,omitempty"`
	Occurrence    *OccurrenceJSON `json:"occurrence,omitempty"`
	Status        string          `json:"status,omitempty"` // Default DRAFT
}

// ConditionJSON represents one structured condition.
type ConditionJSON struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// ActionJSON represents one payroll action.
type ActionJSON struct {
	Type      string `json:"type"` // DEDUCT, ADD, NONE
	Component string `json:"component"`
	Value     string `json:"value,omitempty"`
}

// OccurrenceJSON represents occurrence tracking configuration.
type OccurrenceJSON struct {
	Type        string     `json:"type"`
	ResetPeriod string     `json:"reset_period,omitempty"` // Default NEVER
	Tiers       []TierJSON `json:"tiers,omitempty"`
}

// TierJSON represents one escalation tier.
type TierJSON struct {
	MinOccurrences int    `json:"min_occurrences"`
	MaxOccurrences *int   `json:"max_occurrences,omitempty"`
	Action         string `json:"action"`
	ValueType      string `json:"value_type,omitempty"` // FIXED, PERCENTAGE, FORMULA
	Value          string `json:"value,omitempty"`
	Formula        string `json:"formula,omitempty"`
	PerOccurrence  bool   `json:"per_occurrence,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// Factory converts JSON policies to Go structs.
type Factory struct{}

// NewFactory creates a new policy factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Parse parses a JSON string into a Policy.
func (f *Factory) Parse(jsonStr string) (*Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a Policy, validating enumerated fields.
func (f *Factory) FromJSON(pj PolicyJSON) (*Policy, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("policy id is required")
	}
	if pj.Name == "" {
		return nil, fmt.Errorf("policy %s: name is required", pj.ID)
	}
	if pj.TriggerEvent == "" {
		return nil, fmt.Errorf("policy %s: trigger_event is required", pj.ID)
	}

	p := &Policy{
		ID:            ID(pj.ID),
		CompanyID:     pj.CompanyID,
		Name:          pj.Name,
		TriggerEvent:  strings.ToUpper(strings.TrimSpace(pj.TriggerEvent)),
		ConditionExpr: pj.ConditionExpr,
		Status:        parseStatus(pj.Status),
	}

	for _, cj := range pj.Conditions {
		c, err := parseCondition(cj)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", pj.ID, err)
		}
		p.Conditions = append(p.Conditions, c)
	}

	for _, aj := range pj.Actions {
		a, err := parseAction(aj)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", pj.ID, err)
		}
		p.Actions = append(p.Actions, a)
	}

	if pj.Occurrence != nil {
		if pj.Occurrence.Type == "" {
			return nil, fmt.Errorf("policy %s: occurrence type is required", pj.ID)
		}
		p.OccurrenceType = occurrence.Type(strings.ToUpper(pj.Occurrence.Type))
		p.ResetPeriod = parseResetPeriod(pj.Occurrence.ResetPeriod)
		if !p.ResetPeriod.Valid() {
			return nil, fmt.Errorf("policy %s: unknown reset_period %q", pj.ID, pj.Occurrence.ResetPeriod)
		}
		for _, tj := range pj.Occurrence.Tiers {
			t, err := parseTier(tj)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", pj.ID, err)
			}
			p.Tiers = append(p.Tiers, t)
		}
	}

	return p, nil
}

// ToJSON converts a Policy back to its JSON representation.
func (f *Factory) ToJSON(p *Policy) PolicyJSON {
	pj := PolicyJSON{
		ID:            string(p.ID),
		CompanyID:     p.CompanyID,
		Name:          p.Name,
		TriggerEvent:  p.TriggerEvent,
		ConditionExpr: p.ConditionExpr,
		Status:        string(p.Status),
	}

	for _, c := range p.Conditions {
		pj.Conditions = append(pj.Conditions, ConditionJSON{
			Field:    c.Field,
			Operator: string(c.Operator),
			Value:    c.Value,
		})
	}

	for _, a := range p.Actions {
		pj.Actions = append(pj.Actions, ActionJSON{
			Type:      string(a.Type),
			Component: a.Component,
			Value:     a.Value.String(),
		})
	}

	if p.Tiered() || p.OccurrenceType != "" {
		oj := &OccurrenceJSON{
			Type:        string(p.OccurrenceType),
			ResetPeriod: string(p.ResetPeriod),
		}
		for _, t := range p.Tiers {
			oj.Tiers = append(oj.Tiers, TierJSON{
				MinOccurrences: t.MinOccurrences,
				MaxOccurrences: t.MaxOccurrences,
				Action:         string(t.Action),
				ValueType:      string(t.ValueType),
				Value:          t.Value.String(),
				Formula:        t.Formula,
				PerOccurrence:  t.PerOccurrence,
			})
		}
		pj.Occurrence = oj
	}

	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return StatusActive
	case "PENDING":
		return StatusPending
	case "ARCHIVED":
		return StatusArchived
	default:
		return StatusDraft
	}
}

func parseCondition(cj ConditionJSON) (Condition, error) {
	if cj.Field == "" {
		return Condition{}, fmt.Errorf("condition field is required")
	}
	op, ok := parseOperator(cj.Operator)
	if !ok {
		return Condition{}, fmt.Errorf("unknown operator %q", cj.Operator)
	}
	return Condition{
		Field:    cj.Field,
		Operator: op,
		Value:    cj.Value,
	}, nil
}

func parseOperator(s string) (Operator, bool) {
	switch Operator(strings.ToUpper(strings.TrimSpace(s))) {
	case OpEquals:
		return OpEquals, true
	case OpNotEquals:
		return OpNotEquals, true
	case OpGreaterThan:
		return OpGreaterThan, true
	case OpLessThan:
		return OpLessThan, true
	case OpGreaterThanOrEqual:
		return OpGreaterThanOrEqual, true
	case OpLessThanOrEqual:
		return OpLessThanOrEqual, true
	default:
		return "", false
	}
}

func parseAction(aj ActionJSON) (Action, error) {
	at, ok := parseActionType(aj.Type)
	if !ok {
		return Action{}, fmt.Errorf("unknown action type %q", aj.Type)
	}
	if at != occurrence.ActionNone && aj.Component == "" {
		return Action{}, fmt.Errorf("action %s requires a component", at)
	}

	value := decimal.Zero
	if aj.Value != "" {
		var err error
		value, err = decimal.NewFromString(aj.Value)
		if err != nil {
			return Action{}, fmt.Errorf("invalid action value %q: %w", aj.Value, err)
		}
	}

	return Action{Type: at, Component: strings.ToUpper(aj.Component), Value: value}, nil
}

func parseActionType(s string) (occurrence.ActionType, bool) {
	switch occurrence.ActionType(strings.ToUpper(strings.TrimSpace(s))) {
	case occurrence.ActionNone, "":
		return occurrence.ActionNone, true
	case occurrence.ActionDeduct:
		return occurrence.ActionDeduct, true
	case occurrence.ActionAdd:
		return occurrence.ActionAdd, true
	default:
		return "", false
	}
}

func parseResetPeriod(s string) occurrence.ResetPeriod {
	if s == "" {
		return occurrence.ResetNever
	}
	return occurrence.ResetPeriod(strings.ToUpper(strings.TrimSpace(s)))
}

func parseTier(tj TierJSON) (occurrence.Tier, error) {
	if tj.MinOccurrences < 1 {
		return occurrence.Tier{}, fmt.Errorf("tier min_occurrences must be >= 1, got %d", tj.MinOccurrences)
	}
	if tj.MaxOccurrences != nil && *tj.MaxOccurrences < tj.MinOccurrences {
		return occurrence.Tier{}, fmt.Errorf("tier max_occurrences %d below min_occurrences %d",
			*tj.MaxOccurrences, tj.MinOccurrences)
	}

	at, ok := parseActionType(tj.Action)
	if !ok {
		return occurrence.Tier{}, fmt.Errorf("unknown tier action %q", tj.Action)
	}

	vt, err := parseValueType(tj.ValueType)
	if err != nil {
		return occurrence.Tier{}, err
	}
	if vt == occurrence.ValueFormula && tj.Formula == "" {
		return occurrence.Tier{}, fmt.Errorf("FORMULA tier requires a formula")
	}

	value := decimal.Zero
	if tj.Value != "" {
		value, err = decimal.NewFromString(tj.Value)
		if err != nil {
			return occurrence.Tier{}, fmt.Errorf("invalid tier value %q: %w", tj.Value, err)
		}
	}

	return occurrence.Tier{
		MinOccurrences: tj.MinOccurrences,
		MaxOccurrences: tj.MaxOccurrences,
		Action:         at,
		ValueType:      vt,
		Value:          value,
		Formula:        tj.Formula,
		PerOccurrence:  tj.PerOccurrence,
	}, nil
}

func parseValueType(s string) (occurrence.ValueType, error) {
	switch occurrence.ValueType(strings.ToUpper(strings.TrimSpace(s))) {
	case occurrence.ValueFixed:
		return occurrence.ValueFixed, nil
	case occurrence.ValuePercentage:
		return occurrence.ValuePercentage, nil
	case occurrence.ValueFormula:
		return occurrence.ValueFormula, nil
	case "":
		// NONE tiers carry no value; value-bearing tiers default to FIXED.
		return occurrence.ValueFixed, nil
	default:
		return "", fmt.Errorf("unknown value_type %q", s)
	}
}
