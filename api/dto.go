/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - policy/factory.go: PolicyJSON type
*/
package api

import (
	"github.com/warp/rule-engine/legal"
	"github.com/warp/rule-engine/payroll"
	"github.com/warp/rule-engine/policy"
)

// =============================================================================
// EVALUATION TYPES
// =============================================================================

// EvaluateRequest asks for one formula or condition evaluation.
type EvaluateRequest struct {
	Formula   string         `json:"formula,omitempty"`
	Condition string         `json:"condition,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// EvaluateResponse carries the result plus any non-fatal diagnostics.
type EvaluateResponse struct {
	Value       *float64 `json:"value,omitempty"`
	Result      *bool    `json:"result,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	Unresolved  []string `json:"unresolved,omitempty"`
}

// =============================================================================
// POLICY TYPES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	Config policy.PolicyJSON `json:"config"`
	Status string            `json:"status"`
}

// ActivateResponse reports the outcome of a policy activation attempt.
type ActivateResponse struct {
	Activated bool                    `json:"activated"`
	Result    policy.ActivationResult `json:"result"`
}

// ConflictsResponse lists conflicts for one company scope.
type ConflictsResponse struct {
	Conflicts []policy.Conflict `json:"conflicts"`
}

// =============================================================================
// OCCURRENCE TYPES
// =============================================================================

// RecordOccurrenceRequest registers one occurrence against a tracker.
type RecordOccurrenceRequest struct {
	PolicyID   string `json:"policy_id"`
	EmployeeID string `json:"employee_id"`
	Type       string `json:"type"`
	At         string `json:"at,omitempty"` // RFC 3339; defaults to now
}

// OccurrenceDTO reports a tracker's current state.
type OccurrenceDTO struct {
	PolicyID       string `json:"policy_id"`
	EmployeeID     string `json:"employee_id"`
	Type           string `json:"type"`
	Count          int    `json:"count"`
	ResetPeriod    string `json:"reset_period"`
	LastResetAt    string `json:"last_reset_at,omitempty"`
	LastOccurredAt string `json:"last_occurred_at,omitempty"`
}

// ResetResponse reports how many trackers a batch reset touched.
type ResetResponse struct {
	Reset int `json:"reset"`
}

// =============================================================================
// PAYROLL TYPES
// =============================================================================

// RunRequest wraps payroll.RunInput for the API.
type RunRequest struct {
	payroll.RunInput
}

// LimitsDTO exposes the effective caps for a jurisdiction.
type LimitsDTO struct {
	Jurisdiction string       `json:"jurisdiction"`
	Limits       legal.Limits `json:"limits"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
