/*
handlers.go - HTTP API handlers for the rule evaluation engine

PURPOSE:
  Exposes the rule engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Evaluation:
    POST   /api/evaluate                 Evaluate a formula
    POST   /api/evaluate/condition       Evaluate a boolean condition

  Policies:
    GET    /api/policies?company=        List policies for a company
    POST   /api/policies                 Create policy from JSON
    GET    /api/policies/{id}            Get policy details
    DELETE /api/policies/{id}            Delete a policy
    POST   /api/policies/{id}/activate   Conflict-check and activate
    GET    /api/policies/conflicts?company=  Pairwise conflict report

  Occurrences:
    POST   /api/occurrences              Record one occurrence
    GET    /api/occurrences/{policy}/{employee}/{type}  Tracker state

  Payroll:
    POST   /api/payroll/run              Evaluate one employee

  Admin:
    POST   /api/admin/occurrences/reset  Reset all trackers for a policy
    POST   /api/admin/occurrences/sweep  Apply pending period resets
    GET    /api/admin/limits/{jurisdiction}  Effective legal caps

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (activation blocked)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/rule-engine/engine"
	"github.com/warp/rule-engine/legal"
	"github.com/warp/rule-engine/occurrence"
	"github.com/warp/rule-engine/payroll"
	"github.com/warp/rule-engine/policy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Eval       *engine.Evaluator
	Policies   policy.Store
	Factory    *policy.Factory
	Detector   *policy.Detector
	Occ        *occurrence.Service
	Trackers   occurrence.Store
	Calculator *payroll.Calculator
	Limits     *legal.LimitsConfig
}

// NewHandler wires a handler from its collaborators.
func NewHandler(eval *engine.Evaluator, policies policy.Store, trackers occurrence.Store, occ *occurrence.Service, calc *payroll.Calculator, limits *legal.LimitsConfig) *Handler {
	return &Handler{
		Eval:       eval,
		Policies:   policies,
		Factory:    policy.NewFactory(),
		Detector:   policy.NewDetector(),
		Occ:        occ,
		Trackers:   trackers,
		Calculator: calc,
		Limits:     limits,
	}
}

// =============================================================================
// EVALUATION HANDLERS
// =============================================================================

// Evaluate evaluates a formula against a caller-supplied context.
// POST /api/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.Formula == "" {
		writeError(w, http.StatusBadRequest, "formula is required", nil)
		return
	}

	value, diag := h.Eval.Evaluate(req.Formula, engine.NewContext(req.Context))
	if diag != nil && diag.Fatal {
		writeError(w, http.StatusBadRequest, "Formula rejected", diag)
		return
	}

	resp := EvaluateResponse{Value: &value}
	if diag != nil {
		resp.Diagnostics = append(resp.Diagnostics, diag.Message)
		resp.Unresolved = diag.Unresolved
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvaluateCondition evaluates a boolean condition.
// POST /api/evaluate/condition
func (h *Handler) EvaluateCondition(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.Condition == "" {
		writeError(w, http.StatusBadRequest, "condition is required", nil)
		return
	}

	result, diag := h.Eval.EvaluateCondition(req.Condition, engine.NewContext(req.Context))
	if diag != nil && diag.Fatal {
		writeError(w, http.StatusBadRequest, "Condition rejected", diag)
		return
	}

	resp := EvaluateResponse{Result: &result}
	if diag != nil {
		resp.Diagnostics = append(resp.Diagnostics, diag.Message)
		resp.Unresolved = diag.Unresolved
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all policies for a company.
// GET /api/policies?company=acme
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		writeError(w, http.StatusBadRequest, "company query parameter is required", nil)
		return
	}

	policies, err := h.Policies.ListByCompany(r.Context(), company)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i := range policies {
		dtos[i] = h.toPolicyDTO(policies[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy creates a policy from its JSON definition. New policies
// always start as DRAFT; activation is a separate, conflict-checked step.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj policy.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	p, err := h.Factory.FromJSON(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy definition", err)
		return
	}
	p.Status = policy.StatusDraft

	if err := h.Policies.Put(r.Context(), *p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPolicyDTO(*p))
}

// GetPolicy returns one policy.
// GET /api/policies/{id}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := policy.ID(chi.URLParam(r, "id"))
	p, err := h.Policies.Get(r.Context(), id)
	if errors.Is(err, policy.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTO(p))
}

// DeletePolicy removes a policy definition.
// DELETE /api/policies/{id}
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := policy.ID(chi.URLParam(r, "id"))
	if err := h.Policies.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivatePolicy conflict-checks a policy against its company's live
// policies and activates it when no HIGH-severity conflict blocks.
// POST /api/policies/{id}/activate
func (h *Handler) ActivatePolicy(w http.ResponseWriter, r *http.Request) {
	id := policy.ID(chi.URLParam(r, "id"))
	p, err := h.Policies.Get(r.Context(), id)
	if errors.Is(err, policy.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}

	existing, err := h.Policies.ListByCompany(r.Context(), p.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	result := h.Detector.ValidateBeforeActivation(p, existing)
	if !result.Allowed {
		writeJSON(w, http.StatusConflict, ActivateResponse{Activated: false, Result: result})
		return
	}

	p.Status = policy.StatusActive
	if err := h.Policies.Put(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivateResponse{Activated: true, Result: result})
}

// ListConflicts returns the pairwise conflict report for a company.
// GET /api/policies/conflicts?company=acme
func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		writeError(w, http.StatusBadRequest, "company query parameter is required", nil)
		return
	}

	policies, err := h.Policies.ListByCompany(r.Context(), company)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	conflicts := h.Detector.FindConflicts(policies)
	if conflicts == nil {
		conflicts = []policy.Conflict{}
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{Conflicts: conflicts})
}

// =============================================================================
// OCCURRENCE HANDLERS
// =============================================================================

// RecordOccurrence registers one occurrence. The reset period comes from
// the policy, which is the source of truth for the cadence.
// POST /api/occurrences
func (h *Handler) RecordOccurrence(w http.ResponseWriter, r *http.Request) {
	var req RecordOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.PolicyID == "" || req.EmployeeID == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "policy_id, employee_id and type are required", nil)
		return
	}

	p, err := h.Policies.Get(r.Context(), policy.ID(req.PolicyID))
	if errors.Is(err, policy.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load policy", err)
		return
	}

	at := time.Time{}
	if req.At != "" {
		at, err = time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at timestamp", err)
			return
		}
	}

	key := occurrence.Key{
		PolicyID:   occurrence.PolicyID(req.PolicyID),
		EmployeeID: occurrence.EmployeeID(req.EmployeeID),
		Type:       occurrence.Type(req.Type),
	}
	period := p.ResetPeriod
	if period == "" {
		period = occurrence.ResetNever
	}
	count, err := h.Occ.Record(r.Context(), key, period, at)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to record occurrence", err)
		return
	}

	writeJSON(w, http.StatusOK, OccurrenceDTO{
		PolicyID:    req.PolicyID,
		EmployeeID:  req.EmployeeID,
		Type:        req.Type,
		Count:       count,
		ResetPeriod: string(period),
	})
}

// GetOccurrence returns a tracker's current state, applying the lazy
// period reset first so stale counts are never reported.
// GET /api/occurrences/{policy}/{employee}/{type}
func (h *Handler) GetOccurrence(w http.ResponseWriter, r *http.Request) {
	key := occurrence.Key{
		PolicyID:   occurrence.PolicyID(chi.URLParam(r, "policy")),
		EmployeeID: occurrence.EmployeeID(chi.URLParam(r, "employee")),
		Type:       occurrence.Type(chi.URLParam(r, "type")),
	}

	// Count applies and persists any pending reset.
	if _, err := h.Occ.Count(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read tracker", err)
		return
	}

	tracker, err := h.Trackers.Get(r.Context(), key)
	if errors.Is(err, occurrence.ErrTrackerNotFound) {
		writeError(w, http.StatusNotFound, "Tracker not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read tracker", err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceDTO(tracker))
}

// ResetOccurrences zeroes every tracker under one policy.
// POST /api/admin/occurrences/reset?policy=late-penalty
func (h *Handler) ResetOccurrences(w http.ResponseWriter, r *http.Request) {
	policyID := r.URL.Query().Get("policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "policy query parameter is required", nil)
		return
	}

	reset, err := h.Occ.ResetAllForPolicy(r.Context(), occurrence.PolicyID(policyID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset trackers", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Reset: reset})
}

// SweepOccurrences applies all pending period resets.
// POST /api/admin/occurrences/sweep
func (h *Handler) SweepOccurrences(w http.ResponseWriter, r *http.Request) {
	reset, err := h.Occ.ProcessAutoResets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sweep trackers", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Reset: reset})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// RunPayroll evaluates one employee against the company's live policies.
// POST /api/payroll/run
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.CompanyID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "company_id and employee_id are required", nil)
		return
	}

	result, err := h.Calculator.Run(r.Context(), req.RunInput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Payroll run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetLimits returns the effective legal caps for a jurisdiction.
// GET /api/admin/limits/{jurisdiction}
func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	jurisdiction := chi.URLParam(r, "jurisdiction")
	limits := legal.DefaultLimits()
	if h.Limits != nil {
		limits = h.Limits.For(jurisdiction)
	}
	writeJSON(w, http.StatusOK, LimitsDTO{Jurisdiction: jurisdiction, Limits: limits})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toPolicyDTO(p policy.Policy) PolicyDTO {
	return PolicyDTO{
		Config: h.Factory.ToJSON(&p),
		Status: string(p.Status),
	}
}

func toOccurrenceDTO(t occurrence.Tracker) OccurrenceDTO {
	dto := OccurrenceDTO{
		PolicyID:    string(t.Key.PolicyID),
		EmployeeID:  string(t.Key.EmployeeID),
		Type:        string(t.Key.Type),
		Count:       t.Count,
		ResetPeriod: string(t.ResetPeriod),
	}
	if !t.LastResetAt.IsZero() {
		dto.LastResetAt = t.LastResetAt.Format(time.RFC3339)
	}
	if !t.LastOccurredAt.IsZero() {
		dto.LastOccurredAt = t.LastOccurredAt.Format(time.RFC3339)
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
