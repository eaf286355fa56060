/*
errors.go - Evaluation diagnostics and sentinel errors

PURPOSE:
  Centralizes the evaluator error taxonomy. Evaluation never panics and
  never surfaces a raw error to a payroll run: every failure is converted
  to a safe default (0 / false) plus a Diagnostic at the evaluator boundary.

TAXONOMY:
  DiagSyntaxRejected        Input failed the security gate. Hard authoring
                            error; the input was never evaluated.
  DiagUnresolvedIdentifier  One or more identifiers had no binding.
                            Non-fatal; they defaulted to zero.
  DiagArithmeticInvalid     Evaluation produced a non-finite result or the
                            expression did not reduce to a single value.

SEE ALSO:
  - expression.go: Produces these diagnostics
  - condition.go: Produces these diagnostics (result defaults to false)
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSyntaxRejected is returned when input fails the deny-list/allow-list
	// security gate. The input was never evaluated.
	ErrSyntaxRejected = errors.New("syntax rejected by security gate")

	// ErrArithmeticInvalid is returned when evaluation produced a non-finite
	// result or a malformed expression.
	ErrArithmeticInvalid = errors.New("invalid arithmetic expression")

	// ErrFormulaTooLong is returned when input exceeds the fixed length bound.
	ErrFormulaTooLong = errors.New("formula exceeds maximum length")
)

// =============================================================================
// DIAGNOSTIC - Structured evaluation outcome
// =============================================================================

type DiagnosticCode string

const (
	DiagSyntaxRejected       DiagnosticCode = "syntax_rejected"
	DiagUnresolvedIdentifier DiagnosticCode = "unresolved_identifier"
	DiagArithmeticInvalid    DiagnosticCode = "arithmetic_invalid"
)

// Diagnostic describes why an evaluation degraded to its safe default, or
// (for the non-fatal unresolved-identifier case) what was defaulted while
// still producing a usable result.
type Diagnostic struct {
	Code    DiagnosticCode
	Message string

	// Fatal is true when the result was forced to the safe default.
	// Unresolved identifiers are reported with Fatal=false: the result is
	// still valid, the missing names simply evaluated to zero.
	Fatal bool

	// Unresolved lists identifiers that defaulted to zero, when applicable.
	Unresolved []string
}

func (d *Diagnostic) Error() string {
	if d == nil {
		return ""
	}
	if len(d.Unresolved) > 0 {
		return fmt.Sprintf("%s: %s (unresolved: %s)", d.Code, d.Message, strings.Join(d.Unresolved, ", "))
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

func rejected(msg string) *Diagnostic {
	return &Diagnostic{Code: DiagSyntaxRejected, Message: msg, Fatal: true}
}

func invalid(msg string) *Diagnostic {
	return &Diagnostic{Code: DiagArithmeticInvalid, Message: msg, Fatal: true}
}

func unresolved(names []string) *Diagnostic {
	return &Diagnostic{
		Code:       DiagUnresolvedIdentifier,
		Message:    "identifiers defaulted to zero",
		Unresolved: names,
	}
}
