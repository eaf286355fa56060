/*
Package engine provides the formula and condition evaluators at the heart
of the rule enforcement system.

PURPOSE:
  Tenant administrators author payroll math ("BASIC*0.5 + MAX(OT_HOURS*OT_RATE,0)")
  and policy predicates ("lateDays > 3 AND NOT onProbation") as free-form text.
  This package parses and evaluates those strings against a per-employee
  variable context, deterministically and without ever delegating to a
  general-purpose interpreter.

KEY CONCEPTS:
  - Context:    Named variables (numbers, booleans, strings, nested maps)
                assembled fresh per evaluation call
  - Evaluator:  Tokenizer + shunting-yard arithmetic, function expansion,
                IF() conditionals, boolean condition logic
  - Guard:      Deny-list/allow-list security gate applied before anything
                else touches the input
  - Diagnostic: Structured evaluation outcome (rejected, unresolved,
                invalid arithmetic)

DESIGN PRINCIPLES:
  1. Fail closed: malformed formulas yield 0, malformed conditions yield
     false. A bad tenant-authored rule must never stall a payroll run.
  2. No escape hatch: there is no path from the input string to anything
     but the fixed function table and arithmetic operators.
  3. Deterministic: same input + same context = same output, always.
  4. Pure: evaluators hold no mutable state besides a read-only function
     table and a bounded cache; they are safe to call from any number of
     goroutines.

USAGE:
  eval := engine.NewEvaluator()
  ctx := engine.NewContext(map[string]any{"BASIC": 5000})
  result, diag := eval.Evaluate("BASIC * 0.1", ctx)

SEE ALSO:
  - expression.go: Formula evaluation pipeline
  - condition.go: Boolean predicate evaluation
  - guard.go: Security validation
*/
package engine

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTEXT - Named variables for one evaluation call
// =============================================================================

// Context maps identifiers to values. Identifiers are case-insensitive and
// whitespace-trimmed; nested maps are addressable with dotted paths
// ("ATTENDANCE.LATEDAYS"). Unresolved identifiers resolve to zero/false,
// never to an error.
type Context struct {
	vars map[string]any
}

// NewContext builds a Context from raw key/value pairs. Keys are normalized
// to uppercase at every nesting level.
func NewContext(vars map[string]any) Context {
	return Context{vars: normalizeMap(vars)}
}

// EmptyContext returns a context with no variables.
func EmptyContext() Context {
	return Context{vars: map[string]any{}}
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := normalizeName(k)
		if key == "" {
			continue
		}
		if nested, ok := asMap(v); ok {
			out[key] = normalizeMap(nested)
			continue
		}
		out[key] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Lookup resolves a (possibly dotted) identifier. Returns (value, true) when
// the full path resolves, (nil, false) otherwise.
func (c Context) Lookup(name string) (any, bool) {
	parts := strings.Split(normalizeName(name), ".")
	current := any(c.vars)
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if _, isMap := asMap(current); isMap {
		// A path that stops at a nested object is not a usable value.
		return nil, false
	}
	return current, true
}

// Number resolves an identifier to a float64. Unresolved or non-numeric
// values default to 0.
func (c Context) Number(name string) (float64, bool) {
	v, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}
	return coerceNumber(v)
}

// FlatNames returns every resolvable path in the context, dotted for nested
// values. Used by the evaluators for longest-name-first substitution.
func (c Context) FlatNames() []string {
	var names []string
	flattenNames("", c.vars, &names)
	return names
}

func flattenNames(prefix string, m map[string]any, out *[]string) {
	for k, v := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := asMap(v); ok {
			flattenNames(full, nested, out)
			continue
		}
		*out = append(*out, full)
	}
}

// With returns a copy of the context with one additional variable bound.
func (c Context) With(name string, value any) Context {
	out := make(map[string]any, len(c.vars)+1)
	for k, v := range c.vars {
		out[k] = v
	}
	key := normalizeName(name)
	if nested, ok := asMap(value); ok {
		out[key] = normalizeMap(nested)
	} else {
		out[key] = value
	}
	return Context{vars: out}
}

// coerceNumber converts the supported value kinds to float64.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
