/*
expression.go - Formula evaluation pipeline

PURPOSE:
  Turns an authored arithmetic formula plus a variable context into a
  currency-grade number. The pipeline, in order:

    1. Case-normalize to uppercase (identifiers are case-insensitive)
    2. Security gate (guard.go) - deny-list + character allow-list
    3. Variable substitution, longest names first (OT_BASE must never be
       partially matched by OT)
    4. IF(cond, a, b) expansion - innermost/rightmost occurrence first
    5. Function expansion - MIN/MAX/ROUND/... args evaluated recursively
    6. Tokenize -> shunting-yard -> RPN evaluation (token.go)
    7. Result policy: non-finite rejected, otherwise rounded to 2 decimals

CONTRACT:
  Evaluate never panics and never returns a raw error: malformed or unsafe
  input yields 0 plus a Diagnostic. Unresolved identifiers default to zero
  and are reported via a non-fatal Diagnostic alongside the valid result.
*/
package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluator evaluates formulas and conditions. It is immutable after
// construction and safe for concurrent use.
type Evaluator struct {
	funcs    map[string]funcDef
	reserved map[string]struct{}
	prep     *prepCache
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		funcs:    builtinFunctions(),
		reserved: reservedWords(),
		prep:     newPrepCache(),
	}
}

// Evaluate computes a formula against the context. Returns the numeric
// result and an optional Diagnostic. On any fatal condition the result is 0.
func (e *Evaluator) Evaluate(formula string, ctx Context) (float64, *Diagnostic) {
	prepared, diag := e.prep.prepare(formula, guardFormula)
	if diag != nil {
		return 0, diag
	}

	expr := e.substituteVariables(prepared, ctx)

	expr, err := e.expandConditionals(expr)
	if err != nil {
		return 0, invalid(err.Error())
	}

	value, unres, err := e.evalNumericString(expr)
	if err != nil {
		return 0, invalid(err.Error())
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, invalid("non-finite result")
	}

	value = math.Round(value*100) / 100
	if len(unres) > 0 {
		return value, unresolved(dedupe(unres))
	}
	return value, nil
}

// =============================================================================
// STAGE 3 - VARIABLE SUBSTITUTION
// =============================================================================

// substituteVariables replaces whole-word occurrences of every known
// numeric variable with its value, longest names first.
func (e *Evaluator) substituteVariables(expr string, ctx Context) string {
	names := ctx.FlatNames()
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		if _, isReserved := e.reserved[name]; isReserved {
			continue
		}
		v, ok := ctx.Number(name)
		if !ok {
			continue
		}
		re := wholeWord(name)
		expr = re.ReplaceAllString(expr, formatNumber(v))
	}
	return expr
}

func wholeWord(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}

// =============================================================================
// STAGE 4 - CONDITIONAL EXPANSION
// =============================================================================

// maxConditionalDepth bounds IF expansion so pathological nesting cannot
// loop forever.
const maxConditionalDepth = 64

// expandConditionals resolves IF(cond, a, b) forms. The innermost/rightmost
// occurrence is resolved first by scanning backward for the last IF token,
// which is the tie-break for nested forms.
func (e *Evaluator) expandConditionals(expr string) (string, error) {
	for depth := 0; depth < maxConditionalDepth; depth++ {
		idx, open := lastConditional(expr)
		if idx < 0 {
			return expr, nil
		}
		closing, err := matchParen(expr, open)
		if err != nil {
			return "", err
		}
		parts := splitTopLevel(expr[open+1 : closing])
		if len(parts) != 3 {
			return "", fmt.Errorf("IF expects 3 arguments, got %d", len(parts))
		}
		truth, err := e.evalComparison(parts[0])
		if err != nil {
			return "", err
		}
		branch := parts[2]
		if truth {
			branch = parts[1]
		}
		expr = expr[:idx] + "(" + strings.TrimSpace(branch) + ")" + expr[closing+1:]
	}
	return "", fmt.Errorf("IF nesting exceeds limit")
}

// lastConditional finds the rightmost whole-word IF followed by an opening
// parenthesis. Returns (-1, -1) when none remains.
func lastConditional(expr string) (start, open int) {
	for end := len(expr); end > 0; {
		idx := strings.LastIndex(expr[:end], "IF")
		if idx < 0 {
			return -1, -1
		}
		end = idx
		if idx > 0 && isWordRune(rune(expr[idx-1])) {
			continue
		}
		after := idx + 2
		for after < len(expr) && expr[after] == ' ' {
			after++
		}
		if after < len(expr) && expr[after] == '(' {
			return idx, after
		}
	}
	return -1, -1
}

// matchParen returns the index of the parenthesis closing expr[open].
func matchParen(expr string, open int) (int, error) {
	depth := 0
	for i := open; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitTopLevel splits on commas that are not nested inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// evalComparison evaluates the condition part of an IF form: a single
// comparison (> < >= <= == !=) between two arithmetic expressions, or a
// bare expression where non-zero is true.
func (e *Evaluator) evalComparison(cond string) (bool, error) {
	op, left, right := splitComparison(cond)
	if op == "" {
		v, _, err := e.evalNumericString(cond)
		if err != nil {
			return false, err
		}
		return v != 0, nil
	}

	lv, _, err := e.evalNumericString(left)
	if err != nil {
		return false, err
	}
	rv, _, err := e.evalNumericString(right)
	if err != nil {
		return false, err
	}
	return compareNumbers(op, lv, rv), nil
}

// splitComparison locates the first top-level comparison operator.
// Returns ("", "", "") when the expression has none.
func splitComparison(s string) (op, left, right string) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if i+1 < len(s) {
			two := s[i : i+2]
			switch two {
			case ">=", "<=", "==", "!=":
				return two, s[:i], s[i+2:]
			}
		}
		switch s[i] {
		case '>', '<':
			return string(s[i]), s[:i], s[i+1:]
		}
	}
	return "", "", ""
}

func compareNumbers(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "==":
		return a == b
	case "!=":
		return a != b
	default:
		return false
	}
}

// =============================================================================
// STAGE 5+6 - FUNCTION EXPANSION AND ARITHMETIC
// =============================================================================

// evalNumericString expands functions then runs the arithmetic stage.
// Returns the value plus any identifiers that defaulted to zero.
func (e *Evaluator) evalNumericString(expr string) (float64, []string, error) {
	expr, unresFromFuncs, err := e.expandFunctions(expr)
	if err != nil {
		return 0, nil, err
	}

	tokens, err := tokenize(expr)
	if err != nil {
		return 0, nil, err
	}
	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, nil, err
	}
	v, unres, err := evalRPN(rpn)
	if err != nil {
		return 0, nil, err
	}
	return v, append(unresFromFuncs, unres...), nil
}

const maxFunctionExpansions = 128

// expandFunctions rewrites FUNC(args) forms into numeric literals, innermost
// first (the rightmost function-name occurrence always belongs to the
// deepest unexpanded call).
func (e *Evaluator) expandFunctions(expr string) (string, []string, error) {
	var unresolvedAll []string

	for i := 0; i < maxFunctionExpansions; i++ {
		name, start, open := e.lastFunctionCall(expr)
		if start < 0 {
			return expr, unresolvedAll, nil
		}
		closing, err := matchParen(expr, open)
		if err != nil {
			return "", nil, err
		}

		def := e.funcs[name]
		rawArgs := splitTopLevel(expr[open+1 : closing])
		if len(rawArgs) < def.minArgs || (def.maxArgs >= 0 && len(rawArgs) > def.maxArgs) {
			return "", nil, fmt.Errorf("%s: wrong argument count %d", name, len(rawArgs))
		}

		args := make([]float64, len(rawArgs))
		for j, raw := range rawArgs {
			v, unres, err := e.evalNumericString(raw)
			if err != nil {
				return "", nil, fmt.Errorf("%s argument %d: %w", name, j+1, err)
			}
			unresolvedAll = append(unresolvedAll, unres...)
			args[j] = v
		}

		result := def.apply(args)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return "", nil, fmt.Errorf("%s produced a non-finite value", name)
		}
		expr = expr[:start] + formatNumber(result) + expr[closing+1:]
	}
	return "", nil, fmt.Errorf("function nesting exceeds limit")
}

// lastFunctionCall finds the rightmost whole-word function name followed by
// an opening parenthesis. Returns start -1 when none remains.
func (e *Evaluator) lastFunctionCall(expr string) (name string, start, open int) {
	best := -1
	for fn := range e.funcs {
		for end := len(expr); end > 0; {
			idx := strings.LastIndex(expr[:end], fn)
			if idx < 0 {
				break
			}
			end = idx
			if idx > 0 && isWordRune(rune(expr[idx-1])) {
				continue
			}
			after := idx + len(fn)
			for after < len(expr) && expr[after] == ' ' {
				after++
			}
			if after >= len(expr) || expr[after] != '(' {
				continue
			}
			if idx > best {
				best = idx
				name = fn
				start = idx
				open = after
			}
			break
		}
	}
	if best < 0 {
		return "", -1, -1
	}
	return name, start, open
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// PREP CACHE - Normalized + gate-checked input keyed by the authored string
// =============================================================================

// Formulas are evaluated once per employee per payroll run, so the same
// authored strings hit the gate thousands of times. The cache keeps the
// uppercased form and the gate verdict; substitution onward is per-context
// work and cannot be cached.
type prepCache struct {
	mu      sync.RWMutex
	entries map[prepKey]prepEntry
}

type prepKey struct {
	input string
	mode  guardMode
}

type prepEntry struct {
	normalized string
	diag       *Diagnostic
}

const prepCacheLimit = 512

func newPrepCache() *prepCache {
	return &prepCache{entries: make(map[prepKey]prepEntry)}
}

func (c *prepCache) prepare(input string, mode guardMode) (string, *Diagnostic) {
	key := prepKey{input: input, mode: mode}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.normalized, entry.diag
	}

	var normalized string
	diag := validate(input, mode)
	if diag == nil {
		normalized = strings.ToUpper(strings.TrimSpace(input))
	}

	c.mu.Lock()
	if len(c.entries) >= prepCacheLimit {
		// Tenants rarely author this many distinct rules; a full reset is
		// cheaper than tracking recency.
		c.entries = make(map[prepKey]prepEntry)
	}
	c.entries[key] = prepEntry{normalized: normalized, diag: diag}
	c.mu.Unlock()

	return normalized, diag
}
