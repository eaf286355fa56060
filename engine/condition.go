/*
condition.go - Boolean predicate evaluation

PURPOSE:
  Decides whether a policy fires for a given employee/event. Shares the
  security gate, tokenizer, and arithmetic stage with the formula pipeline
  but differs in three ways:

    (a) substitutes whole-field values including dotted paths into nested
        data ("attendance.lateDays"), quoting string values;
    (b) maps the authored connectives AND/OR/NOT and the word comparators
        EQUALS / NOT_EQUALS / GREATER_THAN / LESS_THAN /
        GREATER_THAN_OR_EQUAL / LESS_THAN_OR_EQUAL onto == != > < >= <=;
    (c) never substitutes reserved words, so a tenant field literally named
        AND cannot corrupt the grammar.

CONTRACT:
  Fails closed: any error yields false plus a Diagnostic.

GRAMMAR (per the accepted protocol):
  condition  := comparison (('AND'|'OR') comparison)* | 'NOT' condition
  comparison := expression op expression | expression   (non-zero is true)
*/
package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// wordComparators maps authored comparison words to operators. Ordered
// longest-first so GREATER_THAN never clips GREATER_THAN_OR_EQUAL.
var wordComparators = []struct {
	re *regexp.Regexp
	op string
}{
	{regexp.MustCompile(`\bGREATER_THAN_OR_EQUAL\b`), ">="},
	{regexp.MustCompile(`\bLESS_THAN_OR_EQUAL\b`), "<="},
	{regexp.MustCompile(`\bGREATER_THAN\b`), ">"},
	{regexp.MustCompile(`\bLESS_THAN\b`), "<"},
	{regexp.MustCompile(`\bNOT_EQUALS\b`), "!="},
	{regexp.MustCompile(`\bEQUALS\b`), "=="},
}

var (
	reAnd   = regexp.MustCompile(`\bAND\b`)
	reOr    = regexp.MustCompile(`\bOR\b`)
	reNot   = regexp.MustCompile(`\bNOT\b`)
	reTrue  = regexp.MustCompile(`\bTRUE\b`)
	reFalse = regexp.MustCompile(`\bFALSE\b`)
	reNull  = regexp.MustCompile(`\bNULL\b`)
)

// EvaluateCondition evaluates a boolean predicate against the context.
// Any failure yields false plus a Diagnostic.
func (e *Evaluator) EvaluateCondition(condition string, ctx Context) (bool, *Diagnostic) {
	prepared, diag := e.prep.prepare(condition, guardCondition)
	if diag != nil {
		return false, diag
	}

	expr := prepared
	for _, wc := range wordComparators {
		expr = wc.re.ReplaceAllString(expr, " "+wc.op+" ")
	}

	expr = e.substituteFields(expr, ctx)

	expr = reAnd.ReplaceAllString(expr, " && ")
	expr = reOr.ReplaceAllString(expr, " || ")
	expr = reNot.ReplaceAllString(expr, " ! ")
	expr = reTrue.ReplaceAllString(expr, "1")
	expr = reFalse.ReplaceAllString(expr, "0")
	expr = reNull.ReplaceAllString(expr, "0")

	result, unres, err := e.evalBool(expr)
	if err != nil {
		return false, invalid(err.Error())
	}
	if len(unres) > 0 {
		return result, unresolved(dedupe(unres))
	}
	return result, nil
}

// substituteFields replaces whole-word field references (flat or dotted)
// with their values: numbers as literals, booleans as 1/0, strings quoted.
func (e *Evaluator) substituteFields(expr string, ctx Context) string {
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
		v, ok := ctx.Lookup(name)
		if !ok {
			continue
		}
		expr = wholeWord(name).ReplaceAllString(expr, conditionLiteral(v))
	}
	return expr
}

func conditionLiteral(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		if n, ok := coerceNumber(val); ok {
			return formatNumber(n)
		}
		// Quotes inside values would break out of the literal.
		clean := strings.NewReplacer("'", "", `"`, "").Replace(val)
		return "'" + strings.ToUpper(clean) + "'"
	default:
		if n, ok := coerceNumber(v); ok {
			return formatNumber(n)
		}
		return "0"
	}
}

// =============================================================================
// BOOLEAN EVALUATION
// =============================================================================

func (e *Evaluator) evalBool(s string) (bool, []string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil, fmt.Errorf("empty condition")
	}
	s = stripOuterParens(s)

	if parts := splitBoolOp(s, "||"); len(parts) > 1 {
		var all []string
		result := false
		for _, p := range parts {
			v, unres, err := e.evalBool(p)
			if err != nil {
				return false, nil, err
			}
			all = append(all, unres...)
			result = result || v
		}
		return result, all, nil
	}

	if parts := splitBoolOp(s, "&&"); len(parts) > 1 {
		var all []string
		result := true
		for _, p := range parts {
			v, unres, err := e.evalBool(p)
			if err != nil {
				return false, nil, err
			}
			all = append(all, unres...)
			result = result && v
		}
		return result, all, nil
	}

	// NOT applies to the whole remaining condition, per the grammar.
	if strings.HasPrefix(s, "!") && !strings.HasPrefix(s, "!=") {
		v, unres, err := e.evalBool(s[1:])
		return !v, unres, err
	}

	if op, left, right := splitComparisonQuoted(s); op != "" {
		return e.evalSides(op, left, right)
	}

	v, unres, err := e.evalNumericString(s)
	if err != nil {
		return false, nil, err
	}
	return v != 0, unres, nil
}

func (e *Evaluator) evalSides(op, left, right string) (bool, []string, error) {
	lq, rq := isQuoted(left), isQuoted(right)
	if lq || rq {
		switch op {
		case "==":
			return unquote(left) == unquote(right), nil, nil
		case "!=":
			return unquote(left) != unquote(right), nil, nil
		default:
			return false, nil, fmt.Errorf("operator %q not defined for strings", op)
		}
	}

	lv, lu, err := e.evalNumericString(left)
	if err != nil {
		return false, nil, err
	}
	rv, ru, err := e.evalNumericString(right)
	if err != nil {
		return false, nil, err
	}
	return compareNumbers(op, lv, rv), append(lu, ru...), nil
}

func isQuoted(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// stripOuterParens removes parentheses that enclose the whole expression.
func stripOuterParens(s string) string {
	for len(s) >= 2 && s[0] == '(' {
		closing, err := matchParen(s, 0)
		if err != nil || closing != len(s)-1 {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// splitBoolOp splits on a two-character boolean operator at depth zero,
// outside quoted literals.
func splitBoolOp(s, op string) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && i+1 < len(s) && s[i:i+2] == op {
				parts = append(parts, s[start:i])
				start = i + 2
				i++
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// splitComparisonQuoted is splitComparison with quote awareness, used for
// conditions where string literals may contain operator characters.
func splitComparisonQuoted(s string) (op, left, right string) {
	depth := 0
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
			continue
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
		switch c {
		case '>', '<':
			return string(c), s[:i], s[i+1:]
		}
	}
	return "", "", ""
}
