/*
guard.go - Security validation for authored formulas and conditions

PURPOSE:
  First line of defense. Before any substitution or parsing happens, the
  raw input is checked against a deny-list of tokens that would reach
  host-runtime internals, timers, network, or the filesystem in a dynamic
  language, and against a strict character allow-list.

  This is a textual gate, not a grammar check. The evaluator itself has no
  dynamic-evaluation escape hatch, so the gate is belt-and-suspenders: a
  denied token can never execute regardless, but it is rejected loudly so
  the policy editor surfaces the authoring error instead of silently
  evaluating a mangled expression.

INVARIANTS:
  - The gate runs on the raw input BEFORE variable substitution. Substituted
    content is produced by the engine itself and is numeric by construction.
  - Rejection is a hard authoring error (DiagSyntaxRejected); the input is
    never evaluated.
*/
package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxInputLength bounds authored input. Evaluation cost is linear in input
// size; the bound keeps a hostile formula from degrading a payroll run.
const MaxInputLength = 1000

// deniedTokens are constructs that would reach host-object internals,
// timers, network, or filesystem in a dynamically evaluated language.
// Matched case-insensitively as whole words.
var deniedTokens = []string{
	"EVAL",
	"FUNCTION",
	"CONSTRUCTOR",
	"PROTOTYPE",
	"__PROTO__",
	"REQUIRE",
	"IMPORT",
	"EXPORT",
	"MODULE",
	"PROCESS",
	"GLOBAL",
	"GLOBALTHIS",
	"WINDOW",
	"THIS",
	"NEW",
	"DELETE",
	"SETTIMEOUT",
	"SETINTERVAL",
	"SETIMMEDIATE",
	"FETCH",
	"XMLHTTPREQUEST",
	"EXEC",
	"SPAWN",
	"READFILE",
	"WRITEFILE",
	"CHILD_PROCESS",
}

type guardMode int

const (
	guardFormula guardMode = iota
	guardCondition
)

// validate runs the deny-list and allow-list checks. Returns nil when the
// input is safe to hand to the evaluation pipeline.
func validate(input string, mode guardMode) *Diagnostic {
	if len(input) > MaxInputLength {
		return rejected(ErrFormulaTooLong.Error())
	}
	if strings.TrimSpace(input) == "" {
		return rejected("empty input")
	}

	upper := strings.ToUpper(input)
	for _, token := range deniedTokens {
		if containsWord(upper, token) {
			return rejected(fmt.Sprintf("denied token %q", token))
		}
	}

	for _, r := range upper {
		if !allowedRune(r, mode) {
			return rejected(fmt.Sprintf("disallowed character %q", r))
		}
	}
	return nil
}

// allowedRune implements the restricted character set:
// A-Z 0-9 _ + - * / ( ) . , % ^ < > = ! & | ? : and whitespace.
// Conditions additionally allow quotes for string literals.
func allowedRune(r rune, mode guardMode) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	}
	switch r {
	case '_', '+', '-', '*', '/', '(', ')', '.', ',', '%', '^', '<', '>', '=', '!', '&', '|', '?', ':':
		return true
	case '\'', '"':
		return mode == guardCondition
	}
	return false
}

// containsWord reports whether token appears in s as a whole word
// (not embedded in a longer identifier).
func containsWord(s, token string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], token)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(token)
		beforeOK := idx == 0 || !isWordRune(rune(s[idx-1]))
		afterOK := end == len(s) || !isWordRune(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
