/*
token.go - Lexer and shunting-yard arithmetic for purely numeric expressions

PURPOSE:
  The last stage of the formula pipeline. By the time an expression reaches
  this file, variables have been substituted and functions/conditionals have
  been expanded, so the input is numbers, operators, and parentheses (plus
  any identifier that failed to resolve, which defaults to zero).

ALGORITHM:
  Classic two-stack shunting-yard producing Reverse Polish Notation, then a
  value-stack RPN walk. Precedence low to high:
    1: + -
    2: * / %
    3: ^
    4: unary minus
  ^ and unary minus are right-associative; parentheses override.

SAFETY:
  Division (and modulo) by zero yields 0, never NaN/Inf - payroll totals
  must remain numeric.
*/
package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// TOKENS
// =============================================================================

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOperator
	tokLParen
	tokRParen
	tokComma
)

// token is an atomic lexical unit. It never escapes the evaluator boundary.
type token struct {
	kind  tokenKind
	text  string
	value float64
}

// unary minus is rewritten to this internal operator during tokenization.
const opNegate = "u-"

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicodeSpace(r):
			i++

		case r >= '0' && r <= '9' || r == '.':
			start := i
			for i < len(runes) && (runes[i] >= '0' && runes[i] <= '9' || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number literal %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, value: v})

		case isWordRune(r):
			start := i
			for i < len(runes) && (isWordRune(runes[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i])})

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++

		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ","})
			i++

		case strings.ContainsRune("+-*/%^", r):
			op := string(r)
			if r == '-' && expectsOperand(tokens) {
				op = opNegate
			} else if r == '+' && expectsOperand(tokens) {
				// Unary plus is a no-op.
				i++
				continue
			}
			tokens = append(tokens, token{kind: tokOperator, text: op})
			i++

		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return tokens, nil
}

// expectsOperand is true when the next token position is an operand slot,
// which makes a following +/- unary.
func expectsOperand(tokens []token) bool {
	if len(tokens) == 0 {
		return true
	}
	switch last := tokens[len(tokens)-1]; last.kind {
	case tokOperator, tokLParen, tokComma:
		return true
	default:
		return false
	}
}

func unicodeSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// =============================================================================
// SHUNTING YARD - Infix to RPN
// =============================================================================

func precedence(op string) int {
	switch op {
	case "+", "-":
		return 1
	case "*", "/", "%":
		return 2
	case "^":
		return 3
	case opNegate:
		return 4
	default:
		return 0
	}
}

func rightAssociative(op string) bool {
	return op == "^" || op == opNegate
}

func toRPN(tokens []token) ([]token, error) {
	var output []token
	var ops []token

	for _, t := range tokens {
		switch t.kind {
		case tokNumber, tokIdent:
			output = append(output, t)

		case tokOperator:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.kind != tokOperator {
					break
				}
				if precedence(top.text) > precedence(t.text) ||
					(precedence(top.text) == precedence(t.text) && !rightAssociative(t.text)) {
					output = append(output, top)
					ops = ops[:len(ops)-1]
					continue
				}
				break
			}
			ops = append(ops, t)

		case tokLParen:
			ops = append(ops, t)

		case tokRParen:
			matched := false
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				ops = ops[:len(ops)-1]
				if top.kind == tokLParen {
					matched = true
					break
				}
				output = append(output, top)
			}
			if !matched {
				return nil, fmt.Errorf("unbalanced parentheses")
			}

		case tokComma:
			// Commas only exist inside function argument lists, which are
			// split out before arithmetic evaluation.
			return nil, fmt.Errorf("unexpected comma")
		}
	}

	for len(ops) > 0 {
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.kind == tokLParen {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		output = append(output, top)
	}
	return output, nil
}

// =============================================================================
// RPN EVALUATION
// =============================================================================

// evalRPN walks the RPN token stream with a value stack. Identifiers that
// survive to this point are unresolved variables; they evaluate to zero and
// are reported back to the caller.
func evalRPN(rpn []token) (float64, []string, error) {
	var stack []float64
	var unresolvedNames []string

	push := func(v float64) { stack = append(stack, v) }
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for _, t := range rpn {
		switch t.kind {
		case tokNumber:
			push(t.value)

		case tokIdent:
			unresolvedNames = append(unresolvedNames, t.text)
			push(0)

		case tokOperator:
			if t.text == opNegate {
				v, ok := pop()
				if !ok {
					return 0, unresolvedNames, fmt.Errorf("missing operand for unary minus")
				}
				push(-v)
				continue
			}
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return 0, unresolvedNames, fmt.Errorf("missing operand for %q", t.text)
			}
			push(applyOperator(t.text, a, b))
		}
	}

	if len(stack) != 1 {
		return 0, unresolvedNames, fmt.Errorf("expression did not reduce to a single value")
	}
	return stack[0], unresolvedNames, nil
}

func applyOperator(op string, a, b float64) float64 {
	switch op {
	case "+":
		return a + b
	case "-":
		return a - b
	case "*":
		return a * b
	case "/":
		if b == 0 {
			return 0
		}
		return a / b
	case "%":
		if b == 0 {
			return 0
		}
		return math.Mod(a, b)
	case "^":
		return math.Pow(a, b)
	default:
		return 0
	}
}
