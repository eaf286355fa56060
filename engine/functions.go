/*
functions.go - The fixed function table

PURPOSE:
  The only named functions a formula may call. The table is built once per
  Evaluator and never mutated afterward - there is no process-wide registry
  and no way to register additional functions at runtime.

FUNCTIONS:
  MIN(a, b, ...)       smallest argument (n-ary)
  MAX(a, b, ...)       largest argument (n-ary)
  ROUND(v, d=2)        round half away from zero to d decimal places
  FLOOR(v)             round down
  CEIL(v)              round up
  ABS(v)               absolute value
  TRUNC(v)             drop the fractional part
  SQRT(v)              square root (negative input yields NaN, which the
                       result policy converts to the safe default)
  POW(base, exp)       exponentiation
*/
package engine

import "math"

type funcDef struct {
	minArgs int
	maxArgs int // -1 = unbounded
	apply   func(args []float64) float64
}

// builtinFunctions constructs the const function table. Called once in
// NewEvaluator.
func builtinFunctions() map[string]funcDef {
	return map[string]funcDef{
		"MIN": {minArgs: 1, maxArgs: -1, apply: func(args []float64) float64 {
			m := args[0]
			for _, v := range args[1:] {
				if v < m {
					m = v
				}
			}
			return m
		}},
		"MAX": {minArgs: 1, maxArgs: -1, apply: func(args []float64) float64 {
			m := args[0]
			for _, v := range args[1:] {
				if v > m {
					m = v
				}
			}
			return m
		}},
		"ROUND": {minArgs: 1, maxArgs: 2, apply: func(args []float64) float64 {
			decimals := 2.0
			if len(args) == 2 {
				decimals = args[1]
			}
			scale := math.Pow(10, math.Trunc(decimals))
			return math.Round(args[0]*scale) / scale
		}},
		"FLOOR": {minArgs: 1, maxArgs: 1, apply: func(args []float64) float64 {
			return math.Floor(args[0])
		}},
		"CEIL": {minArgs: 1, maxArgs: 1, apply: func(args []float64) float64 {
			return math.Ceil(args[0])
		}},
		"ABS": {minArgs: 1, maxArgs: 1, apply: func(args []float64) float64 {
			return math.Abs(args[0])
		}},
		"TRUNC": {minArgs: 1, maxArgs: 1, apply: func(args []float64) float64 {
			return math.Trunc(args[0])
		}},
		"SQRT": {minArgs: 1, maxArgs: 1, apply: func(args []float64) float64 {
			return math.Sqrt(args[0])
		}},
		"POW": {minArgs: 2, maxArgs: 2, apply: func(args []float64) float64 {
			return math.Pow(args[0], args[1])
		}},
	}
}

// reservedWords are identifiers the condition evaluator must never
// substitute, even if a tenant defines a field with a colliding name.
// A field literally named AND must not corrupt the grammar.
func reservedWords() map[string]struct{} {
	words := []string{
		"IF", "AND", "OR", "NOT", "TRUE", "FALSE", "NULL",
		"EQUALS", "NOT_EQUALS",
		"GREATER_THAN", "LESS_THAN",
		"GREATER_THAN_OR_EQUAL", "LESS_THAN_OR_EQUAL",
		"MIN", "MAX", "ROUND", "FLOOR", "CEIL", "ABS", "TRUNC", "SQRT", "POW",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
