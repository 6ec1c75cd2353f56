// Package condition implements the boolean condition trees evaluated by the
// pack evaluator. A condition is either Simple (fact, operator, value) or
// Composite (AND/OR/NOT over child conditions). Evaluation is three-valued:
// unknown facts propagate per the truth table below rather than failing.
package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value is the three-valued result of evaluating a condition.
type Value int

const (
	False Value = iota
	True
	Unknown
)

func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Operator names either a simple comparison or a composite combinator. The
// composite combinators are uppercase by convention and never valid on a
// simple condition.
type Operator string

const (
	OpEq          Operator = "=="
	OpNeq         Operator = "!="
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpIn          Operator = "in"
	OpContains    Operator = "contains"
	OpContainsAll Operator = "containsAll"
	OpMatches     Operator = "matches"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"

	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// SimpleOperators lists every valid simple-condition operator, for semantic
// validation.
var SimpleOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpContains: true, OpContainsAll: true, OpMatches: true,
	OpStartsWith: true, OpEndsWith: true,
}

// CompositeOperators lists the composite combinators.
var CompositeOperators = map[Operator]bool{OpAnd: true, OpOr: true, OpNot: true}

// Condition is the sum of the two condition shapes. A condition with child
// conditions is composite; otherwise it is simple. The pack validator
// rejects documents that mix the two arms.
type Condition struct {
	Fact     string      `json:"fact,omitempty" yaml:"fact,omitempty"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Children []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// IsComposite reports whether the condition combines child conditions.
func (c *Condition) IsComposite() bool { return CompositeOperators[c.Operator] }

// Resolver supplies fact values. The second return is false when the fact is
// unknown; evaluation then yields Unknown instead of an error.
type Resolver interface {
	Resolve(fact string) (interface{}, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(fact string) (interface{}, bool)

func (f ResolverFunc) Resolve(fact string) (interface{}, bool) { return f(fact) }

// Evaluate walks the condition tree post-order with left-to-right
// short-circuit. Unknown propagation: an unknown AND child leaves the result
// unknown unless another child is false; an unknown OR child leaves it
// unknown unless another is true; NOT maps unknown to unknown.
func (c *Condition) Evaluate(r Resolver) Value {
	switch c.Operator {
	case OpAnd:
		sawUnknown := false
		for i := range c.Children {
			switch c.Children[i].Evaluate(r) {
			case False:
				return False
			case Unknown:
				sawUnknown = true
			}
		}
		if sawUnknown {
			return Unknown
		}
		return True
	case OpOr:
		sawUnknown := false
		for i := range c.Children {
			switch c.Children[i].Evaluate(r) {
			case True:
				return True
			case Unknown:
				sawUnknown = true
			}
		}
		if sawUnknown {
			return Unknown
		}
		return False
	case OpNot:
		if len(c.Children) != 1 {
			return Unknown
		}
		switch c.Children[0].Evaluate(r) {
		case True:
			return False
		case False:
			return True
		default:
			return Unknown
		}
	}
	actual, ok := r.Resolve(c.Fact)
	if !ok {
		return Unknown
	}
	return Compare(c.Operator, actual, c.Value)
}

// Compare applies op to (actual, expected) under the coercion rules: numeric
// operators coerce numeric strings, `in` requires an array RHS, `matches`
// requires a string LHS. Any type mismatch yields Unknown.
func Compare(op Operator, actual, expected interface{}) Value {
	switch op {
	case OpEq:
		return boolValue(looseEqual(actual, expected))
	case OpNeq:
		return negate(boolValue(looseEqual(actual, expected)))
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(actual)
		e, eok := toFloat(expected)
		if !aok || !eok {
			return Unknown
		}
		switch op {
		case OpGt:
			return boolValue(a > e)
		case OpGte:
			return boolValue(a >= e)
		case OpLt:
			return boolValue(a < e)
		default:
			return boolValue(a <= e)
		}
	case OpIn:
		arr, ok := toSlice(expected)
		if !ok {
			return Unknown
		}
		for _, item := range arr {
			if looseEqual(actual, item) {
				return True
			}
		}
		return False
	case OpContains:
		if arr, ok := toSlice(actual); ok {
			for _, item := range arr {
				if looseEqual(item, expected) {
					return True
				}
			}
			return False
		}
		as, aok := actual.(string)
		es, eok := expected.(string)
		if !aok || !eok {
			return Unknown
		}
		return boolValue(strings.Contains(as, es))
	case OpContainsAll:
		arr, ok := toSlice(actual)
		if !ok {
			return Unknown
		}
		want, ok := toSlice(expected)
		if !ok {
			return Unknown
		}
		for _, w := range want {
			found := false
			for _, item := range arr {
				if looseEqual(item, w) {
					found = true
					break
				}
			}
			if !found {
				return False
			}
		}
		return True
	case OpMatches:
		as, aok := actual.(string)
		pat, eok := expected.(string)
		if !aok || !eok {
			return Unknown
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return Unknown
		}
		return boolValue(re.MatchString(as))
	case OpStartsWith:
		as, aok := actual.(string)
		es, eok := expected.(string)
		if !aok || !eok {
			return Unknown
		}
		return boolValue(strings.HasPrefix(as, es))
	case OpEndsWith:
		as, aok := actual.(string)
		es, eok := expected.(string)
		if !aok || !eok {
			return Unknown
		}
		return boolValue(strings.HasSuffix(as, es))
	}
	return Unknown
}

func negate(v Value) Value {
	switch v {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

func boolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// looseEqual compares with numeric coercion: "3" == 3 holds, "a" == 3 does
// not. Other scalars compare via their string form.
func looseEqual(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok2 := toFloat(b); ok2 {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok2 := b.(bool); ok2 {
			return ab == bb
		}
	}
	as, aok := scalarString(a)
	bs, bok := scalarString(b)
	return aok && bok && as == bs
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int, int32, int64, float32, float64, json.Number:
		f, _ := toFloat(t)
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toSlice normalizes []interface{}, []string and []int to a generic slice.
func toSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
