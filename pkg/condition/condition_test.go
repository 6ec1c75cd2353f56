package condition

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

var facts = ResolverFunc(func(fact string) (interface{}, bool) {
	switch fact {
	case "pr.title":
		return "WIP: retry budget", true
	case "pr.additions":
		return 40, true
	case "pr.labels":
		return []string{"backend", "hotfix"}, true
	case "pr.draft":
		return true, true
	}
	return nil, false
})

func simple(fact string, op Operator, value interface{}) Condition {
	return Condition{Fact: fact, Operator: op, Value: value}
}

func TestSimpleOperators(t *testing.T) {
	cases := []struct {
		name string
		c    Condition
		want Value
	}{
		{"eq", simple("pr.additions", OpEq, 40), True},
		{"eq coerced string", simple("pr.additions", OpEq, "40"), True},
		{"neq", simple("pr.additions", OpNeq, 40), False},
		{"gt", simple("pr.additions", OpGt, 10), True},
		{"gte boundary", simple("pr.additions", OpGte, 40), True},
		{"lt", simple("pr.additions", OpLt, 10), False},
		{"lte", simple("pr.additions", OpLte, 40), True},
		{"numeric op on string", simple("pr.title", OpGt, 10), Unknown},
		{"in", simple("pr.additions", OpIn, []interface{}{10, 40}), True},
		{"in miss", simple("pr.additions", OpIn, []interface{}{10}), False},
		{"in non-array rhs", simple("pr.additions", OpIn, 40), Unknown},
		{"contains slice", simple("pr.labels", OpContains, "hotfix"), True},
		{"contains slice miss", simple("pr.labels", OpContains, "frontend"), False},
		{"contains substring", simple("pr.title", OpContains, "retry"), True},
		{"containsAll", simple("pr.labels", OpContainsAll, []interface{}{"backend", "hotfix"}), True},
		{"containsAll partial", simple("pr.labels", OpContainsAll, []interface{}{"backend", "frontend"}), False},
		{"matches", simple("pr.title", OpMatches, "^WIP"), True},
		{"matches bad regex", simple("pr.title", OpMatches, "[unclosed"), Unknown},
		{"matches non-string lhs", simple("pr.additions", OpMatches, "^4"), Unknown},
		{"startsWith", simple("pr.title", OpStartsWith, "WIP"), True},
		{"endsWith", simple("pr.title", OpEndsWith, "budget"), True},
		{"bool eq", simple("pr.draft", OpEq, true), True},
		{"unknown fact", simple("pr.milestone", OpEq, "v2"), Unknown},
		{"bogus operator", simple("pr.additions", Operator("~="), 40), Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.c.Evaluate(facts))
		})
	}
}

func TestCompositeTruthTables(t *testing.T) {
	tru := simple("pr.draft", OpEq, true)
	fls := simple("pr.draft", OpEq, false)
	unk := simple("pr.milestone", OpEq, "v2")

	and := func(cs ...Condition) Condition { return Condition{Operator: OpAnd, Children: cs} }
	or := func(cs ...Condition) Condition { return Condition{Operator: OpOr, Children: cs} }
	not := func(cs ...Condition) Condition { return Condition{Operator: OpNot, Children: cs} }

	cases := []struct {
		name string
		c    Condition
		want Value
	}{
		{"and all true", and(tru, tru), True},
		{"and short-circuits false over unknown", and(unk, fls), False},
		{"and unknown", and(tru, unk), Unknown},
		{"or any true beats unknown", or(unk, tru), True},
		{"or all false", or(fls, fls), False},
		{"or unknown", or(fls, unk), Unknown},
		{"not true", not(tru), False},
		{"not false", not(fls), True},
		{"not unknown", not(unk), Unknown},
		{"not wrong arity", not(tru, fls), Unknown},
		{"nested", and(or(fls, tru), not(fls)), True},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.c.Evaluate(facts))
		})
	}
}

func TestCompareJSONNumbers(t *testing.T) {
	require.Equal(t, True, Compare(OpGt, json.Number("41.5"), 40))
	require.Equal(t, True, Compare(OpEq, json.Number("40"), "40"))
}

func TestConditionJSONShape(t *testing.T) {
	doc := `{
		"operator": "AND",
		"conditions": [
			{"fact": "pr.additions", "operator": ">", "value": 10},
			{"fact": "pr.labels", "operator": "contains", "value": "hotfix"}
		]
	}`
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(doc), &c))
	require.True(t, c.IsComposite())
	require.Len(t, c.Children, 2)
	require.Equal(t, True, c.Evaluate(facts))
}

// genTree builds random small condition trees over three leaves with known
// values, so every generated tree evaluates without touching a resolver's
// unhappy paths.
func genTree(depth int) gopter.Gen {
	leaves := gopter.CombineGens(gen.IntRange(0, 2)).Map(func(vals []interface{}) Condition {
		switch vals[0].(int) {
		case 0:
			return Condition{Fact: "pr.draft", Operator: OpEq, Value: true} // True
		case 1:
			return Condition{Fact: "pr.draft", Operator: OpEq, Value: false} // False
		default:
			return Condition{Fact: "pr.milestone", Operator: OpEq, Value: "v2"} // Unknown
		}
	})
	if depth <= 0 {
		return leaves
	}
	child := genTree(depth - 1)
	composite := gopter.CombineGens(gen.IntRange(0, 2), child, child).Map(func(vals []interface{}) Condition {
		a := vals[1].(Condition)
		b := vals[2].(Condition)
		switch vals[0].(int) {
		case 0:
			return Condition{Operator: OpAnd, Children: []Condition{a, b}}
		case 1:
			return Condition{Operator: OpOr, Children: []Condition{a, b}}
		default:
			return Condition{Operator: OpNot, Children: []Condition{a}}
		}
	})
	return gen.Weighted([]gen.WeightedGen{
		{Weight: 1, Gen: leaves},
		{Weight: 2, Gen: composite},
	})
}

func TestNotInvolutionProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	not := func(c Condition) Condition { return Condition{Operator: OpNot, Children: []Condition{c}} }

	props.Property("double negation preserves the three-valued result", prop.ForAll(
		func(c Condition) bool {
			nn := not(not(c))
			return nn.Evaluate(facts) == c.Evaluate(facts)
		},
		genTree(3),
	))

	props.Property("negation maps unknown to unknown", prop.ForAll(
		func(c Condition) bool {
			inner := c.Evaluate(facts)
			n := not(c)
			outer := n.Evaluate(facts)
			if inner == Unknown {
				return outer == Unknown
			}
			return outer != inner && outer != Unknown
		},
		genTree(3),
	))

	props.TestingRun(t)
}
