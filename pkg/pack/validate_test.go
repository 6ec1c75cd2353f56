package pack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/condition"
	"github.com/vertaai/driftgate/pkg/contracts"
)

func knownComparators(id string) bool {
	switch id {
	case "artifact/artifactUpdated", "governance/minApprovals":
		return true
	}
	return false
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(knownComparators)
	require.NoError(t, err)
	return v
}

func issuePaths(r *ValidationResult) []string {
	var out []string
	for _, is := range r.Issues {
		out = append(out, is.Path)
	}
	return out
}

func TestValidPack(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate(basePack(), nil)
	require.True(t, res.Valid(), "%v", res.Issues)
}

func TestStructuralMissingMetadata(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Metadata.Name = ""

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
}

func TestSemanticBadVersion(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Metadata.Version = "not-semver"

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, issuePaths(res), "$.metadata.version")
}

func TestPriorityRange(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Priority = 101

	res := v.Validate(p, nil)
	require.Contains(t, issuePaths(res), "$.priority")
}

func TestDuplicateRuleIDs(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Rules[1].ID = p.Rules[0].ID

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, issuePaths(res), "$.rules[1].id")
}

func TestUnknownComparator(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Rules[0].Obligations[0].Comparator.ID = "no/suchComparator"

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, res.Issues[0].Message, "no/suchComparator")
}

func TestObligationNeedsExactlyOneCheck(t *testing.T) {
	v := newTestValidator(t)

	both := basePack()
	both.Rules[0].Obligations[0].Condition = &condition.Condition{
		Fact: "pr.additions", Operator: condition.OpGt, Value: 10,
	}
	res := v.Validate(both, nil)
	require.False(t, res.Valid())
	require.Contains(t, res.Issues[0].Message, "both")

	neither := basePack()
	neither.Rules[0].Obligations[0].Comparator = nil
	res = v.Validate(neither, nil)
	require.False(t, res.Valid())
	require.Contains(t, res.Issues[0].Message, "neither")
}

func TestInvalidWhenExpression(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Rules[0].When = "pr.additions >"

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, issuePaths(res), "$.rules[0].when")
}

func TestInvalidTriggerGlob(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Rules[0].Trigger.Paths = []string{"src/[invalid"}

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
}

func TestConditionValidation(t *testing.T) {
	v := newTestValidator(t)

	p := basePack()
	p.Rules[0].Obligations[0] = Obligation{
		Condition: &condition.Condition{
			Operator: condition.OpNot,
			Children: []condition.Condition{
				{Fact: "pr.draft", Operator: condition.OpEq, Value: true},
				{Fact: "pr.title", Operator: condition.OpMatches, Value: "^WIP"},
			},
		},
		DecisionOnFail: contracts.DecisionBlock,
	}
	res := v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, res.Issues[0].Message, "NOT takes exactly one child")

	p.Rules[0].Obligations[0].Condition = &condition.Condition{
		Fact: "pr.title", Operator: condition.OpMatches, Value: "[unclosed",
	}
	res = v.Validate(p, nil)
	require.False(t, res.Valid())
	require.Contains(t, res.Issues[0].Message, "invalid regex")
}

func TestUnknownDecision(t *testing.T) {
	v := newTestValidator(t)
	p := basePack()
	p.Rules[0].Obligations[0].DecisionOnFail = "explode"

	res := v.Validate(p, nil)
	require.False(t, res.Valid())
}

func TestParseYAMLRoundTrip(t *testing.T) {
	doc := `
workspaceId: ws1
metadata:
  id: baseline
  name: Baseline
  version: 1.0.0
  status: ACTIVE
  packMode: enforce
scope:
  type: workspace
priority: 50
mergeStrategy: MOST_RESTRICTIVE
rules:
  - id: docs-updated
    name: Docs updated
    trigger:
      paths: ["src/**"]
    obligations:
      - comparator:
          comparatorId: artifact/artifactUpdated
          params:
            locator: docs/**
        decisionOnFail: block
`
	p, raw, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, "baseline", p.Metadata.ID)
	require.Len(t, p.Rules, 1)

	v := newTestValidator(t)
	res := v.Validate(p, raw)
	require.True(t, res.Valid(), "%v", res.Issues)
}

func TestParseJSONRejectsGarbage(t *testing.T) {
	_, err := ParseJSON([]byte("{"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "parse pack json"))
}
