package drift

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const processDoc = `# Release process

1. Cut a release branch
2. Request approval from the release manager
3. If the smoke tests fail, then rollback the release
`

func TestBaselineFullStructure(t *testing.T) {
	res := CheckProcessBaseline(processDoc, "Reorder release steps", []string{"docs/release.md"})
	require.True(t, res.HasStepList)
	require.True(t, res.HasGates)
	require.True(t, res.HasDecisionLogic)
	require.Equal(t, MismatchOrderChange, res.MismatchType)
	require.InDelta(t, 0.95, res.Confidence, 1e-9)
	require.Equal(t, ActionGeneratePatch, res.Action)
}

func TestBaselineNoStructureGoesToReviewQueue(t *testing.T) {
	res := CheckProcessBaseline("plain prose with no structure at all", "", nil)
	require.False(t, res.HasStepList)
	require.Equal(t, MismatchUnknown, res.MismatchType)
	require.InDelta(t, 0.3, res.Confidence, 1e-9)
	require.Equal(t, ActionReviewQueue, res.Action)
}

func TestBaselineAnnotateOnlyMidband(t *testing.T) {
	doc := "Request approval before merging.\nIf unsure, then ask the lead.\n"
	res := CheckProcessBaseline(doc, "tweak wording", nil)
	require.False(t, res.HasStepList)
	require.True(t, res.HasGates)
	// 0.3 + 0.2 gates + 0.15 decision + 0.1 title = 0.75 but no step list.
	require.Equal(t, ActionAnnotateOnly, res.Action)
}

func TestBaselineMismatchInference(t *testing.T) {
	cases := []struct {
		title string
		want  ProcessMismatchType
	}{
		{"Require approval for prod deploys", MismatchNewGate},
		{"Remove approval requirement", MismatchRemovedGate},
		{"Change rollout decision criteria", MismatchDecisionChange},
		{"Misc cleanup", MismatchUnknown},
	}
	for _, tc := range cases {
		res := CheckProcessBaseline("", tc.title, nil)
		require.Equal(t, tc.want, res.MismatchType, tc.title)
	}
}

func TestClassifyPartitions(t *testing.T) {
	require.Equal(t, ClassRetryable, Classify(CodeTimeout))
	require.Equal(t, ClassConfiguration, Classify(CodeNeedsDocMapping))
	require.Equal(t, ClassSafety, Classify(CodeSecretsDetected))
	require.Equal(t, ClassConcurrency, Classify(CodeRevisionMismatch))
	require.Equal(t, ClassUnknown, Classify("NOPE"))
}

func TestStatePredicates(t *testing.T) {
	require.True(t, StateCompleted.IsTerminal())
	require.True(t, StateRejected.IsTerminal())
	require.False(t, StateAwaitingHuman.IsTerminal())
	require.True(t, StateAwaitingHuman.IsHumanGated())
	require.True(t, StateSnoozed.IsHumanGated())
	require.False(t, StatePatchGenerated.IsHumanGated())
}

func TestMergeSignalDedupes(t *testing.T) {
	c := &Candidate{Correlated: []string{"a"}}
	c.MergeSignal("a")
	c.MergeSignal("b")
	c.MergeSignal("")
	require.Equal(t, []string{"a", "b"}, c.Correlated)
}
