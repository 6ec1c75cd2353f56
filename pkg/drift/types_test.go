package drift

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed, StateFailedNeedsMapping, StateRejected} {
		require.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateIngested, StateAwaitingHuman, StateSnoozed, StateWrittenBack, StateApproved} {
		require.False(t, s.IsTerminal(), s)
	}
}

func TestHumanGatedStates(t *testing.T) {
	require.True(t, StateAwaitingHuman.IsHumanGated())
	require.True(t, StateSnoozed.IsHumanGated())
	require.False(t, StateApproved.IsHumanGated())
	require.False(t, StateIngested.IsHumanGated())
}

func TestClassify(t *testing.T) {
	cases := map[FailureCode]FailureClass{
		CodeTimeout:               ClassRetryable,
		CodeRateLimited:           ClassRetryable,
		CodeServiceUnavailable:    ClassRetryable,
		CodeNeedsDocMapping:       ClassConfiguration,
		CodeNoManagedRegion:       ClassConfiguration,
		CodeMultiplePrimaryDocs:   ClassConfiguration,
		CodePatchValidationFailed: ClassSafety,
		CodeSecretsDetected:       ClassSafety,
		CodeUnsafePatch:           ClassSafety,
		CodeRevisionMismatch:      ClassConcurrency,
		CodeDocConflict:           ClassConcurrency,
		FailureCode("SOMETHING"):  ClassUnknown,
	}
	for code, want := range cases {
		require.Equal(t, want, Classify(code), code)
	}
}

func TestMergeSignal(t *testing.T) {
	c := &Candidate{}
	c.MergeSignal("s1")
	c.MergeSignal("s1")
	c.MergeSignal("")
	c.MergeSignal("s2")

	require.Equal(t, []string{"s1", "s2"}, c.Correlated)
	require.True(t, c.HasCorrelated("s1"))
	require.False(t, c.HasCorrelated("s3"))
}

func TestClampConfidence(t *testing.T) {
	require.Equal(t, 0.0, ClampConfidence(-0.2))
	require.Equal(t, 1.0, ClampConfidence(1.7))
	require.Equal(t, 0.45, ClampConfidence(0.45))
}
