package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecisionOrdering(t *testing.T) {
	require.Equal(t, DecisionWarn, DecisionPass.Worst(DecisionWarn))
	require.Equal(t, DecisionBlock, DecisionWarn.Worst(DecisionBlock))
	require.Equal(t, DecisionBlock, DecisionBlock.Worst(DecisionPass))
	require.Equal(t, DecisionPass, DecisionPass.Worst(DecisionPass))
}

func TestWorstOf(t *testing.T) {
	require.Equal(t, DecisionPass, WorstOf(nil))
	require.Equal(t, DecisionWarn, WorstOf([]Decision{DecisionPass, DecisionWarn, DecisionPass}))
	require.Equal(t, DecisionBlock, WorstOf([]Decision{DecisionWarn, DecisionBlock, DecisionPass}))
}

func TestDecisionValid(t *testing.T) {
	require.True(t, DecisionPass.Valid())
	require.True(t, DecisionWarn.Valid())
	require.True(t, DecisionBlock.Valid())
	require.False(t, Decision("fail").Valid())
	require.False(t, Decision("").Valid())

	// Unrecognized values rank lowest so a bad value can never block.
	require.Equal(t, 0, Decision("bogus").Rank())
}
