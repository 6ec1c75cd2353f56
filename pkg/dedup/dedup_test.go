package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideSuppressesSmallDelta(t *testing.T) {
	out := Decide(0.6, 2, 0.65)
	require.True(t, out.IsDuplicate)
	require.False(t, out.ShouldNotify)
	require.Zero(t, out.Boost)
}

func TestDecideRenotifiesOnLargeDelta(t *testing.T) {
	out := Decide(0.4, 1, 0.6)
	require.True(t, out.ShouldNotify)
	require.InDelta(t, 0.05, out.Boost, 1e-9)
}

func TestDecideBoostIsCapped(t *testing.T) {
	out := Decide(0.3, 10, 0.9)
	require.True(t, out.ShouldNotify)
	require.InDelta(t, BoostCap, out.Boost, 1e-9)
}

func TestDecideDeltaBoundaryInclusive(t *testing.T) {
	out := Decide(0.5, 1, 0.65)
	require.True(t, out.ShouldNotify)
}

func TestMemoryReserveFirstWins(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	id, inserted, err := idx.Reserve(ctx, "ws1", "fp-a", "drift-1")
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, "drift-1", id)

	id, inserted, err = idx.Reserve(ctx, "ws1", "fp-a", "drift-2")
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "drift-1", id)
}

func TestMemoryWorkspacesIsolated(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	_, inserted, err := idx.Reserve(ctx, "ws1", "fp-a", "drift-1")
	require.NoError(t, err)
	require.True(t, inserted)

	_, inserted, err = idx.Reserve(ctx, "ws2", "fp-a", "drift-2")
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestMemoryRemoveReopens(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	_, _, err := idx.Reserve(ctx, "ws1", "fp-a", "drift-1")
	require.NoError(t, err)
	require.NoError(t, idx.Remove(ctx, "ws1", "fp-a"))

	got, err := idx.Lookup(ctx, "ws1", "fp-a")
	require.NoError(t, err)
	require.Empty(t, got)

	id, inserted, err := idx.Reserve(ctx, "ws1", "fp-a", "drift-3")
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, "drift-3", id)
}

func TestMemoryReserveConcurrent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	wins := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		go func(n int) {
			_, inserted, err := idx.Reserve(ctx, "ws1", "fp-hot", "drift-x")
			require.NoError(t, err)
			wins <- inserted
		}(i)
	}
	inserted := 0
	for i := 0; i < 32; i++ {
		if <-wins {
			inserted++
		}
	}
	require.Equal(t, 1, inserted)
}
