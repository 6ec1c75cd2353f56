package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/fault"
)

func TestDefaults(t *testing.T) {
	b := New(Limits{})
	require.Equal(t, DefaultMaxTotalMs, b.Limits().MaxTotalMs)
	require.Equal(t, DefaultPerComparatorTimeoutMs, b.Limits().PerComparatorTimeoutMs)
	require.Equal(t, DefaultMaxAPICalls, b.Limits().MaxAPICalls)
}

func TestReserveCallCap(t *testing.T) {
	b := New(Limits{MaxAPICalls: 2})
	require.NoError(t, b.ReserveCall())
	require.NoError(t, b.ReserveCall())

	err := b.ReserveCall()
	require.Error(t, err)
	require.Equal(t, fault.KindBudgetExceeded, fault.KindOf(err))

	// A rejected reservation must not consume budget.
	require.Equal(t, 2, b.CallsUsed())
	require.Equal(t, 0, b.Remaining())
}

func TestReserveCallWallClock(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := New(Limits{MaxTotalMs: 100}).WithClock(func() time.Time { return now })
	require.NoError(t, b.ReserveCall())

	now = now.Add(150 * time.Millisecond)
	err := b.ReserveCall()
	require.Equal(t, fault.KindBudgetExceeded, fault.KindOf(err))
	require.Equal(t, 150*time.Millisecond, b.Elapsed())
}

func TestScopeDeadline(t *testing.T) {
	b := New(Limits{MaxTotalMs: 50})
	ctx, cancel := b.Scope(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 30*time.Millisecond)
}

func TestComparatorScopeExpires(t *testing.T) {
	b := New(Limits{PerComparatorTimeoutMs: 10})
	ctx, cancel := b.ComparatorScope(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("comparator scope never expired")
	}
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
