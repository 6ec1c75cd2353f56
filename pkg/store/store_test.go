package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
)

func TestMemoryDriftLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c := &drift.Candidate{
		WorkspaceID: "ws1", ID: "d1", State: drift.StateIngested,
		Fingerprint: "fp-a", CreatedAt: time.Now(),
	}
	require.NoError(t, m.CreateDrift(ctx, c))
	require.Equal(t, fault.KindConflict, fault.KindOf(m.CreateDrift(ctx, c)))

	got, err := m.GetDrift(ctx, "ws1", "d1")
	require.NoError(t, err)
	require.Equal(t, drift.StateIngested, got.State)

	got.State = drift.StateDriftClassified
	require.NoError(t, m.UpdateDrift(ctx, got))
	require.False(t, got.UpdatedAt.IsZero())

	listed, err := m.ListDriftsByState(ctx, "ws1", drift.StateDriftClassified)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestMemoryGetDriftReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateDrift(ctx, &drift.Candidate{WorkspaceID: "ws1", ID: "d1"}))

	a, err := m.GetDrift(ctx, "ws1", "d1")
	require.NoError(t, err)
	a.State = drift.StateFailed

	b, err := m.GetDrift(ctx, "ws1", "d1")
	require.NoError(t, err)
	require.NotEqual(t, drift.StateFailed, b.State)
}

func TestMemoryMarkEventIdempotency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	seen, err := m.MarkEvent(ctx, "ws1", "delivery-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = m.MarkEvent(ctx, "ws1", "delivery-1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestMemoryFindByAnyFingerprint(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	b := &evidence.Bundle{
		ID: "b1", WorkspaceID: "ws1",
		Fingerprints: evidence.Fingerprints{Strict: "s1", Medium: "m1", Broad: "br1"},
	}
	require.NoError(t, m.PutBundle(ctx, b))

	for _, fp := range []string{"s1", "m1", "br1"} {
		found, err := m.FindByFingerprint(ctx, "ws1", fp)
		require.NoError(t, err)
		require.Len(t, found, 1, fp)
	}
	found, err := m.FindByFingerprint(ctx, "ws2", "s1")
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestMemoryAuditListAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory().WithClock(func() time.Time { return now })

	old := audit.Entry{WorkspaceID: "ws1", Type: audit.EntryStateTransition, Timestamp: now.AddDate(0, 0, -400)}
	fresh := audit.Entry{WorkspaceID: "ws1", Type: audit.EntryHumanAction, Timestamp: now}
	require.NoError(t, m.Append(ctx, old))
	require.NoError(t, m.Append(ctx, fresh))

	entries, err := m.List(ctx, "ws1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	removed, err := SweepExpired(ctx, m, &Workspace{ID: "ws1", RetentionDays: 365}, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	entries, err = m.List(ctx, "ws1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.EntryHumanAction, entries[0].Type)
}

func TestSweepDisabledWithoutRetention(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Append(ctx, audit.Entry{WorkspaceID: "ws1", Timestamp: time.Now().AddDate(-5, 0, 0)}))

	removed, err := SweepExpired(ctx, m, &Workspace{ID: "ws1"}, time.Now())
	require.NoError(t, err)
	require.Zero(t, removed)
}
