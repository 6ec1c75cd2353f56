package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sloTracker(now time.Time) *SLOTracker {
	return NewSLOTracker().WithClock(func() time.Time { return now })
}

func TestSLOStatusEmptyWindowIsCompliant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := sloTracker(now)
	tr.SetTarget(&SLOTarget{SLOID: "slo-advance", Operation: "advance", LatencyP99: time.Second, SuccessRate: 0.99, WindowHours: 24})

	st, err := tr.Status("advance")
	require.NoError(t, err)
	require.True(t, st.InCompliance)
	require.Equal(t, 100.0, st.ErrorBudgetLeft)
	require.Zero(t, st.ObservationCount)
}

func TestSLOStatusUnknownOperation(t *testing.T) {
	tr := NewSLOTracker()
	_, err := tr.Status("compile")
	require.Error(t, err)
}

func TestSLOBurnRateAndCompliance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := sloTracker(now)
	tr.SetTarget(&SLOTarget{SLOID: "slo-writeback", Operation: "writeback", LatencyP99: time.Second, SuccessRate: 0.9, WindowHours: 24})

	// 8 successes, 2 failures: 80% success against a 90% target burns 2x.
	for i := 0; i < 10; i++ {
		tr.Record(SLOObservation{
			Operation: "writeback",
			Latency:   100 * time.Millisecond,
			Success:   i < 8,
			Timestamp: now.Add(-time.Hour),
		})
	}

	st, err := tr.Status("writeback")
	require.NoError(t, err)
	require.False(t, st.InCompliance)
	require.InDelta(t, 2.0, st.BurnRate, 1e-9)
	require.Equal(t, 0.0, st.ErrorBudgetLeft)
	require.Equal(t, 10, st.ObservationCount)
}

func TestSLOWindowExcludesOldObservations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := sloTracker(now)
	tr.SetTarget(&SLOTarget{SLOID: "slo-ingest", Operation: "ingest", LatencyP99: time.Second, SuccessRate: 0.5, WindowHours: 1})

	tr.Record(SLOObservation{Operation: "ingest", Success: false, Timestamp: now.Add(-2 * time.Hour)})
	tr.Record(SLOObservation{Operation: "ingest", Success: true, Latency: 10 * time.Millisecond, Timestamp: now.Add(-time.Minute)})

	st, err := tr.Status("ingest")
	require.NoError(t, err)
	require.Equal(t, 1, st.ObservationCount)
	require.True(t, st.InCompliance)
}

func TestSLOLatencyBreachFailsCompliance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := sloTracker(now)
	tr.SetTarget(&SLOTarget{SLOID: "slo-evaluate", Operation: "evaluate", LatencyP99: 100 * time.Millisecond, SuccessRate: 0.5, WindowHours: 24})

	tr.Record(SLOObservation{Operation: "evaluate", Success: true, Latency: 5 * time.Second, Timestamp: now.Add(-time.Minute)})

	st, err := tr.Status("evaluate")
	require.NoError(t, err)
	require.False(t, st.InCompliance)
	require.Equal(t, 5000.0, st.CurrentP99)
}

func TestRecordPrunesAgedObservations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := sloTracker(now)
	tr.SetTarget(&SLOTarget{SLOID: "slo-advance", Operation: "advance", LatencyP99: time.Second, SuccessRate: 0.9, WindowHours: 1})

	tr.Record(SLOObservation{Operation: "advance", Success: false, Timestamp: now.Add(-2 * time.Hour)})
	tr.Record(SLOObservation{Operation: "advance", Success: true, Timestamp: now.Add(-time.Minute)})

	tr.mu.Lock()
	kept := len(tr.observations["advance"])
	tr.mu.Unlock()
	require.Equal(t, 1, kept)
}

func TestStatusesAndBreaches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewSLOTracker(DefaultTargets()...).WithClock(func() time.Time { return now })

	require.Len(t, tr.Statuses(), len(DefaultTargets()))
	require.Empty(t, tr.Breaches())

	for i := 0; i < 10; i++ {
		tr.Record(SLOObservation{Operation: "advance", Success: false, Latency: time.Millisecond, Timestamp: now.Add(-time.Minute)})
	}
	breaches := tr.Breaches()
	require.Len(t, breaches, 1)
	require.Equal(t, "advance", breaches[0].Operation)
}

func TestDefaultTargetsCoverPipelineOperations(t *testing.T) {
	ops := map[string]bool{}
	for _, tgt := range DefaultTargets() {
		ops[tgt.Operation] = true
		require.NotEmpty(t, tgt.SLOID)
		require.Greater(t, tgt.SuccessRate, 0.9)
	}
	for _, op := range []string{"ingest", "advance", "evaluate", "writeback", "notify"} {
		require.True(t, ops[op], op)
	}
}
