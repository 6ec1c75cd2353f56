package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "driftgate", cfg.ServiceName)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.True(t, cfg.Enabled)
	require.False(t, cfg.Insecure)
}

func TestDisabledProviderIsNoop(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// Recording on a disabled provider must not panic.
	p.RecordRequest(ctx, AttrWorkspaceID.String("ws1"))
	p.RecordError(ctx, errors.New("boom"))
	p.RecordDuration(ctx, 5*time.Millisecond)

	opCtx, done := p.TrackOperation(ctx, "advance", DriftStep("ws1", "drift-1", "process", "PATCH_PLANNED")...)
	require.NotNil(t, opCtx)
	done(nil)
	done2Ctx, done2 := p.TrackOperation(ctx, "writeback")
	require.NotNil(t, done2Ctx)
	done2(errors.New("revision mismatch"))

	require.NoError(t, p.Shutdown(ctx))
}

func TestTrackOperationFeedsSLOTracker(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	_, done := p.TrackOperation(ctx, "advance")
	done(nil)
	_, done = p.TrackOperation(ctx, "advance")
	done(errors.New("lock held"))

	st, err := p.SLO().Status("advance")
	require.NoError(t, err)
	require.Equal(t, 2, st.ObservationCount)
	require.Equal(t, 0.5, st.CurrentSuccess)
}

func TestAttributeBuilders(t *testing.T) {
	attrs := DriftStep("ws1", "drift-1", "ownership", "AWAITING_HUMAN")
	require.Len(t, attrs, 4)
	require.Equal(t, AttrDriftState, attrs[3].Key)
	require.Equal(t, "AWAITING_HUMAN", attrs[3].Value.AsString())

	ev := Evaluation("ws1", "fail", 3, 812.5)
	require.Len(t, ev, 4)
	require.Equal(t, "fail", ev[1].Value.AsString())
	require.EqualValues(t, 3, ev[2].Value.AsInt64())

	wb := Writeback("ws1", "confluence", "doc-9", "prop-2")
	require.Equal(t, "confluence", wb[1].Value.AsString())
}
