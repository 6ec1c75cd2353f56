package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := New(0)
	now := time.Now()
	require.NoError(t, q.Enqueue(Job{Kind: "drift_step", Key: "b", RunAt: now.Add(-time.Second)}))
	require.NoError(t, q.Enqueue(Job{Kind: "drift_step", Key: "a", RunAt: now.Add(-2 * time.Second)}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.Key)
	require.NotEmpty(t, first.ID, "enqueue assigns missing ids")

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.Key)
	require.Equal(t, 0, q.Len())
}

func TestDequeueWaitsForRunAt(t *testing.T) {
	q := New(0)
	require.NoError(t, q.Enqueue(Job{Key: "later", RunAt: time.Now().Add(80 * time.Millisecond)}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := time.Now()
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "later", job.Key)
	require.GreaterOrEqual(t, time.Since(started), 70*time.Millisecond)
}

func TestHighWaterBackpressure(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(Job{Key: "1"}))
	require.NoError(t, q.Enqueue(Job{Key: "2"}))
	require.ErrorIs(t, q.Enqueue(Job{Key: "3"}), ErrBusy)
	require.Equal(t, 2, q.Len())
}

func TestDequeueCancelledContext(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestCloseWakesWaitersAndRefusesWork(t *testing.T) {
	q := New(0)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("close did not wake the waiter")
	}
	require.Error(t, q.Enqueue(Job{Key: "after-close"}))
}
