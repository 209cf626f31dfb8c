package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTrackerAt(start time.Time) (*MemoryTracker, *time.Time) {
	clock := start
	tr := NewMemoryTracker(45 * time.Second)
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestHeartbeatCountsDistinctClients(t *testing.T) {
	tr, _ := newTrackerAt(time.Now())
	ctx := context.Background()

	n, err := tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = tr.Heartbeat(ctx, 1, "b")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// A repeated heartbeat refreshes, it does not double-count.
	n, err = tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	start := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tr, clock := newTrackerAt(start)
	ctx := context.Background()

	_, err := tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)

	*clock = start.Add(30 * time.Second)
	_, err = tr.Heartbeat(ctx, 1, "b")
	require.NoError(t, err)

	// 50s after a's last heartbeat: only b survives.
	*clock = start.Add(50 * time.Second)
	n, err := tr.Count(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	*clock = start.Add(2 * time.Minute)
	n, err = tr.Count(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLeaveRemovesImmediately(t *testing.T) {
	tr, _ := newTrackerAt(time.Now())
	ctx := context.Background()

	_, err := tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)
	_, err = tr.Heartbeat(ctx, 1, "b")
	require.NoError(t, err)

	n, err := tr.Leave(ctx, 1, "a")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Leaving twice is harmless.
	n, err = tr.Leave(ctx, 1, "a")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClearDropsEvent(t *testing.T) {
	tr, _ := newTrackerAt(time.Now())
	ctx := context.Background()

	_, err := tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)
	_, err = tr.Heartbeat(ctx, 2, "b")
	require.NoError(t, err)

	require.NoError(t, tr.Clear(ctx, 1))

	n, err := tr.Count(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = tr.Count(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSnapshotOmitsEmptyEvents(t *testing.T) {
	start := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	tr, clock := newTrackerAt(start)
	ctx := context.Background()

	_, err := tr.Heartbeat(ctx, 1, "a")
	require.NoError(t, err)
	_, err = tr.Heartbeat(ctx, 2, "b")
	require.NoError(t, err)

	*clock = start.Add(30 * time.Second)
	_, err = tr.Heartbeat(ctx, 2, "b")
	require.NoError(t, err)

	*clock = start.Add(time.Minute)
	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, map[uint]int{2: 1}, snap)
}
