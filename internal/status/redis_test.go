package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-hubmon/internal/status"
	"github.com/technosupport/ts-hubmon/internal/stream"
)

func newStore(t *testing.T) *status.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return status.NewStore(rdb)
}

func TestStatusRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	change := stream.StatusChange{
		State:  stream.StateBackingOff,
		Reason: "idle",
		At:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	store.StreamStatus(ctx, change)

	got, err := store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, change.State, got.State)
	require.Equal(t, change.Reason, got.Reason)
	require.True(t, change.At.Equal(got.At))
}

func TestCurrentDefaultsToDisconnected(t *testing.T) {
	store := newStore(t)

	got, err := store.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, stream.StateDisconnected, got.State)
}

func TestLatestWriteWins(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	store.StreamStatus(ctx, stream.StatusChange{State: stream.StateConnecting, At: time.Now()})
	store.StreamStatus(ctx, stream.StatusChange{State: stream.StateStreaming, At: time.Now()})

	got, err := store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, stream.StateStreaming, got.State)
}
