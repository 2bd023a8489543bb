package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/giftpoints/config"
	"github.com/kasuganosora/giftpoints/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOrchestrator(t *testing.T, local, remote storage.Provider, direction string) *storage.Orchestrator {
	t.Helper()
	o, err := storage.NewOrchestrator(local, remote, config.SyncConfig{
		Direction: direction,
		PairLimit: 10000,
	}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, o.Initialize())
	t.Cleanup(o.Close)
	return o
}

func TestNoBackendRefused(t *testing.T) {
	_, err := storage.NewOrchestrator(nil, nil, config.SyncConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, storage.ErrNoBackend)
}

func TestReadPrimaryPrefersRemote(t *testing.T) {
	local := newProvider(t, "local")
	remote := newProvider(t, "remote")
	o := newOrchestrator(t, local, remote, storage.SyncBidirectional)

	assert.Equal(t, "remote", o.Primary())
}

func TestReadPrimaryFallsBackToLocal(t *testing.T) {
	local := newProvider(t, "local")
	o := newOrchestrator(t, local, nil, storage.SyncBidirectional)

	assert.Equal(t, "local", o.Primary())
	o.AddPersonalPoints(context.Background(), 1, 5)
	assert.Equal(t, int64(5), o.GetPersonalPoints(context.Background(), 1))
}

func TestDualWriteReachesBothBackends(t *testing.T) {
	local := newProvider(t, "local")
	remote := newProvider(t, "remote")
	o := newOrchestrator(t, local, remote, storage.SyncBidirectional)
	ctx := context.Background()

	require.True(t, o.AddFriendshipPoints(ctx, 1, 2, 40))
	require.True(t, o.AddPersonalPoints(ctx, 1, 10))

	// Primary (remote) is written synchronously.
	assert.Equal(t, int64(40), remote.GetFriendshipPoints(ctx, 1, 2))
	assert.Equal(t, int64(10), remote.GetPersonalPoints(ctx, 1))

	// Secondary write is best-effort async.
	assert.Eventually(t, func() bool {
		return local.GetFriendshipPoints(ctx, 1, 2) == 40 &&
			local.GetPersonalPoints(ctx, 1) == 10
	}, 2*time.Second, 10*time.Millisecond, "secondary backend never caught up")
}

func TestSyncPushesPositiveDifferenceOnly(t *testing.T) {
	local := newProvider(t, "local")
	remote := newProvider(t, "remote")
	o := newOrchestrator(t, local, remote, storage.SyncLocalToRemote)
	ctx := context.Background()

	// Local sees the pair at 120 (both directions), remote at 80.
	local.AddFriendshipPoints(ctx, 1, 2, 70)
	local.AddFriendshipPoints(ctx, 2, 1, 50)
	remote.AddFriendshipPoints(ctx, 1, 2, 80)

	report := o.SyncNow(ctx)
	assert.True(t, report.Ran)
	assert.Equal(t, 1, report.Applied)

	assert.Equal(t, int64(120), remote.GetPairTotal(ctx, 1, 2), "remote raised to the larger total")
	assert.Equal(t, int64(120), local.GetPairTotal(ctx, 1, 2), "local unchanged")
}

func TestSyncNeverDecreases(t *testing.T) {
	local := newProvider(t, "local")
	remote := newProvider(t, "remote")
	o := newOrchestrator(t, local, remote, storage.SyncBidirectional)
	ctx := context.Background()

	local.AddFriendshipPoints(ctx, 1, 2, 100)
	remote.AddFriendshipPoints(ctx, 1, 2, 150)
	local.AddFriendshipPoints(ctx, 3, 4, 10)

	for i := 0; i < 3; i++ {
		o.SyncNow(ctx)
		assert.Equal(t, int64(150), local.GetPairTotal(ctx, 1, 2))
		assert.Equal(t, int64(150), remote.GetPairTotal(ctx, 1, 2))
		assert.Equal(t, int64(10), local.GetPairTotal(ctx, 3, 4))
		assert.Equal(t, int64(10), remote.GetPairTotal(ctx, 3, 4))
	}
}

func TestSyncSkippedWithSingleBackend(t *testing.T) {
	local := newProvider(t, "local")
	o := newOrchestrator(t, local, nil, storage.SyncBidirectional)

	report := o.SyncNow(context.Background())
	assert.False(t, report.Ran)
}

func TestSpendOnPrimaryOnly(t *testing.T) {
	local := newProvider(t, "local")
	remote := newProvider(t, "remote")
	o := newOrchestrator(t, local, remote, storage.SyncBidirectional)
	ctx := context.Background()

	require.True(t, o.AddPersonalPoints(ctx, 9, 30))
	assert.Eventually(t, func() bool {
		return local.GetPersonalPoints(ctx, 9) == 30
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, o.SpendPersonalPoints(ctx, 9, 20))
	assert.False(t, o.SpendPersonalPoints(ctx, 9, 20), "insufficient after first spend")
	assert.Equal(t, int64(10), o.GetPersonalPoints(ctx, 9))

	assert.Eventually(t, func() bool {
		return local.GetPersonalPoints(ctx, 9) == 10
	}, 2*time.Second, 10*time.Millisecond, "spend not replayed on secondary")
}
