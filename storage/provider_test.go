package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/giftpoints/locks"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/storage"
	"github.com/kasuganosora/giftpoints/testutil"
	"github.com/kasuganosora/giftpoints/txn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProvider(t *testing.T, name string) *storage.GormProvider {
	t.Helper()
	db := testutil.SetupTestDB(t)
	exec := txn.NewExecutor(db, locks.NewRegistry(), zap.NewNop())
	p := storage.NewGormProvider(name, exec, t.TempDir(), zap.NewNop())
	require.True(t, p.Initialize())
	return p
}

func TestBalanceInvariant(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	var expected int64
	ops := []struct {
		add    bool
		amount int64
	}{
		{true, 100}, {false, 30}, {false, 80}, {true, 20}, {false, 90}, {false, 1},
	}
	for _, op := range ops {
		if op.add {
			require.True(t, p.AddPersonalPoints(ctx, 1, op.amount))
			expected += op.amount
		} else if p.SpendPersonalPoints(ctx, 1, op.amount) {
			expected -= op.amount
		}
		got := p.GetPersonalPoints(ctx, 1)
		assert.Equal(t, expected, got)
		assert.GreaterOrEqual(t, got, int64(0), "balance went negative")
	}
}

func TestSpendInsufficientIsFalse(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	assert.False(t, p.SpendPersonalPoints(ctx, 5, 10), "spend from empty balance")
	p.AddPersonalPoints(ctx, 5, 9)
	assert.False(t, p.SpendPersonalPoints(ctx, 5, 10))
	assert.Equal(t, int64(9), p.GetPersonalPoints(ctx, 5))
}

func TestSpendConcurrent(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()
	require.True(t, p.AddPersonalPoints(ctx, 2, 50))

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- p.SpendPersonalPoints(ctx, 2, 10)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 5, wins, "50 points cover exactly five 10-point spends")
	assert.Equal(t, int64(0), p.GetPersonalPoints(ctx, 2))
}

func TestBoostLazyExpiry(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()
	now := time.Now()

	two := decimal.NewFromInt(2)
	require.True(t, p.SetPersonalBoost(ctx, 3, two, now.Add(time.Hour)))
	assert.True(t, p.GetPersonalBoost(ctx, 3, now).Equal(two))

	// Past the expiry the boost reads as 1.0 but the row remains.
	assert.True(t, p.GetPersonalBoost(ctx, 3, now.Add(2*time.Hour)).Equal(decimal.NewFromInt(1)))
	var count int64
	p.Executor().DB().Model(&model.PersonalBoost{}).Count(&count)
	assert.Equal(t, int64(1), count, "expired boost must not be deleted")
}

func TestBoostRejectsSubUnitMultiplier(t *testing.T) {
	p := newProvider(t, "local")
	assert.False(t, p.SetPersonalBoost(context.Background(), 3,
		decimal.NewFromFloat(0.5), time.Now().Add(time.Hour)))
}

func TestFriendshipPointsAccumulate(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	require.True(t, p.AddFriendshipPoints(ctx, 1, 2, 30))
	require.True(t, p.AddFriendshipPoints(ctx, 1, 2, 20))
	assert.Equal(t, int64(50), p.GetFriendshipPoints(ctx, 1, 2))
	assert.Equal(t, int64(0), p.GetFriendshipPoints(ctx, 2, 1), "edges are directed")
}

func TestTopFriendshipPairsCanonical(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	p.AddFriendshipPoints(ctx, 1, 2, 30)
	p.AddFriendshipPoints(ctx, 2, 1, 20)
	p.AddFriendshipPoints(ctx, 3, 1, 5)

	pairs := p.GetTopFriendshipPairs(ctx, 10)
	require.Len(t, pairs, 2)
	assert.Equal(t, model.PairTotal{PlayerA: 1, PlayerB: 2, Total: 50}, pairs[0])
	assert.Equal(t, model.PairTotal{PlayerA: 1, PlayerB: 3, Total: 5}, pairs[1])

	assert.Equal(t, int64(50), p.GetPairTotal(ctx, 1, 2))
	assert.Equal(t, int64(50), p.GetPairTotal(ctx, 2, 1), "pair total is direction-agnostic")
}

func TestPlayerFriendsAndTotal(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	p.AddFriendshipPoints(ctx, 1, 2, 30)
	p.AddFriendshipPoints(ctx, 1, 3, 10)
	p.AddFriendshipPoints(ctx, 4, 1, 7)

	friends := p.GetPlayerFriendsWithPoints(ctx, 1)
	require.Len(t, friends, 2)
	assert.Equal(t, model.FriendPoints{FriendID: 2, Points: 30}, friends[0])
	assert.Equal(t, model.FriendPoints{FriendID: 3, Points: 10}, friends[1])

	assert.Equal(t, int64(47), p.GetTotalFriendshipPoints(ctx, 1))
}

func TestGiftHistoryPagination(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.True(t, p.SaveGiftHistory(ctx, &model.GiftHistory{
			SenderID:     1,
			ReceiverID:   2,
			GiftLabel:    "rose",
			PointsEarned: int64(i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	assert.Equal(t, int64(5), p.GetGiftHistoryCount(ctx))

	page := p.GetGiftHistory(ctx, 2, 0)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].PointsEarned, "newest first")
	assert.Equal(t, int64(3), page[1].PointsEarned)

	page = p.GetGiftHistory(ctx, 2, 4)
	require.Len(t, page, 1)
	assert.Equal(t, int64(0), page[0].PointsEarned)
}

func TestDailyCounterRollover(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()

	today := model.DateKey(time.Now())
	tomorrow := model.DateKey(time.Now().AddDate(0, 0, 1))

	require.True(t, p.IncrementDailyGiftCount(ctx, 1, today))
	require.True(t, p.IncrementDailyGiftCount(ctx, 1, today))
	require.True(t, p.IncrementDailyGiftCount(ctx, 1, tomorrow))

	assert.Equal(t, 2, p.GetDailyGiftCount(ctx, 1, today))
	assert.Equal(t, 1, p.GetDailyGiftCount(ctx, 1, tomorrow), "new date keys a fresh counter")
	assert.Equal(t, 0, p.GetDailyGiftCount(ctx, 2, today))
}

func TestManualBackup(t *testing.T) {
	p := newProvider(t, "local")
	ctx := context.Background()
	p.AddPersonalPoints(ctx, 1, 10)
	assert.True(t, p.CreateManualBackup(ctx))
}
