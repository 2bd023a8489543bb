package storage

import (
	"context"
	"time"

	"github.com/kasuganosora/giftpoints/model"
	"github.com/shopspring/decimal"
)

// Provider is the capability contract a storage backend must satisfy.
// Read operations are side-effect-free. Provider methods never surface
// storage errors: an I/O or query failure is logged inside the provider
// and the call returns a safe default (0, empty slice, or false), so a
// zero result is ambiguous with "no record" — callers that need to tell
// a dead backend from an empty one check IsConnected.
type Provider interface {
	// Initialize creates the schema idempotently and verifies
	// connectivity.
	Initialize() bool
	Close()
	IsConnected() bool
	Name() string

	// Friendship edges. Points are cumulative; SetFriendshipPoints is
	// the administrative escape hatch and the only way points decrease.
	AddFriendshipPoints(ctx context.Context, senderID, receiverID, delta int64) bool
	SetFriendshipPoints(ctx context.Context, senderID, receiverID, points int64) bool
	GetFriendshipPoints(ctx context.Context, senderID, receiverID int64) int64
	GetPlayerFriendsWithPoints(ctx context.Context, playerID int64) []model.FriendPoints
	GetTotalFriendshipPoints(ctx context.Context, playerID int64) int64
	GetPairTotal(ctx context.Context, a, b int64) int64
	GetTopFriendshipPairs(ctx context.Context, limit int) []model.PairTotal

	// Personal balances. SpendPersonalPoints is the single conditional
	// mutation: check and decrement happen in one statement.
	AddPersonalPoints(ctx context.Context, playerID, amount int64) bool
	GetPersonalPoints(ctx context.Context, playerID int64) int64
	SpendPersonalPoints(ctx context.Context, playerID, amount int64) bool
	SetPersonalPoints(ctx context.Context, playerID, amount int64) bool

	// Boosts. Expired boosts read as multiplier 1.0 and stay in place.
	SetPersonalBoost(ctx context.Context, playerID int64, multiplier decimal.Decimal, expiresAt time.Time) bool
	GetPersonalBoost(ctx context.Context, playerID int64, now time.Time) decimal.Decimal

	// Gift history, append-only, newest first.
	SaveGiftHistory(ctx context.Context, entry *model.GiftHistory) bool
	GetGiftHistory(ctx context.Context, limit, offset int) []model.GiftHistory
	GetGiftHistoryCount(ctx context.Context) int64

	// Daily counters; date keys roll the counter over implicitly.
	GetDailyGiftCount(ctx context.Context, playerID int64, date string) int
	IncrementDailyGiftCount(ctx context.Context, playerID int64, date string) bool

	CreateManualBackup(ctx context.Context) bool
}
