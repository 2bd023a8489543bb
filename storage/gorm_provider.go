package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errInsufficient aborts a spend transaction when the balance check
// fails; it never leaves the provider.
var errInsufficient = errors.New("storage: insufficient balance")

// pingCacheWindow bounds how often IsConnected re-pings the backend.
const pingCacheWindow = 5 * time.Second

// GormProvider implements Provider over a gorm database. The same
// implementation serves the local (sqlite) and remote (mysql) backends;
// only the driver differs.
type GormProvider struct {
	name      string
	exec      *txn.Executor
	logger    *zap.Logger
	backupDir string

	mu        sync.Mutex
	connected bool
	lastPing  time.Time
}

// NewGormProvider wraps a transaction executor as a storage provider.
// name identifies the backend in logs ("local", "remote").
func NewGormProvider(name string, exec *txn.Executor, backupDir string, logger *zap.Logger) *GormProvider {
	return &GormProvider{
		name:      name,
		exec:      exec,
		logger:    logger.With(zap.String("backend", name)),
		backupDir: backupDir,
	}
}

// Executor exposes the provider's transaction executor for components
// layered on the same backend (mailbox store, audit).
func (p *GormProvider) Executor() *txn.Executor {
	return p.exec
}

func (p *GormProvider) Name() string { return p.name }

// Initialize migrates the schema and pings the backend. Returns false
// if either fails; the provider then reports disconnected.
func (p *GormProvider) Initialize() bool {
	if err := model.AutoMigrate(p.exec.DB()); err != nil {
		p.logger.Error("schema migration failed", zap.Error(err))
		return false
	}
	ok := p.ping()
	p.mu.Lock()
	p.connected = ok
	p.lastPing = time.Now()
	p.mu.Unlock()
	return ok
}

// Close releases the underlying connection pool.
func (p *GormProvider) Close() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	if sqlDB, err := p.exec.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// IsConnected reports backend reachability. The ping result is cached
// for a few seconds so read-primary selection stays cheap.
func (p *GormProvider) IsConnected() bool {
	p.mu.Lock()
	if time.Since(p.lastPing) < pingCacheWindow {
		ok := p.connected
		p.mu.Unlock()
		return ok
	}
	p.mu.Unlock()

	ok := p.ping()
	p.mu.Lock()
	p.connected = ok
	p.lastPing = time.Now()
	p.mu.Unlock()
	return ok
}

func (p *GormProvider) ping() bool {
	sqlDB, err := p.exec.DB().DB()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx) == nil
}

// fail logs a swallowed provider error. Every degraded-to-default
// return path goes through here so operators can tell error zeros from
// real zeros in the logs.
func (p *GormProvider) fail(op string, err error) {
	p.logger.Warn("storage operation degraded to default",
		zap.String("op", op),
		zap.Error(err))
}

// ---- Friendship edges ----

func (p *GormProvider) AddFriendshipPoints(ctx context.Context, senderID, receiverID, delta int64) bool {
	if delta <= 0 {
		return false
	}
	name := fmt.Sprintf("friendship:%d:%d", senderID, receiverID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		var edge model.FriendshipPoints
		err := tx.Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).First(&edge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.FriendshipPoints{
				SenderID:   senderID,
				ReceiverID: receiverID,
				Points:     delta,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&edge).Updates(map[string]interface{}{
			"points":           gorm.Expr("points + ?", delta),
			"last_interaction": time.Now(),
		}).Error
	})
	if err != nil {
		p.fail("AddFriendshipPoints", err)
		return false
	}
	return true
}

func (p *GormProvider) SetFriendshipPoints(ctx context.Context, senderID, receiverID, points int64) bool {
	if points < 0 {
		return false
	}
	name := fmt.Sprintf("friendship:%d:%d", senderID, receiverID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		var edge model.FriendshipPoints
		err := tx.Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).First(&edge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.FriendshipPoints{
				SenderID:   senderID,
				ReceiverID: receiverID,
				Points:     points,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&edge).Update("points", points).Error
	})
	if err != nil {
		p.fail("SetFriendshipPoints", err)
		return false
	}
	return true
}

func (p *GormProvider) GetFriendshipPoints(ctx context.Context, senderID, receiverID int64) int64 {
	var edge model.FriendshipPoints
	err := p.exec.DB().WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).
		First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		p.fail("GetFriendshipPoints", err)
		return 0
	}
	return edge.Points
}

func (p *GormProvider) GetPlayerFriendsWithPoints(ctx context.Context, playerID int64) []model.FriendPoints {
	var rows []model.FriendPoints
	err := p.exec.DB().WithContext(ctx).
		Model(&model.FriendshipPoints{}).
		Select("receiver_id AS friend_id, points").
		Where("sender_id = ?", playerID).
		Order("points DESC").
		Scan(&rows).Error
	if err != nil {
		p.fail("GetPlayerFriendsWithPoints", err)
		return nil
	}
	return rows
}

func (p *GormProvider) GetTotalFriendshipPoints(ctx context.Context, playerID int64) int64 {
	var total int64
	err := p.exec.DB().WithContext(ctx).
		Model(&model.FriendshipPoints{}).
		Select("COALESCE(SUM(points), 0)").
		Where("sender_id = ? OR receiver_id = ?", playerID, playerID).
		Scan(&total).Error
	if err != nil {
		p.fail("GetTotalFriendshipPoints", err)
		return 0
	}
	return total
}

func (p *GormProvider) GetPairTotal(ctx context.Context, a, b int64) int64 {
	var total int64
	err := p.exec.DB().WithContext(ctx).
		Model(&model.FriendshipPoints{}).
		Select("COALESCE(SUM(points), 0)").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Scan(&total).Error
	if err != nil {
		p.fail("GetPairTotal", err)
		return 0
	}
	return total
}

func (p *GormProvider) GetTopFriendshipPairs(ctx context.Context, limit int) []model.PairTotal {
	var rows []model.PairTotal
	err := p.exec.DB().WithContext(ctx).Raw(`
		SELECT
			CASE WHEN sender_id < receiver_id THEN sender_id ELSE receiver_id END AS player_a,
			CASE WHEN sender_id < receiver_id THEN receiver_id ELSE sender_id END AS player_b,
			SUM(points) AS total
		FROM friendship_points
		GROUP BY player_a, player_b
		ORDER BY total DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		p.fail("GetTopFriendshipPairs", err)
		return nil
	}
	return rows
}

// ---- Personal balances ----

func (p *GormProvider) AddPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	if amount <= 0 {
		return false
	}
	name := fmt.Sprintf("balance:%d", playerID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		res := tx.Model(&model.PersonalBalance{}).
			Where("player_id = ?", playerID).
			UpdateColumn("points", gorm.Expr("points + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Create(&model.PersonalBalance{PlayerID: playerID, Points: amount}).Error
		}
		return nil
	})
	if err != nil {
		p.fail("AddPersonalPoints", err)
		return false
	}
	return true
}

func (p *GormProvider) GetPersonalPoints(ctx context.Context, playerID int64) int64 {
	var b model.PersonalBalance
	err := p.exec.DB().WithContext(ctx).Where("player_id = ?", playerID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		p.fail("GetPersonalPoints", err)
		return 0
	}
	return b.Points
}

// SpendPersonalPoints decrements the balance only if it covers amount.
// The check and the decrement are one UPDATE, so two concurrent spends
// cannot both succeed against the same points.
func (p *GormProvider) SpendPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	if amount <= 0 {
		return false
	}
	name := fmt.Sprintf("balance:%d", playerID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		res := tx.Model(&model.PersonalBalance{}).
			Where("player_id = ? AND points >= ?", playerID, amount).
			UpdateColumn("points", gorm.Expr("points - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInsufficient
		}
		return nil
	})
	if errors.Is(err, errInsufficient) {
		return false // expected business outcome, not logged
	}
	if err != nil {
		p.fail("SpendPersonalPoints", err)
		return false
	}
	return true
}

func (p *GormProvider) SetPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	if amount < 0 {
		return false
	}
	name := fmt.Sprintf("balance:%d", playerID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		res := tx.Model(&model.PersonalBalance{}).
			Where("player_id = ?", playerID).
			UpdateColumn("points", amount)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Create(&model.PersonalBalance{PlayerID: playerID, Points: amount}).Error
		}
		return nil
	})
	if err != nil {
		p.fail("SetPersonalPoints", err)
		return false
	}
	return true
}

// ---- Boosts ----

func (p *GormProvider) SetPersonalBoost(ctx context.Context, playerID int64, multiplier decimal.Decimal, expiresAt time.Time) bool {
	if multiplier.LessThan(decimal.NewFromInt(1)) {
		return false
	}
	name := fmt.Sprintf("boost:%d", playerID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		var boost model.PersonalBoost
		err := tx.Where("player_id = ?", playerID).First(&boost).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.PersonalBoost{
				PlayerID:   playerID,
				Multiplier: multiplier,
				ExpiresAt:  expiresAt,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&boost).Updates(map[string]interface{}{
			"multiplier": multiplier,
			"expires_at": expiresAt,
		}).Error
	})
	if err != nil {
		p.fail("SetPersonalBoost", err)
		return false
	}
	return true
}

// GetPersonalBoost returns the active multiplier, or 1.0 when no boost
// exists or it has expired. Expiry is lazy: the row is left in place.
func (p *GormProvider) GetPersonalBoost(ctx context.Context, playerID int64, now time.Time) decimal.Decimal {
	one := decimal.NewFromInt(1)
	var boost model.PersonalBoost
	err := p.exec.DB().WithContext(ctx).Where("player_id = ?", playerID).First(&boost).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return one
	}
	if err != nil {
		p.fail("GetPersonalBoost", err)
		return one
	}
	if !boost.Active(now) {
		return one
	}
	return boost.Multiplier
}

// ---- Gift history ----

func (p *GormProvider) SaveGiftHistory(ctx context.Context, entry *model.GiftHistory) bool {
	err := p.exec.Run(ctx, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	})
	if err != nil {
		p.fail("SaveGiftHistory", err)
		return false
	}
	return true
}

func (p *GormProvider) GetGiftHistory(ctx context.Context, limit, offset int) []model.GiftHistory {
	var rows []model.GiftHistory
	err := p.exec.DB().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		p.fail("GetGiftHistory", err)
		return nil
	}
	return rows
}

func (p *GormProvider) GetGiftHistoryCount(ctx context.Context) int64 {
	var count int64
	if err := p.exec.DB().WithContext(ctx).Model(&model.GiftHistory{}).Count(&count).Error; err != nil {
		p.fail("GetGiftHistoryCount", err)
		return 0
	}
	return count
}

// ---- Daily counters ----

func (p *GormProvider) GetDailyGiftCount(ctx context.Context, playerID int64, date string) int {
	var row model.DailyGiftCount
	err := p.exec.DB().WithContext(ctx).
		Where("player_id = ? AND date = ?", playerID, date).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		p.fail("GetDailyGiftCount", err)
		return 0
	}
	return row.Count
}

func (p *GormProvider) IncrementDailyGiftCount(ctx context.Context, playerID int64, date string) bool {
	name := fmt.Sprintf("daily:%d", playerID)
	err := p.exec.RunWithWriteLock(ctx, name, func(tx *gorm.DB) error {
		res := tx.Model(&model.DailyGiftCount{}).
			Where("player_id = ? AND date = ?", playerID, date).
			UpdateColumn("count", gorm.Expr("count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Create(&model.DailyGiftCount{PlayerID: playerID, Date: date, Count: 1}).Error
		}
		return nil
	})
	if err != nil {
		p.fail("IncrementDailyGiftCount", err)
		return false
	}
	return true
}

// ---- Backup ----

// CreateManualBackup snapshots a sqlite backend with VACUUM INTO.
// Non-sqlite backends decline: archival of a remote server is the
// operator's concern.
func (p *GormProvider) CreateManualBackup(ctx context.Context) bool {
	if p.exec.DB().Dialector.Name() != "sqlite" {
		p.logger.Info("manual backup skipped for non-sqlite backend")
		return false
	}
	if err := os.MkdirAll(p.backupDir, 0o755); err != nil {
		p.fail("CreateManualBackup", err)
		return false
	}
	target := filepath.Join(p.backupDir,
		fmt.Sprintf("giftpoints-%s.db", time.Now().Format("20060102-150405")))
	if err := p.exec.DB().WithContext(ctx).Exec("VACUUM INTO ?", target).Error; err != nil {
		p.fail("CreateManualBackup", err)
		return false
	}
	p.logger.Info("manual backup created", zap.String("path", target))
	return true
}
