package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/giftpoints/config"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoBackend is returned when neither backend is enabled.
var ErrNoBackend = errors.New("storage: no backend enabled")

// Sync directions.
const (
	SyncBidirectional = "bidirectional"
	SyncLocalToRemote = "local_to_remote"
	SyncRemoteToLocal = "remote_to_local"
)

// secondaryPoolSize bounds the workers applying best-effort secondary
// writes.
const secondaryPoolSize = 8

// Orchestrator composes the local and the optional remote provider.
// Writes go to the read-primary synchronously and are replayed on the
// other backend best-effort through a bounded worker pool; there is no
// two-phase commit, so backends are eventually consistent via the
// periodic reconciliation pass.
type Orchestrator struct {
	local  Provider
	remote Provider
	pool   *ants.Pool
	logger *zap.Logger
	sync   config.SyncConfig
}

// NewOrchestrator wires the enabled providers. Either may be nil, but
// not both.
func NewOrchestrator(local, remote Provider, syncCfg config.SyncConfig, logger *zap.Logger) (*Orchestrator, error) {
	if local == nil && remote == nil {
		return nil, ErrNoBackend
	}
	if syncCfg.PairLimit <= 0 {
		syncCfg.PairLimit = 10000
	}
	pool, err := ants.NewPool(secondaryPoolSize)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		local:  local,
		remote: remote,
		pool:   pool,
		logger: logger,
		sync:   syncCfg,
	}, nil
}

// Initialize brings up every enabled provider. At least one must come
// up for the orchestrator to be usable.
func (o *Orchestrator) Initialize() bool {
	ok := false
	for _, p := range o.providers() {
		if p.Initialize() {
			ok = true
		} else {
			o.logger.Error("backend failed to initialize", zap.String("backend", p.Name()))
		}
	}
	return ok
}

// Close shuts down the worker pool and every provider.
func (o *Orchestrator) Close() {
	o.pool.Release()
	for _, p := range o.providers() {
		p.Close()
	}
}

func (o *Orchestrator) providers() []Provider {
	ps := make([]Provider, 0, 2)
	if o.local != nil {
		ps = append(ps, o.local)
	}
	if o.remote != nil {
		ps = append(ps, o.remote)
	}
	return ps
}

// primary selects the read backend: remote if connected, else local if
// connected, else nil. A read never blends both backends.
func (o *Orchestrator) primary() Provider {
	if o.remote != nil && o.remote.IsConnected() {
		return o.remote
	}
	if o.local != nil && o.local.IsConnected() {
		return o.local
	}
	return nil
}

// Primary exposes the current read-primary's name for diagnostics.
func (o *Orchestrator) Primary() string {
	if p := o.primary(); p != nil {
		return p.Name()
	}
	return ""
}

// write applies fn to the primary synchronously and queues the same
// write for the other backend. The secondary write runs detached from
// the caller's context: best effort, its failure only logs.
func (o *Orchestrator) write(op string, fn func(ctx context.Context, p Provider) bool) bool {
	pri := o.primary()
	if pri == nil {
		o.logger.Error("write dropped: no connected backend", zap.String("op", op))
		return false
	}
	ok := fn(context.Background(), pri)

	for _, sec := range o.providers() {
		if sec == pri {
			continue
		}
		sec := sec
		if err := o.pool.Submit(func() {
			if !fn(context.Background(), sec) {
				o.logger.Warn("secondary write failed",
					zap.String("op", op),
					zap.String("backend", sec.Name()))
			}
		}); err != nil {
			o.logger.Warn("secondary write not queued",
				zap.String("op", op), zap.Error(err))
		}
	}
	return ok
}

// ---- Provider surface ----

func (o *Orchestrator) AddFriendshipPoints(ctx context.Context, senderID, receiverID, delta int64) bool {
	return o.write("AddFriendshipPoints", func(ctx context.Context, p Provider) bool {
		return p.AddFriendshipPoints(ctx, senderID, receiverID, delta)
	})
}

func (o *Orchestrator) SetFriendshipPoints(ctx context.Context, senderID, receiverID, points int64) bool {
	return o.write("SetFriendshipPoints", func(ctx context.Context, p Provider) bool {
		return p.SetFriendshipPoints(ctx, senderID, receiverID, points)
	})
}

func (o *Orchestrator) GetFriendshipPoints(ctx context.Context, senderID, receiverID int64) int64 {
	if p := o.primary(); p != nil {
		return p.GetFriendshipPoints(ctx, senderID, receiverID)
	}
	return 0
}

func (o *Orchestrator) GetPlayerFriendsWithPoints(ctx context.Context, playerID int64) []model.FriendPoints {
	if p := o.primary(); p != nil {
		return p.GetPlayerFriendsWithPoints(ctx, playerID)
	}
	return nil
}

func (o *Orchestrator) GetTotalFriendshipPoints(ctx context.Context, playerID int64) int64 {
	if p := o.primary(); p != nil {
		return p.GetTotalFriendshipPoints(ctx, playerID)
	}
	return 0
}

func (o *Orchestrator) GetPairTotal(ctx context.Context, a, b int64) int64 {
	if p := o.primary(); p != nil {
		return p.GetPairTotal(ctx, a, b)
	}
	return 0
}

func (o *Orchestrator) GetTopFriendshipPairs(ctx context.Context, limit int) []model.PairTotal {
	if p := o.primary(); p != nil {
		return p.GetTopFriendshipPairs(ctx, limit)
	}
	return nil
}

func (o *Orchestrator) AddPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	return o.write("AddPersonalPoints", func(ctx context.Context, p Provider) bool {
		return p.AddPersonalPoints(ctx, playerID, amount)
	})
}

func (o *Orchestrator) GetPersonalPoints(ctx context.Context, playerID int64) int64 {
	if p := o.primary(); p != nil {
		return p.GetPersonalPoints(ctx, playerID)
	}
	return 0
}

// SpendPersonalPoints runs the conditional spend on the primary; the
// secondary is reconciled by replaying the spend, not by re-checking,
// so a backend that missed the addition simply fails the replay and is
// caught up by the next sync pass.
func (o *Orchestrator) SpendPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	pri := o.primary()
	if pri == nil {
		return false
	}
	if !pri.SpendPersonalPoints(ctx, playerID, amount) {
		return false
	}
	for _, sec := range o.providers() {
		if sec == pri {
			continue
		}
		sec := sec
		_ = o.pool.Submit(func() {
			sec.SpendPersonalPoints(context.Background(), playerID, amount)
		})
	}
	return true
}

func (o *Orchestrator) SetPersonalPoints(ctx context.Context, playerID, amount int64) bool {
	return o.write("SetPersonalPoints", func(ctx context.Context, p Provider) bool {
		return p.SetPersonalPoints(ctx, playerID, amount)
	})
}

func (o *Orchestrator) SetPersonalBoost(ctx context.Context, playerID int64, multiplier decimal.Decimal, expiresAt time.Time) bool {
	return o.write("SetPersonalBoost", func(ctx context.Context, p Provider) bool {
		return p.SetPersonalBoost(ctx, playerID, multiplier, expiresAt)
	})
}

func (o *Orchestrator) GetPersonalBoost(ctx context.Context, playerID int64, now time.Time) decimal.Decimal {
	if p := o.primary(); p != nil {
		return p.GetPersonalBoost(ctx, playerID, now)
	}
	return decimal.NewFromInt(1)
}

func (o *Orchestrator) SaveGiftHistory(ctx context.Context, entry *model.GiftHistory) bool {
	return o.write("SaveGiftHistory", func(ctx context.Context, p Provider) bool {
		// Copy per backend: gorm fills the autoincrement ID on create.
		e := *entry
		return p.SaveGiftHistory(ctx, &e)
	})
}

func (o *Orchestrator) GetGiftHistory(ctx context.Context, limit, offset int) []model.GiftHistory {
	if p := o.primary(); p != nil {
		return p.GetGiftHistory(ctx, limit, offset)
	}
	return nil
}

func (o *Orchestrator) GetGiftHistoryCount(ctx context.Context) int64 {
	if p := o.primary(); p != nil {
		return p.GetGiftHistoryCount(ctx)
	}
	return 0
}

func (o *Orchestrator) GetDailyGiftCount(ctx context.Context, playerID int64, date string) int {
	if p := o.primary(); p != nil {
		return p.GetDailyGiftCount(ctx, playerID, date)
	}
	return 0
}

func (o *Orchestrator) IncrementDailyGiftCount(ctx context.Context, playerID int64, date string) bool {
	return o.write("IncrementDailyGiftCount", func(ctx context.Context, p Provider) bool {
		return p.IncrementDailyGiftCount(ctx, playerID, date)
	})
}

func (o *Orchestrator) CreateManualBackup(ctx context.Context) bool {
	ok := false
	for _, p := range o.providers() {
		if p.CreateManualBackup(ctx) {
			ok = true
		}
	}
	return ok
}

// ---- Reconciliation ----

// SyncReport summarizes one reconciliation run.
type SyncReport struct {
	Ran      bool          `json:"ran"`
	Pairs    int           `json:"pairs"`
	Applied  int           `json:"applied"`
	Duration time.Duration `json:"duration"`
}

// SyncNow runs the configured reconciliation passes. It only does work
// when both backends are enabled and connected. Each pass pushes the
// positive difference of a canonical pair's total from source to
// destination, so totals never decrease and independently earned points
// on both sides are not double-counted.
func (o *Orchestrator) SyncNow(ctx context.Context) SyncReport {
	if o.local == nil || o.remote == nil {
		return SyncReport{}
	}
	if !o.local.IsConnected() || !o.remote.IsConnected() {
		o.logger.Warn("sync skipped: backend not connected")
		return SyncReport{}
	}

	start := time.Now()
	report := SyncReport{Ran: true}
	switch o.sync.Direction {
	case SyncLocalToRemote:
		o.syncPass(ctx, o.local, o.remote, &report)
	case SyncRemoteToLocal:
		o.syncPass(ctx, o.remote, o.local, &report)
	default:
		o.syncPass(ctx, o.local, o.remote, &report)
		o.syncPass(ctx, o.remote, o.local, &report)
	}
	report.Duration = time.Since(start)
	o.logger.Info("reconciliation pass finished",
		zap.Int("pairs", report.Pairs),
		zap.Int("applied", report.Applied),
		zap.Duration("duration", report.Duration))
	return report
}

// syncPass never decreases a destination total: only positive diffs are
// written, as additions on the lexically smaller→larger edge.
func (o *Orchestrator) syncPass(ctx context.Context, src, dst Provider, report *SyncReport) {
	pairs := src.GetTopFriendshipPairs(ctx, o.sync.PairLimit)
	report.Pairs += len(pairs)
	for _, pair := range pairs {
		if ctx.Err() != nil {
			o.logger.Warn("sync pass interrupted", zap.Error(ctx.Err()))
			return
		}
		dstTotal := dst.GetPairTotal(ctx, pair.PlayerA, pair.PlayerB)
		diff := pair.Total - dstTotal
		if diff <= 0 {
			continue
		}
		if dst.AddFriendshipPoints(ctx, pair.PlayerA, pair.PlayerB, diff) {
			report.Applied++
		}
	}
}
