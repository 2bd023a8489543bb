package gift

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/giftpoints/config"
	"github.com/kasuganosora/giftpoints/mailbox"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrUnknownGift       = errors.New("gift: unknown gift id")
	ErrSelfGift          = errors.New("gift: cannot gift yourself")
	ErrDailyLimitReached = errors.New("gift: daily gift limit reached")
	ErrNoTarget          = errors.New("gift: no gift target selected")
)

// PointStore is the slice of the storage surface the gift flow needs.
// The orchestrator satisfies it.
type PointStore interface {
	AddFriendshipPoints(ctx context.Context, senderID, receiverID, delta int64) bool
	AddPersonalPoints(ctx context.Context, playerID, amount int64) bool
	GetPersonalBoost(ctx context.Context, playerID int64, now time.Time) decimal.Decimal
	SaveGiftHistory(ctx context.Context, entry *model.GiftHistory) bool
	GetDailyGiftCount(ctx context.Context, playerID int64, date string) int
	IncrementDailyGiftCount(ctx context.Context, playerID int64, date string) bool
}

// Item is one element of a gift payload. Payloads travel through the
// mailbox as opaque JSON; only this package interprets them.
type Item struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// Definition describes a giftable thing and its base point value.
type Definition struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	BasePoints int64  `json:"base_points"`
	Items      []Item `json:"items"`
}

// DefaultCatalog is the built-in gift set.
func DefaultCatalog() []Definition {
	return []Definition{
		{ID: "rose", Label: "Rose", BasePoints: 10, Items: []Item{{Type: "item", ItemID: "rose", Qty: 1}}},
		{ID: "cake", Label: "Cake", BasePoints: 25, Items: []Item{{Type: "item", ItemID: "cake", Qty: 1}}},
		{ID: "gem", Label: "Gem", BasePoints: 50, Items: []Item{{Type: "item", ItemID: "gem", Qty: 1}}},
		{ID: "crown", Label: "Crown", BasePoints: 100, Items: []Item{{Type: "item", ItemID: "crown", Qty: 1}}},
	}
}

// Participant identifies one side of a gift exchange.
type Participant struct {
	ID   int64
	Name string
}

// Service runs the gift exchange flow: award computation, friendship
// and personal credit, history, and mailbox queuing for recipients that
// cannot receive synchronously.
type Service struct {
	points   PointStore
	box      *mailbox.Store
	sessions *session.Store
	catalog  map[string]Definition
	order    []string
	cfg      config.PointsConfig
	logger   *zap.Logger
}

// NewService wires the gift flow over the given stores.
func NewService(points PointStore, box *mailbox.Store, sessions *session.Store, cfg config.PointsConfig, logger *zap.Logger) *Service {
	s := &Service{
		points:   points,
		box:      box,
		sessions: sessions,
		catalog:  make(map[string]Definition),
		cfg:      cfg,
		logger:   logger,
	}
	for _, def := range DefaultCatalog() {
		s.catalog[def.ID] = def
		s.order = append(s.order, def.ID)
	}
	return s
}

// Catalog lists the gift definitions in their defined order.
func (s *Service) Catalog() []Definition {
	defs := make([]Definition, 0, len(s.order))
	for _, id := range s.order {
		defs = append(defs, s.catalog[id])
	}
	return defs
}

// Definition looks up one gift by id.
func (s *Service) Definition(id string) (Definition, bool) {
	def, ok := s.catalog[id]
	return def, ok
}

// Sessions exposes the gift-target session store.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// award applies the sender's active boost to the base value, rounded
// down.
func (s *Service) award(ctx context.Context, senderID, base int64, now time.Time) int64 {
	boost := s.points.GetPersonalBoost(ctx, senderID, now)
	return decimal.NewFromInt(base).Mul(boost).Floor().IntPart()
}

// claimShare is the portion of awarded points the recipient receives on
// claim.
func (s *Service) claimShare(awarded int64) int64 {
	pct := s.cfg.ClaimSharePercent
	if pct <= 0 || pct > 100 {
		pct = 100
	}
	return awarded * int64(pct) / 100
}

// SendResult reports a finished send: either delivered synchronously or
// queued into the recipient's mailbox.
type SendResult struct {
	Delivered     bool   `json:"delivered"`
	PendingID     int64  `json:"pending_id,omitempty"`
	GiftLabel     string `json:"gift_label"`
	BasePoints    int64  `json:"base_points"`
	AwardedPoints int64  `json:"awarded_points"`
}

// Send performs one gift exchange. The friendship edge is credited
// either way; the recipient's personal share is credited immediately
// when deliverable, otherwise a PendingGift is queued and the share is
// granted at claim time.
func (s *Service) Send(ctx context.Context, sender, receiver Participant, giftID string, deliverable bool) (SendResult, error) {
	def, ok := s.catalog[giftID]
	if !ok {
		return SendResult{}, ErrUnknownGift
	}
	if sender.ID == receiver.ID {
		return SendResult{}, ErrSelfGift
	}

	now := time.Now()
	date := model.DateKey(now)
	if s.cfg.DailyGiftLimit > 0 && s.points.GetDailyGiftCount(ctx, sender.ID, date) >= s.cfg.DailyGiftLimit {
		return SendResult{}, ErrDailyLimitReached
	}

	awarded := s.award(ctx, sender.ID, def.BasePoints, now)
	s.points.IncrementDailyGiftCount(ctx, sender.ID, date)
	s.points.AddFriendshipPoints(ctx, sender.ID, receiver.ID, awarded)

	result := SendResult{
		GiftLabel:     def.Label,
		BasePoints:    def.BasePoints,
		AwardedPoints: awarded,
	}

	if deliverable {
		s.points.AddPersonalPoints(ctx, receiver.ID, s.claimShare(awarded))
		s.points.SaveGiftHistory(ctx, &model.GiftHistory{
			SenderID:     sender.ID,
			ReceiverID:   receiver.ID,
			GiftLabel:    def.Label,
			PointsEarned: awarded,
		})
		result.Delivered = true
		s.logger.Info("gift delivered",
			zap.Int64("sender", sender.ID),
			zap.Int64("receiver", receiver.ID),
			zap.String("gift", def.ID),
			zap.Int64("awarded", awarded))
		return result, nil
	}

	payload, err := json.Marshal(def.Items)
	if err != nil {
		return SendResult{}, err
	}
	id, err := s.box.Save(ctx, &model.PendingGift{
		ReceiverID:    receiver.ID,
		ReceiverName:  receiver.Name,
		SenderID:      sender.ID,
		SenderName:    sender.Name,
		GiftID:        def.ID,
		GiftLabel:     def.Label,
		Payload:       datatypes.JSON(payload),
		BasePoints:    def.BasePoints,
		AwardedPoints: awarded,
	})
	if err != nil {
		return SendResult{}, err
	}
	result.PendingID = id
	s.logger.Info("gift queued",
		zap.Int64("sender", sender.ID),
		zap.Int64("receiver", receiver.ID),
		zap.String("gift", def.ID),
		zap.Int64("pending_id", id))
	return result, nil
}

// SendSelected confirms the sender's session-selected target and clears
// the selection regardless of outcome.
func (s *Service) SendSelected(ctx context.Context, sender Participant, deliverable bool) (SendResult, error) {
	target, ok := s.sessions.Get(sender.ID)
	if !ok {
		return SendResult{}, ErrNoTarget
	}
	defer s.sessions.Clear(sender.ID)
	receiver := Participant{ID: target.ReceiverID, Name: target.ReceiverName}
	return s.Send(ctx, sender, receiver, target.GiftID, deliverable)
}

// ClaimResult reports a won claim.
type ClaimResult struct {
	GiftLabel     string `json:"gift_label"`
	SenderName    string `json:"sender_name"`
	Items         []Item `json:"items"`
	PointsGranted int64  `json:"points_granted"`
}

// Claim grants one pending gift to its recipient. Exactly one of N
// concurrent claims for the same id succeeds; losers receive
// mailbox.ErrAlreadyClaimed. The row is deleted only after the payload
// and points were granted.
func (s *Service) Claim(ctx context.Context, recipient Participant, pendingID int64) (ClaimResult, error) {
	g, err := s.box.Claim(ctx, pendingID, recipient.ID)
	if err != nil {
		return ClaimResult{}, err
	}

	granted := s.claimShare(g.AwardedPoints)
	s.points.AddPersonalPoints(ctx, recipient.ID, granted)
	s.points.SaveGiftHistory(ctx, &model.GiftHistory{
		SenderID:     g.SenderID,
		ReceiverID:   g.ReceiverID,
		GiftLabel:    g.GiftLabel,
		PointsEarned: g.AwardedPoints,
	})
	items := s.decodeItems(g.Payload)

	if err := s.box.Delete(ctx, pendingID); err != nil {
		// Points were granted; the claimed row just failed to clear.
		// It stays claimed, so it can never be granted twice.
		s.logger.Warn("claimed gift row not deleted",
			zap.Int64("pending_id", pendingID),
			zap.Error(err))
	}

	s.logger.Info("gift claimed",
		zap.Int64("recipient", recipient.ID),
		zap.Int64("pending_id", pendingID),
		zap.Int64("granted", granted))
	return ClaimResult{
		GiftLabel:     g.GiftLabel,
		SenderName:    g.SenderName,
		Items:         items,
		PointsGranted: granted,
	}, nil
}

// decodeItems parses a payload item by item. A corrupt element is
// logged and skipped rather than failing the whole claim.
func (s *Service) decodeItems(payload datatypes.JSON) []Item {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.logger.Warn("gift payload unreadable", zap.Error(err))
		return nil
	}
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		var item Item
		if err := json.Unmarshal(r, &item); err != nil {
			s.logger.Warn("gift payload item skipped",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items
}
