package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/giftpoints/cache"
	"github.com/kasuganosora/giftpoints/gift"
	"github.com/kasuganosora/giftpoints/mailbox"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GiftHandler handles the gift exchange REST endpoints.
type GiftHandler struct {
	svc        *gift.Service
	db         *gorm.DB
	cache      cache.Cache
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewGiftHandler creates a GiftHandler. db is used for recipient
// lookups only.
func NewGiftHandler(svc *gift.Service, db *gorm.DB, c cache.Cache, sessionTTL time.Duration, logger *zap.Logger) *GiftHandler {
	if sessionTTL <= 0 {
		sessionTTL = 5 * time.Minute
	}
	return &GiftHandler{svc: svc, db: db, cache: c, sessionTTL: sessionTTL, logger: logger}
}

// Catalog handles GET /api/gifts/catalog.
func (h *GiftHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"gifts": h.svc.Catalog()})
}

// lookupPlayer resolves a player by id or unique name.
func (h *GiftHandler) lookupPlayer(id int64, name string) (*model.Player, error) {
	var p model.Player
	q := h.db
	if id != 0 {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("name = ?", name)
	}
	if err := q.First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// deliverable reports whether the recipient can receive the gift
// synchronously. Anyone without a live session gets the mailbox.
func (h *GiftHandler) deliverable(ctx context.Context, receiverID int64) bool {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	online, err := h.cache.Exists(cctx, onlineKey(receiverID))
	return err == nil && online
}

type sendRequest struct {
	ReceiverID   int64  `json:"receiver_id"`
	ReceiverName string `json:"receiver_name"`
	GiftID       string `json:"gift_id" binding:"required"`
}

// SelectTarget handles POST /api/gifts/target. The selection expires
// after the session TTL and is consumed by Confirm.
func (h *GiftHandler) SelectTarget(c *gin.Context) {
	playerID := mw.GetPlayerID(c)

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.svc.Definition(req.GiftID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown gift"})
		return
	}
	receiver, err := h.lookupPlayer(req.ReceiverID, req.ReceiverName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
		return
	}

	h.svc.Sessions().Set(playerID, session.Target{
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		GiftID:       req.GiftID,
		ExpiresAt:    time.Now().Add(h.sessionTTL),
	})
	c.JSON(http.StatusOK, gin.H{
		"receiver_id":   receiver.ID,
		"receiver_name": receiver.Name,
		"gift_id":       req.GiftID,
		"expires_in":    h.sessionTTL.Seconds(),
	})
}

// Confirm handles POST /api/gifts/confirm: sends the gift selected by
// SelectTarget.
func (h *GiftHandler) Confirm(c *gin.Context) {
	playerID := mw.GetPlayerID(c)

	target, ok := h.svc.Sessions().Get(playerID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no gift target selected"})
		return
	}

	sender, err := h.lookupPlayer(playerID, "")
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown sender"})
		return
	}

	ctx := c.Request.Context()
	result, err := h.svc.SendSelected(ctx,
		gift.Participant{ID: sender.ID, Name: sender.Name},
		h.deliverable(ctx, target.ReceiverID))
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Send handles POST /api/gifts/send: the one-shot path without a
// target selection step.
func (h *GiftHandler) Send(c *gin.Context) {
	playerID := mw.GetPlayerID(c)

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender, err := h.lookupPlayer(playerID, "")
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown sender"})
		return
	}
	receiver, err := h.lookupPlayer(req.ReceiverID, req.ReceiverName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
		return
	}

	ctx := c.Request.Context()
	result, err := h.svc.Send(ctx,
		gift.Participant{ID: sender.ID, Name: sender.Name},
		gift.Participant{ID: receiver.ID, Name: receiver.Name},
		req.GiftID,
		h.deliverable(ctx, receiver.ID))
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GiftHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gift.ErrUnknownGift):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown gift"})
	case errors.Is(err, gift.ErrSelfGift):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot gift yourself"})
	case errors.Is(err, gift.ErrDailyLimitReached):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily gift limit reached"})
	case errors.Is(err, gift.ErrNoTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no gift target selected"})
	case errors.Is(err, mailbox.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "already claimed"})
	default:
		h.logger.Error("gift request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
