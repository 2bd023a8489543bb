package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/giftpoints/gift"
	"github.com/kasuganosora/giftpoints/mailbox"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MailboxHandler handles pending-gift REST endpoints.
type MailboxHandler struct {
	box    *mailbox.Store
	svc    *gift.Service
	db     *gorm.DB
	logger *zap.Logger
}

// NewMailboxHandler creates a MailboxHandler.
func NewMailboxHandler(box *mailbox.Store, svc *gift.Service, db *gorm.DB, logger *zap.Logger) *MailboxHandler {
	return &MailboxHandler{box: box, svc: svc, db: db, logger: logger}
}

// List handles GET /api/mailbox. Optional ?sender=<name> narrows the
// list to one sender.
func (h *MailboxHandler) List(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	ctx := c.Request.Context()

	var (
		gifts []model.PendingGift
		err   error
	)
	if sender := c.Query("sender"); sender != "" {
		gifts, err = h.box.ListPendingFromSender(ctx, playerID, sender)
	} else {
		gifts, err = h.box.ListPendingForRecipient(ctx, playerID)
	}
	if err != nil {
		h.logger.Error("mailbox list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"gifts": gifts, "count": len(gifts)})
}

// Summary handles GET /api/mailbox/summary: pending gifts grouped per
// sender, most recent sender first.
func (h *MailboxHandler) Summary(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	summary, err := h.box.SummarizePendingBySender(c.Request.Context(), playerID)
	if err != nil {
		h.logger.Error("mailbox summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"senders": summary})
}

// Claim handles POST /api/mailbox/claim/:id. Exactly one of N
// concurrent claims for the same gift succeeds.
func (h *MailboxHandler) Claim(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var p model.Player
	if err := h.db.First(&p, playerID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown player"})
		return
	}

	result, err := h.svc.Claim(c.Request.Context(),
		gift.Participant{ID: p.ID, Name: p.Name}, id)
	if err != nil {
		switch {
		case errors.Is(err, mailbox.ErrAlreadyClaimed):
			c.JSON(http.StatusConflict, gin.H{"error": "already claimed"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "gift not found"})
		default:
			h.logger.Error("claim failed", zap.Int64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stats handles GET /api/mailbox/stats: lifetime delivery counters for
// the caller's mailbox.
func (h *MailboxHandler) Stats(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	stats, err := h.box.Stats(c.Request.Context(), playerID)
	if err != nil {
		h.logger.Error("mailbox stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
