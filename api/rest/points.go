package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/storage"
)

// PointsHandler handles balance and friendship REST endpoints.
type PointsHandler struct {
	store *storage.Orchestrator
}

// NewPointsHandler creates a PointsHandler.
func NewPointsHandler(store *storage.Orchestrator) *PointsHandler {
	return &PointsHandler{store: store}
}

// GetBalance handles GET /api/points/balance.
func (h *PointsHandler) GetBalance(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	c.JSON(http.StatusOK, gin.H{
		"player_id": playerID,
		"points":    h.store.GetPersonalPoints(c.Request.Context(), playerID),
	})
}

// Spend handles POST /api/points/spend. The deduction is conditional:
// it succeeds only if the balance covers the amount.
func (h *PointsHandler) Spend(c *gin.Context) {
	playerID := mw.GetPlayerID(c)

	var req struct {
		Amount int64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !h.store.SpendPersonalPoints(ctx, playerID, req.Amount) {
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient points"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"spent":     req.Amount,
		"remaining": h.store.GetPersonalPoints(ctx, playerID),
	})
}

// ListFriends handles GET /api/points/friends. It returns every friend
// the player has sent points to, with the directed edge value.
func (h *PointsHandler) ListFriends(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"friends": h.store.GetPlayerFriendsWithPoints(ctx, playerID),
		"total":   h.store.GetTotalFriendshipPoints(ctx, playerID),
	})
}

// GetFriendship handles GET /api/points/friendship/:id. It returns the
// directed edge toward the friend plus the canonical pair total.
func (h *PointsHandler) GetFriendship(c *gin.Context) {
	playerID := mw.GetPlayerID(c)
	friendID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"friend_id":  friendID,
		"sent":       h.store.GetFriendshipPoints(ctx, playerID, friendID),
		"received":   h.store.GetFriendshipPoints(ctx, friendID, playerID),
		"pair_total": h.store.GetPairTotal(ctx, playerID, friendID),
	})
}

// History handles GET /api/points/history?limit=20&offset=0.
func (h *PointsHandler) History(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(c.Query("offset")); err == nil && o >= 0 {
		offset = o
	}

	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"entries": h.store.GetGiftHistory(ctx, limit, offset),
		"total":   h.store.GetGiftHistoryCount(ctx),
		"limit":   limit,
		"offset":  offset,
	})
}
