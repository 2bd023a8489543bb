package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/giftpoints/audit"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/scheduler"
	"github.com/kasuganosora/giftpoints/storage"
	"github.com/kasuganosora/giftpoints/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	store  *storage.Orchestrator
	execs  map[string]*txn.Executor
	sched  *scheduler.Scheduler
	audit  *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. execs maps backend names to
// their executors for health reporting.
func NewAdminHandler(
	store *storage.Orchestrator,
	execs map[string]*txn.Executor,
	sched *scheduler.Scheduler,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{store: store, execs: execs, sched: sched, audit: auditSvc, logger: logger}
}

func (h *AdminHandler) logAction(c *gin.Context, action string, req, resp interface{}, start time.Time) {
	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
}

// Health handles GET /api/admin/health: per-backend connectivity, pool
// and lock statistics plus scheduler state.
func (h *AdminHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	backends := make(map[string]txn.Health, len(h.execs))
	for name, exec := range h.execs {
		backends[name] = exec.HealthCheck(ctx)
	}
	c.JSON(http.StatusOK, gin.H{
		"primary":  h.store.Primary(),
		"backends": backends,
		"tasks":    h.sched.ListTickers(),
	})
}

type setPointsRequest struct {
	PlayerID int64 `json:"player_id" binding:"required"`
	Points   int64 `json:"points"`
}

// SetPersonalPoints handles POST /api/admin/points/personal.
func (h *AdminHandler) SetPersonalPoints(c *gin.Context) {
	start := time.Now()
	var req setPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Points < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must not be negative"})
		return
	}

	ok := h.store.SetPersonalPoints(c.Request.Context(), req.PlayerID, req.Points)
	resp := gin.H{"ok": ok}
	h.logAction(c, "admin.set_personal_points", req, resp, start)
	c.JSON(http.StatusOK, resp)
}

type setFriendshipRequest struct {
	SenderID   int64 `json:"sender_id" binding:"required"`
	ReceiverID int64 `json:"receiver_id" binding:"required"`
	Points     int64 `json:"points"`
}

// SetFriendshipPoints handles POST /api/admin/points/friendship.
func (h *AdminHandler) SetFriendshipPoints(c *gin.Context) {
	start := time.Now()
	var req setFriendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SenderID == req.ReceiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender and receiver must differ"})
		return
	}
	if req.Points < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points must not be negative"})
		return
	}

	ok := h.store.SetFriendshipPoints(c.Request.Context(), req.SenderID, req.ReceiverID, req.Points)
	resp := gin.H{"ok": ok}
	h.logAction(c, "admin.set_friendship_points", req, resp, start)
	c.JSON(http.StatusOK, resp)
}

type setBoostRequest struct {
	PlayerID   int64  `json:"player_id" binding:"required"`
	Multiplier string `json:"multiplier" binding:"required"`
	Duration   string `json:"duration" binding:"required"`
}

// SetBoost handles POST /api/admin/boost. Multiplier is a decimal
// string ("1.5"); duration is a Go duration string ("24h").
func (h *AdminHandler) SetBoost(c *gin.Context) {
	start := time.Now()
	var req setBoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mult, err := decimal.NewFromString(req.Multiplier)
	if err != nil || mult.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multiplier"})
		return
	}
	dur, err := time.ParseDuration(req.Duration)
	if err != nil || dur <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
		return
	}

	expires := time.Now().Add(dur)
	ok := h.store.SetPersonalBoost(c.Request.Context(), req.PlayerID, mult, expires)
	resp := gin.H{"ok": ok, "expires_at": expires}
	h.logAction(c, "admin.set_boost", req, resp, start)
	c.JSON(http.StatusOK, resp)
}

// TriggerSync handles POST /api/admin/sync: runs a reconciliation pass
// immediately.
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	start := time.Now()
	report := h.store.SyncNow(c.Request.Context())
	h.logAction(c, "admin.sync", nil, report, start)
	c.JSON(http.StatusOK, report)
}

// Backup handles POST /api/admin/backup: writes a consistent snapshot
// of the local database.
func (h *AdminHandler) Backup(c *gin.Context) {
	start := time.Now()
	ok := h.store.CreateManualBackup(c.Request.Context())
	resp := gin.H{"ok": ok}
	h.logAction(c, "admin.backup", nil, resp, start)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backup failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PlayerOverview handles GET /api/admin/players/:id: one player's full
// points picture.
func (h *AdminHandler) PlayerOverview(c *gin.Context) {
	playerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"player_id":  playerID,
		"points":     h.store.GetPersonalPoints(ctx, playerID),
		"boost":      h.store.GetPersonalBoost(ctx, playerID, now),
		"friends":    h.store.GetPlayerFriendsWithPoints(ctx, playerID),
		"friendship": h.store.GetTotalFriendshipPoints(ctx, playerID),
	})
}
