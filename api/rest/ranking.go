package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/giftpoints/cache"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/storage"
	"go.uber.org/zap"
)

// RankingHandler serves the friendship-pair leaderboard.
type RankingHandler struct {
	store  *storage.Orchestrator
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(store *storage.Orchestrator, c cache.Cache, ttl time.Duration, logger *zap.Logger) *RankingHandler {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RankingHandler{store: store, cache: c, ttl: ttl, logger: logger}
}

const rankingZKey = "ranking:pairs"
const rankingTop = 100

// PairRank is one row in the pair leaderboard.
type PairRank struct {
	Rank    int   `json:"rank"`
	PlayerA int64 `json:"player_a"`
	PlayerB int64 `json:"player_b"`
	Total   int64 `json:"total"`
}

func pairMember(p model.PairTotal) string {
	return fmt.Sprintf("%d:%d", p.PlayerA, p.PlayerB)
}

// TopPairs returns the friendship pairs with the highest combined
// totals. GET /api/ranking/pairs?limit=20
func (h *RankingHandler) TopPairs(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	ctx := c.Request.Context()

	// Serve from the sorted set while the snapshot marker is fresh.
	if fresh, err := h.cache.Exists(ctx, rankingZKey+":fresh"); err == nil && fresh {
		members, err := h.cache.ZRevRange(ctx, rankingZKey, 0, int64(limit-1))
		if err == nil && len(members) > 0 {
			entries := make([]PairRank, 0, len(members))
			for i, m := range members {
				parts := strings.SplitN(m, ":", 2)
				if len(parts) != 2 {
					continue
				}
				a, errA := strconv.ParseInt(parts[0], 10, 64)
				b, errB := strconv.ParseInt(parts[1], 10, 64)
				if errA != nil || errB != nil {
					continue
				}
				score, _ := h.cache.ZScore(ctx, rankingZKey, m)
				entries = append(entries, PairRank{
					Rank:    i + 1,
					PlayerA: a,
					PlayerB: b,
					Total:   int64(score),
				})
			}
			c.JSON(http.StatusOK, gin.H{"ranking": entries, "cached": true})
			return
		}
	}

	pairs := h.store.GetTopFriendshipPairs(ctx, rankingTop)
	entries := make([]PairRank, 0, limit)
	for i, p := range pairs {
		if i < limit {
			entries = append(entries, PairRank{
				Rank:    i + 1,
				PlayerA: p.PlayerA,
				PlayerB: p.PlayerB,
				Total:   p.Total,
			})
		}
		_ = h.cache.ZAdd(ctx, rankingZKey, float64(p.Total), pairMember(p))
	}
	_ = h.cache.Set(ctx, rankingZKey+":fresh", "1", h.ttl)
	c.JSON(http.StatusOK, gin.H{"ranking": entries, "cached": false})
}

// Refresh rebuilds the ranking sorted set from storage. Wired as an
// admin endpoint and as a scheduler task.
func (h *RankingHandler) Refresh(c *gin.Context) {
	n := h.RefreshCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// RefreshCache reloads the top pairs into the sorted set and renews the
// freshness marker. Returns the number of pairs loaded.
func (h *RankingHandler) RefreshCache(ctx context.Context) int {
	pairs := h.store.GetTopFriendshipPairs(ctx, rankingTop)
	for _, p := range pairs {
		if err := h.cache.ZAdd(ctx, rankingZKey, float64(p.Total), pairMember(p)); err != nil {
			h.logger.Warn("ranking cache refresh failed", zap.Error(err))
			return 0
		}
	}
	_ = h.cache.Set(ctx, rankingZKey+":fresh", "1", h.ttl)
	return len(pairs)
}
