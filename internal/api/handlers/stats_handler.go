package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"noisemap/internal/api/middleware"
	"noisemap/internal/services"
)

// StatsHandler serves the counter-backed statistics. The values are
// approximate display numbers.
type StatsHandler struct {
	ledger *services.CounterLedger
}

func NewStatsHandler(ledger *services.CounterLedger) *StatsHandler {
	return &StatsHandler{ledger: ledger}
}

// Community handles GET /stats/community
func (h *StatsHandler) Community(c *gin.Context) {
	stats, err := h.ledger.CommunityStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Me handles GET /stats/me
func (h *StatsHandler) Me(c *gin.Context) {
	stats, err := h.ledger.UserStats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
