package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"noisemap/internal/services"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// pipeline adapts one AnalyticsService pipeline into a handler that parses
// the query and writes {"data": rows}.
//
// Go Learning Note — Generic Functions:
// Each pipeline returns a different row type. A type parameter lets one
// adapter serve all four without falling back to `any` and losing the
// concrete type before JSON encoding.
func pipeline[T any](run func(context.Context, services.Query) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}

		rows, err := run(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	}
}

// ComplaintsByDistrict handles GET /analytics/complaints-by-district
func (h *AnalyticsHandler) ComplaintsByDistrict() gin.HandlerFunc {
	return pipeline(h.analyticsService.ComplaintsByDistrict)
}

// TopStreets handles GET /analytics/top-streets
func (h *AnalyticsHandler) TopStreets() gin.HandlerFunc {
	return pipeline(h.analyticsService.TopStreets)
}

// HourlyProfile handles GET /analytics/hourly
func (h *AnalyticsHandler) HourlyProfile() gin.HandlerFunc {
	return pipeline(h.analyticsService.HourlyProfile)
}

// DailyTrend handles GET /analytics/daily
func (h *AnalyticsHandler) DailyTrend() gin.HandlerFunc {
	return pipeline(h.analyticsService.DailyTrend)
}

// Dashboard handles GET /analytics/dashboard. It answers 200 even when some
// pipelines failed; each entry carries its own error.
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	d, err := h.analyticsService.GetDashboard(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
