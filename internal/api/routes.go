package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noisemap/internal/api/handlers"
	"noisemap/internal/api/middleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(context.Context) error

type Router struct {
	recordHandler    *handlers.RecordHandler
	analyticsHandler *handlers.AnalyticsHandler
	statsHandler     *handlers.StatsHandler
	health           HealthCheck
	submitLimiter    *middleware.RateLimiter
}

func NewRouter(
	recordHandler *handlers.RecordHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	statsHandler *handlers.StatsHandler,
	health HealthCheck,
	submitLimiter *middleware.RateLimiter,
) *Router {
	return &Router{
		recordHandler:    recordHandler,
		analyticsHandler: analyticsHandler,
		statsHandler:     statsHandler,
		health:           health,
		submitLimiter:    submitLimiter,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestLogger())

	// Health check endpoint
	engine.GET("/health", r.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public read endpoints. A bearer identity, when sent, lets owners see
	// their own hidden records.
	public := engine.Group("/")
	public.Use(middleware.OptionalIdentity())
	{
		public.GET("/feed", r.recordHandler.Feed)
		public.GET("/feed/geojson", r.recordHandler.GeoJSON)
		public.GET("/records/:id", r.recordHandler.Get)

		analytics := public.Group("/analytics")
		{
			analytics.GET("/complaints-by-district", r.analyticsHandler.ComplaintsByDistrict())
			analytics.GET("/top-streets", r.analyticsHandler.TopStreets())
			analytics.GET("/hourly", r.analyticsHandler.HourlyProfile())
			analytics.GET("/daily", r.analyticsHandler.DailyTrend())
			analytics.GET("/dashboard", r.analyticsHandler.Dashboard)
		}

		public.GET("/stats/community", r.statsHandler.Community)
	}

	// Protected routes
	api := engine.Group("/")
	api.Use(middleware.BearerIdentity())
	{
		api.POST("/records", r.submitChain(r.recordHandler.Create)...)
		api.GET("/records/mine", r.recordHandler.ListMine)
		api.DELETE("/records/mine", r.recordHandler.DeleteMine)
		api.PATCH("/records/:id", r.recordHandler.Update)
		api.DELETE("/records/:id", r.recordHandler.Delete)
		api.GET("/stats/me", r.statsHandler.Me)
	}
}

func (r *Router) healthz(c *gin.Context) {
	if r.health != nil {
		if err := r.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// submitChain prepends the submission rate limit, when configured, to h.
func (r *Router) submitChain(h gin.HandlerFunc) []gin.HandlerFunc {
	if r.submitLimiter == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{r.submitLimiter.Middleware(), h}
}
