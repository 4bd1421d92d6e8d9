package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"noisemap/internal/logging"
	"noisemap/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger logs every request once it has been served and records its
// latency under the matched route pattern. An upstream X-Request-ID is kept;
// otherwise one is generated and echoed back.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// Unmatched paths share one label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, route, status, latency)

		event := logging.Info()
		switch {
		case status >= 500:
			event = logging.Error()
		case status < 400 && len(c.Errors) > 0:
			// A success status with errors attached means the body failed to render.
			event = logging.Error()
		case status >= 400:
			event = logging.Warn()
		}
		event = event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", route).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP())
		if userID := GetUserID(c); userID != "" {
			event = event.Str("user_id", userID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("request")
	}
}
