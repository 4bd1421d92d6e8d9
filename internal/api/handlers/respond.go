package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"noisemap/internal/domain/entities"
	"noisemap/internal/geo"
	"noisemap/internal/logging"
	"noisemap/internal/repository"
	"noisemap/internal/services"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, geo.ErrValidation),
		errors.Is(err, services.ErrInvalidRecord),
		errors.Is(err, services.ErrInvalidQuery),
		errors.Is(err, repository.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRecordBusy):
		return http.StatusConflict
	case errors.Is(err, repository.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal errors are logged
// and never echoed to the client.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)

	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logging.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		msg = "internal error"
	case http.StatusServiceUnavailable:
		msg = "store unavailable"
	}
	c.JSON(status, gin.H{"error": msg})
}

func invalidQuery(format string, args ...any) error {
	return fmt.Errorf("%w: %s", services.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalidQuery("%s must be a non-negative integer", name)
	}
	return n, nil
}

func queryFloat(c *gin.Context, name string) (float64, error) {
	v, err := strconv.ParseFloat(c.Query(name), 64)
	if err != nil {
		return 0, invalidQuery("%s must be a number", name)
	}
	return v, nil
}

// parseQuery reads lat, lng, radius_km, limit and page_size. The three
// center parameters are all-or-none.
func parseQuery(c *gin.Context) (services.Query, error) {
	var q services.Query

	var err error
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(c, "page_size"); err != nil {
		return q, err
	}

	_, hasLat := c.GetQuery("lat")
	_, hasLng := c.GetQuery("lng")
	_, hasRadius := c.GetQuery("radius_km")
	if !hasLat && !hasLng && !hasRadius {
		return q, nil
	}
	if !hasLat || !hasLng || !hasRadius {
		return q, invalidQuery("lat, lng and radius_km must be given together")
	}

	lat, err := queryFloat(c, "lat")
	if err != nil {
		return q, err
	}
	lng, err := queryFloat(c, "lng")
	if err != nil {
		return q, err
	}
	if q.RadiusKm, err = queryFloat(c, "radius_km"); err != nil {
		return q, err
	}
	q.Center = &entities.Location{Latitude: lat, Longitude: lng}

	return q, q.Validate()
}
