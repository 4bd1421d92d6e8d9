package services

import (
	"errors"
	"fmt"

	"noisemap/internal/domain/entities"
	"noisemap/internal/geo"
)

var ErrInvalidQuery = errors.New("invalid query")

// Query narrows an analytics or export request.
//
// A nil Center means community-wide. With a Center, only records within
// RadiusKm of it are kept, and only among the page that was fetched: the
// radius never widens the page.
type Query struct {
	Center   *entities.Location
	RadiusKm float64
	// Limit truncates ranked results; 0 means the pipeline default.
	Limit int
	// PageSize overrides the fetch bound; 0 means the pipeline default.
	PageSize int
}

// Validate checks the center and the bounds.
func (q Query) Validate() error {
	if q.Limit < 0 || q.PageSize < 0 {
		return fmt.Errorf("%w: limit and page size must not be negative", ErrInvalidQuery)
	}
	if q.Center == nil {
		if q.RadiusKm != 0 {
			return fmt.Errorf("%w: radius given without a center", ErrInvalidQuery)
		}
		return nil
	}
	if err := geo.ValidateCoordinate(q.Center.Latitude, q.Center.Longitude); err != nil {
		return err
	}
	if !(q.RadiusKm > 0) {
		return fmt.Errorf("%w: radius must be positive", ErrInvalidQuery)
	}
	return nil
}

// pageSize resolves the fetch bound: the requested one capped at max, or def.
func (q Query) pageSize(def, max int) int {
	if q.PageSize <= 0 {
		return def
	}
	if max > 0 && q.PageSize > max {
		return max
	}
	return q.PageSize
}
