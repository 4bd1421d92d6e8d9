package geo

import (
	"noisemap/internal/domain/entities"
)

// FilterWithinRadius keeps the records whose position lies at most radiusKm
// from center, preserving input order.
//
// This is a linear scan over whatever page the caller fetched. It is not a
// radius query over the whole data set: a record outside the page is never
// returned, however close it is. Records without a usable position are
// skipped and reported through skip, which may be nil.
//
// Go Learning Note — make() with Length 0 and Capacity:
// make([]T, 0, n) pre-allocates room for n elements without setting the
// length, so append never has to grow the backing array during the scan.
func FilterWithinRadius(
	records []*entities.NoiseRecord,
	center entities.Location,
	radiusKm float64,
	skip func(*entities.NoiseRecord),
) []*entities.NoiseRecord {
	kept := make([]*entities.NoiseRecord, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if !rec.HasPosition() {
			if skip != nil {
				skip(rec)
			}
			continue
		}
		d := DistanceKm(center.Latitude, center.Longitude, rec.Position.Latitude, rec.Position.Longitude)
		if d <= radiusKm {
			kept = append(kept, rec)
		}
	}
	return kept
}
