// Package entities defines the core domain models of the noise map: the
// submitted NoiseRecord, the aggregate rows produced by the analytics
// engine, and the keys of the denormalized counters kept alongside records.
// They live in the innermost layer of the architecture and have no
// dependencies on databases, HTTP, or external services.
package entities

import (
	"math"
	"time"
)

// Kind is a typed string enum naming how a measurement was captured.
//
// Go Learning Note — Type Aliases for Enums:
// Go doesn't have a native enum keyword. The idiomatic pattern is to define a
// named type and declare constants of that type. String-based enums are
// preferred when the value will be serialized to JSON or stored in a database,
// because they're human-readable.
type Kind string

const (
	KindManual    Kind = "manual"
	KindAutomatic Kind = "automatic"
	KindComplaint Kind = "complaint"
	KindPhoto     Kind = "photo"
)

// AllKinds lists every valid Kind in a stable order.
var AllKinds = []Kind{KindManual, KindAutomatic, KindComplaint, KindPhoto}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindManual, KindAutomatic, KindComplaint, KindPhoto:
		return true
	}
	return false
}

// NoiseRecord is one community-submitted sound level measurement.
//
// ID, OwnerID, Kind, Level, Position, SpatialKey and Timestamp are fixed at
// creation. Only the descriptive fields and Visible may change afterwards.
// Level and Position are nil when a stored row lacks them.
type NoiseRecord struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Kind       Kind      `json:"kind"`
	Level      *float64  `json:"level,omitempty"`
	Position   *Location `json:"position,omitempty"`
	SpatialKey string    `json:"spatial_key"`
	Address    string    `json:"address,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Visible    bool      `json:"visible"`

	ComplaintOrigin string `json:"complaint_origin,omitempty"`
	ComplaintImpact string `json:"complaint_impact,omitempty"`
	Sensation       string `json:"sensation,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

// HasPosition reports whether the record carries an in-range coordinate
// pair usable for distance computations.
func (r *NoiseRecord) HasPosition() bool {
	if r.Position == nil {
		return false
	}
	lat, lng := r.Position.Latitude, r.Position.Longitude
	return !math.IsNaN(lat) && !math.IsNaN(lng) &&
		lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HasLevel reports whether Level is a usable non-negative reading.
func (r *NoiseRecord) HasLevel() bool {
	return FiniteLevel(r.Level) && *r.Level >= 0
}

// FiniteLevel reports whether level is set to a finite number, i.e. one that
// can be stored and encoded as JSON.
func FiniteLevel(level *float64) bool {
	return level != nil && !math.IsNaN(*level) && !math.IsInf(*level, 0)
}

// LevelOf returns a pointer to a decibel reading.
func LevelOf(db float64) *float64 {
	return &db
}

// HasTimestamp reports whether the record has a creation instant.
func (r *NoiseRecord) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// Clone returns a deep copy so stores never hand out their internal state.
func (r *NoiseRecord) Clone() *NoiseRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Level != nil {
		c.Level = LevelOf(*r.Level)
	}
	if r.Position != nil {
		p := *r.Position
		c.Position = &p
	}
	return &c
}
