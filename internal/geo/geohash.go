// Package geo implements the spatial primitives used by the noise map:
// geohash encoding of record positions, great-circle distance, and the
// radius filter applied to a fetched page of records.
//
// Go Learning Note — What is a Geohash?
// A geohash is a way to encode a latitude/longitude pair into a short string.
// The key property is that nearby locations share a common prefix, and a
// longer hash always describes a sub-cell of every shorter prefix of itself.
// That makes "all records in this cell" a plain string-prefix range query.
//
// Precision determines the cell size:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~38 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~5 m      12 → ~3.7 cm
//
// Records are keyed at precision 9, small enough to tell two sides of a
// street apart.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// base32 is the geohash character set (32 characters). Note that 'a', 'i',
// 'l', and 'o' are excluded to avoid confusion with digits 0/1.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

const (
	// DefaultPrecision is the precision of the spatial key stored with
	// every record.
	DefaultPrecision = 9
	MinPrecision     = 1
	MaxPrecision     = 12
)

var (
	// ErrValidation matches every input validation failure of this package.
	ErrValidation        = errors.New("geo: validation failed")
	ErrInvalidCoordinate = fmt.Errorf("%w: coordinate out of range", ErrValidation)
	ErrInvalidPrecision  = fmt.Errorf("%w: precision out of range", ErrValidation)
)

// ValidationError reports which input was rejected and why.
//
// Go Learning Note — Custom Error Types:
// Implementing Unwrap lets callers keep using errors.Is against the sentinel
// values above while still getting the offending field and value when they
// need them through errors.As.
type ValidationError struct {
	Field string
	Value float64
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s=%v", e.Err, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var base32Map = map[byte]int{}

func init() {
	for i := 0; i < len(base32); i++ {
		base32Map[base32[i]] = i
	}
}

// ValidateCoordinate rejects latitudes outside [-90, 90], longitudes outside
// [-180, 180] and NaN values. Values are never clamped.
func ValidateCoordinate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Value: lat, Err: ErrInvalidCoordinate}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return &ValidationError{Field: "lng", Value: lng, Err: ErrInvalidCoordinate}
	}
	return nil
}

// Encode converts latitude and longitude to a geohash string with the given
// precision.
//
// Algorithm overview (binary interleaving):
//  1. Start with the full range: lat [-90, 90], lng [-180, 180]
//  2. Alternate between longitude (even bits) and latitude (odd bits)
//  3. For each step, bisect the range and set bit=1 if value >= midpoint
//  4. Every 5 bits are encoded as one base32 character
//
// Go Learning Note — strings.Builder:
// strings.Builder is the idiomatic way to efficiently build strings in Go.
// It minimizes memory allocations by using an internal byte buffer. Never
// build strings with repeated concatenation (s += "x") in a loop.
func Encode(lat, lng float64, precision int) (string, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return "", &ValidationError{Field: "precision", Value: float64(precision), Err: ErrInvalidPrecision}
	}
	if err := ValidateCoordinate(lat, lng); err != nil {
		return "", err
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String(), nil
}

// Bounds replays the binary subdivision of hash and returns its cell as
// (minLat, minLng, maxLat, maxLng). Characters outside the alphabet are
// skipped.
func Bounds(hash string) (minLat, minLng, maxLat, maxLng float64) {
	minLat, maxLat = -90.0, 90.0
	minLng, maxLng = -180.0, 180.0
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Map[hash[i]]
		if !ok {
			continue
		}
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (minLng + maxLng) / 2
				if bit == 1 {
					minLng = mid
				} else {
					maxLng = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if bit == 1 {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isEven = !isEven
		}
	}
	return
}

// Decode returns the center of the cell encoded by hash.
func Decode(hash string) (lat, lng float64) {
	minLat, minLng, maxLat, maxLng := Bounds(hash)
	return (minLat + maxLat) / 2, (minLng + maxLng) / 2
}

// ValidPrefix reports whether every character of prefix belongs to the
// geohash alphabet. The empty prefix is valid and matches everything.
func ValidPrefix(prefix string) bool {
	if len(prefix) > MaxPrecision {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if _, ok := base32Map[prefix[i]]; !ok {
			return false
		}
	}
	return true
}
