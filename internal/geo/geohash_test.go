package geo

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lng       float64
		precision int
		want      string
	}{
		{
			name:      "San Francisco",
			lat:       37.7749,
			lng:       -122.4194,
			precision: 6,
			want:      "9q8yyk",
		},
		{
			name:      "New York",
			lat:       40.7128,
			lng:       -74.0060,
			precision: 6,
			want:      "dr5reg",
		},
		{
			name:      "London",
			lat:       51.5074,
			lng:       -0.1278,
			precision: 6,
			want:      "gcpvj0",
		},
		{
			name:      "Jutland reference point",
			lat:       57.64911,
			lng:       10.40744,
			precision: 11,
			want:      "u4pruydqqvj",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lng, tt.precision)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncode_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lng       float64
		precision int
		wantErr   error
	}{
		{"latitude above range", 90.0001, 0, 9, ErrInvalidCoordinate},
		{"latitude below range", -91, 0, 9, ErrInvalidCoordinate},
		{"longitude above range", 0, 180.5, 9, ErrInvalidCoordinate},
		{"longitude below range", 0, -181, 9, ErrInvalidCoordinate},
		{"NaN latitude", math.NaN(), 0, 9, ErrInvalidCoordinate},
		{"zero precision", 10, 10, 0, ErrInvalidPrecision},
		{"precision too large", 10, 10, 13, ErrInvalidPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lng, tt.precision)
			if got != "" {
				t.Errorf("Encode() = %q, want empty string", got)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Encode() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error %v should match ErrValidation", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error %v should be a *ValidationError", err)
			}
		})
	}
}

func TestEncode_BoundaryCoordinatesAccepted(t *testing.T) {
	corners := [][2]float64{{90, 180}, {-90, -180}, {90, -180}, {-90, 180}, {0, 0}}
	for _, c := range corners {
		hash, err := Encode(c[0], c[1], DefaultPrecision)
		if err != nil {
			t.Errorf("Encode(%v, %v) error = %v", c[0], c[1], err)
			continue
		}
		if len(hash) != DefaultPrecision {
			t.Errorf("Encode(%v, %v) length = %d, want %d", c[0], c[1], len(hash), DefaultPrecision)
		}
	}
}

func TestEncode_PrefixContainment(t *testing.T) {
	points := [][2]float64{
		{-12.1211, -77.0297},
		{37.7749, -122.4194},
		{-33.8688, 151.2093},
		{35.6762, 139.6503},
		{0, 0},
	}

	for _, p := range points {
		prev := ""
		for precision := MinPrecision; precision <= MaxPrecision; precision++ {
			hash, err := Encode(p[0], p[1], precision)
			if err != nil {
				t.Fatalf("Encode(%v, %v, %d) error = %v", p[0], p[1], precision, err)
			}
			if len(hash) != precision {
				t.Errorf("len(Encode(..., %d)) = %d", precision, len(hash))
			}
			if !strings.HasPrefix(hash, prev) {
				t.Errorf("Encode(..., %d) = %s does not extend %s", precision, hash, prev)
			}
			again, _ := Encode(p[0], p[1], precision)
			if again != hash {
				t.Errorf("Encode is not deterministic: %s != %s", again, hash)
			}
			prev = hash
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		hash      string
		wantLat   float64
		wantLng   float64
		tolerance float64
	}{
		{
			name:      "San Francisco",
			hash:      "9q8yyk",
			wantLat:   37.7749,
			wantLng:   -122.4194,
			tolerance: 0.01,
		},
		{
			name:      "New York",
			hash:      "dr5reg",
			wantLat:   40.7128,
			wantLng:   -74.0060,
			tolerance: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLat, gotLng := Decode(tt.hash)
			if math.Abs(gotLat-tt.wantLat) > tt.tolerance {
				t.Errorf("Decode() lat = %v, want %v", gotLat, tt.wantLat)
			}
			if math.Abs(gotLng-tt.wantLng) > tt.tolerance {
				t.Errorf("Decode() lng = %v, want %v", gotLng, tt.wantLng)
			}
		})
	}
}

func TestBounds_ContainEncodedPoint(t *testing.T) {
	lat, lng := -12.1211, -77.0297
	for precision := MinPrecision; precision <= MaxPrecision; precision++ {
		hash, _ := Encode(lat, lng, precision)
		minLat, minLng, maxLat, maxLng := Bounds(hash)
		if lat < minLat || lat > maxLat || lng < minLng || lng > maxLng {
			t.Errorf("cell %s [%v,%v]x[%v,%v] does not contain point", hash, minLat, maxLat, minLng, maxLng)
		}
	}
}

func TestValidPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   bool
	}{
		{"", true},
		{"6mc5", true},
		{"9q8yyk", true},
		{"6mca", false},
		{"ABC", false},
		{"0123456789bcd", false},
	}
	for _, tt := range tests {
		if got := ValidPrefix(tt.prefix); got != tt.want {
			t.Errorf("ValidPrefix(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = Encode(37.7749, -122.4194, DefaultPrecision)
	}
}

func BenchmarkDecode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Decode("9q8yykz7x")
	}
}
