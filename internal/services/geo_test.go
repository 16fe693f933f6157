package services

import (
	"math"
	"testing"
)

func TestDistanceKmIdenticalPointsIsZero(t *testing.T) {
	if d := DistanceKm(43.6532, -79.3832, 43.6532, -79.3832); d != 0 {
		t.Fatalf("distance = %v, want 0", d)
	}
}

func TestDistanceKmIsSymmetric(t *testing.T) {
	points := [][2]float64{
		{43.6532, -79.3832},
		{45.5017, -73.5673},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9, 179.9},
	}
	for _, a := range points {
		for _, b := range points {
			ab := DistanceKm(a[0], a[1], b[0], b[1])
			ba := DistanceKm(b[0], b[1], a[0], a[1])
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("distance(%v,%v) = %v but distance(%v,%v) = %v", a, b, ab, b, a, ba)
			}
			if ab < 0 {
				t.Errorf("distance(%v,%v) = %v, want >= 0", a, b, ab)
			}
		}
	}
}

func TestDistanceKmKnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"one degree of latitude", 0, 0, 1, 0, 111.195, 0.01},
		{"antipodal points", 0, 0, 0, 180, math.Pi * earthRadiusKm, 1e-6},
		{"toronto to montreal", 43.6532, -79.3832, 45.5017, -73.5673, 504, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Fatalf("distance = %.4f, want %.4f ± %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{43.65, -79.38, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := ValidCoordinates(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidCoordinates(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}
