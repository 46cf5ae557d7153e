package telemetry

import (
	"math"
	"testing"
)

func TestPositionInfo_CardinalBearings(t *testing.T) {
	station := StationPosition{Latitude: -34.0, Longitude: 138.0, Altitude: 50}

	tests := []struct {
		name        string
		lat, lon    float64
		wantBearing float64
	}{
		{"due north", -33.0, 138.0, 0},
		{"due south", -35.0, 138.0, 180},
		{"due east", -34.0, 139.0, 90},
		{"due west", -34.0, 137.0, 270},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			la := PositionInfo(station, tc.lat, tc.lon, 10000)
			// East/west bearings pick up a fraction of a degree of
			// convergence at this latitude.
			if math.Abs(la.Bearing-tc.wantBearing) > 0.5 {
				t.Errorf("bearing = %.2f, want %.2f", la.Bearing, tc.wantBearing)
			}
		})
	}
}

func TestPositionInfo_Ranges(t *testing.T) {
	station := StationPosition{Latitude: -34.0, Longitude: 138.0}

	// One degree of latitude is about 111.2 km of ground range.
	la := PositionInfo(station, -33.0, 138.0, 30000)
	if math.Abs(la.GroundDistance-111200) > 1000 {
		t.Errorf("ground distance = %.0f m, want ~111200 m", la.GroundDistance)
	}
	if la.StraightDistance <= la.GroundDistance {
		t.Errorf("straight distance %.0f should exceed ground distance %.0f for an elevated target",
			la.StraightDistance, la.GroundDistance)
	}
}

func TestPositionInfo_Elevation(t *testing.T) {
	station := StationPosition{Latitude: -34.0, Longitude: 138.0, Altitude: 0}

	// 10 km up at ~11 km ground range: elevation just over 42 degrees
	// (curvature drop is negligible at this range).
	la := PositionInfo(station, -33.9, 138.0, 10000)
	want := math.Atan2(10000, la.GroundDistance) * 180 / math.Pi
	if math.Abs(la.Elevation-want) > 0.2 {
		t.Errorf("elevation = %.2f, want ~%.2f", la.Elevation, want)
	}

	// A distant target at the same altitude as the station sits below the
	// horizon due to Earth curvature.
	far := PositionInfo(station, -30.0, 138.0, 0)
	if far.Elevation >= 0 {
		t.Errorf("elevation = %.2f, want negative for distant target at station altitude", far.Elevation)
	}
}

func TestPositionInfo_Overhead(t *testing.T) {
	station := StationPosition{Latitude: -34.0, Longitude: 138.0, Altitude: 0}

	la := PositionInfo(station, -34.0, 138.0, 5000)
	if la.Elevation != 90 {
		t.Errorf("elevation = %.2f, want 90 for an overhead target", la.Elevation)
	}
	if la.StraightDistance != 5000 {
		t.Errorf("straight distance = %.0f, want 5000", la.StraightDistance)
	}
}
