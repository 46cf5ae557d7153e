package telemetry

import "math"

const earthRadius = 6371000.0 // mean Earth radius in metres

// LookAngles is the station-relative geometry for a payload position.
type LookAngles struct {
	Bearing          float64 // Initial great-circle bearing in degrees true, [0, 360)
	Elevation        float64 // Elevation angle in degrees, negative below the horizon
	GroundDistance   float64 // Great-circle distance along the ground in metres
	StraightDistance float64 // Straight-line slant range in metres
}

// PositionInfo computes bearing, elevation and range from the station to a
// payload position using a spherical great-circle model: haversine for the
// ground distance, the initial-bearing formula, and a flat-earth elevation
// correction for Earth curvature (d^2 / 2R drop over ground distance d).
// Accuracy is well within a rotator's pointing tolerance at balloon ranges.
func PositionInfo(station StationPosition, lat, lon, alt float64) LookAngles {
	lat1 := station.Latitude * math.Pi / 180
	lat2 := lat * math.Pi / 180
	dLat := (lat - station.Latitude) * math.Pi / 180
	dLon := (lon - station.Longitude) * math.Pi / 180

	// Haversine ground distance.
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	ground := 2 * earthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	// Initial bearing.
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}

	// Elevation: height difference reduced by the curvature drop across
	// the ground distance.
	dAlt := alt - station.Altitude
	drop := ground * ground / (2 * earthRadius)
	var elevation float64
	if ground > 0 {
		elevation = math.Atan2(dAlt-drop, ground) * 180 / math.Pi
	} else if dAlt > 0 {
		elevation = 90
	}

	return LookAngles{
		Bearing:          bearing,
		Elevation:        elevation,
		GroundDistance:   ground,
		StraightDistance: math.Sqrt(ground*ground + dAlt*dAlt),
	}
}
