package proj

import (
	"math"
)

// EarthRadius is the mean Earth radius in meters used by the local projection
const EarthRadius = 6371000.0

const degToRad = math.Pi / 180.0

// LocalMeters converts (lat, lon) into x/y meters east/north of (refLat, refLon)
// with an equirectangular approximation. The cosine correction uses the mean
// latitude of both points; accuracy drops with distance from the reference.
func LocalMeters(lat, lon, refLat, refLon float64) (x, y float64) {
	lat1 := refLat * degToRad
	lat2 := lat * degToRad
	dLon := (lon - refLon) * degToRad

	x = EarthRadius * dLon * math.Cos((lat1+lat2)/2)
	y = EarthRadius * (lat2 - lat1)

	return x, y
}

// Round2 rounds to two decimals, halves toward +Inf
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
