// Package geodesy provides the spherical-earth math the geofence pipeline
// needs on-device: great-circle distance and geohash encoding.
package geodesy

import (
	"math"
	"strings"
)

// earthRadiusMeters is the mean earth radius used by the Haversine formula.
const earthRadiusMeters = 6371000.0

// Distance returns the Haversine great-circle distance in meters between two
// WGS84 coordinates. Symmetric in its arguments; zero for identical points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

const geohashBase32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash returns the geohash of a coordinate at the given precision
// (number of base32 characters, clamped to [1, 12]). Deterministic: identical
// inputs always yield identical output, which is what makes it usable as a
// coarse spatial cache key.
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	evenBit := true
	idx := 0
	bit := 0

	for sb.Len() < precision {
		if evenBit {
			mid := (lonLo + lonHi) / 2
			if lon >= mid {
				idx = idx*2 + 1
				lonLo = mid
			} else {
				idx = idx * 2
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				idx = idx*2 + 1
				latLo = mid
			} else {
				idx = idx * 2
				latHi = mid
			}
		}
		evenBit = !evenBit

		bit++
		if bit == 5 {
			sb.WriteByte(geohashBase32[idx])
			bit = 0
			idx = 0
		}
	}

	return sb.String()
}
