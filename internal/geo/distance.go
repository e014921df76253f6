package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(radians(lat1))*math.Cos(radians(lat2))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

func radians(d float64) float64 {
	return d * math.Pi / 180
}

// BoundingBox returns a latitude/longitude box containing every point within
// radiusM meters of the center. A degree of longitude shrinks toward the
// poles, so the east-west span widens by 1/cos(lat). Callers still need an
// exact distance pass; the box only over-approximates.
func BoundingBox(lat, lng, radiusM float64) (minLat, maxLat, minLng, maxLng float64) {
	latDelta := radiusM / 111320.0
	lngDelta := 180.0
	if c := math.Cos(radians(lat)); c > 1e-6 {
		lngDelta = latDelta / c
	}
	return lat - latDelta, lat + latDelta, lng - lngDelta, lng + lngDelta
}
