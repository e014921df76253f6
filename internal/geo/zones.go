package geo

import "math"

// ZoneUnknown is returned when no rule matches the coordinates.
const ZoneUnknown = "UNKNOWN"

// ZoneRule is a latitude/longitude bounding box mapped to a zone id. Bounds
// are inclusive; use math.Inf for open sides.
type ZoneRule struct {
	ID     string
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// ZoneTable resolves coordinates to zones, first matching rule wins.
type ZoneTable []ZoneRule

// DefaultZones is the city's production partition.
func DefaultZones() ZoneTable {
	inf := math.Inf(1)
	return ZoneTable{
		{ID: "ZONE-DT-01", MinLat: 31.93, MaxLat: 31.96, MinLng: 35.90, MaxLng: 35.93},
		{ID: "ZONE-N-03", MinLat: 31.96, MaxLat: inf, MinLng: 35.90, MaxLng: inf},
		{ID: "ZONE-W-02", MinLat: -inf, MaxLat: 31.93, MinLng: -inf, MaxLng: 35.90},
	}
}

// Lookup maps a point to its zone id, ZoneUnknown if no rule covers it.
func (t ZoneTable) Lookup(lat, lng float64) string {
	for _, r := range t {
		if lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng {
			return r.ID
		}
	}
	return ZoneUnknown
}
