package geo

import (
	"fmt"
	"math"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Haversine distance in meters.
func Haversine(a, b models.Coord) float64 {
	const R = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// GridPrecision is the decimal precision coordinates are snapped to when
// used as cache keys. Four places is roughly an 11 meter cell, coarse
// enough to absorb GPS jitter.
const GridPrecision = 4

// Snap rounds a coordinate onto the stable grid.
func Snap(c models.Coord) models.Coord {
	scale := math.Pow10(GridPrecision)
	return models.Coord{
		Lat: math.Round(c.Lat*scale) / scale,
		Lng: math.Round(c.Lng*scale) / scale,
	}
}

// CellKey renders a set of coordinates as a single stable cache key.
// Coordinates that snap to the same cells always produce the same key.
func CellKey(coords ...models.Coord) string {
	key := ""
	for i, c := range coords {
		s := Snap(c)
		if i > 0 {
			key += ";"
		}
		key += fmt.Sprintf("%.*f,%.*f", GridPrecision, s.Lat, GridPrecision, s.Lng)
	}
	return key
}

// CellSeed derives a deterministic seed from a snapped coordinate so
// auxiliary overlays render identically for near-identical positions.
func CellSeed(c models.Coord) int64 {
	s := Snap(c)
	scale := math.Pow10(GridPrecision)
	lat := int64(math.Round(s.Lat * scale))
	lng := int64(math.Round(s.Lng * scale))
	// FNV-style mix, good enough for visual determinism
	seed := int64(1469598103934665603)
	for _, v := range []int64{lat, lng} {
		seed ^= v
		seed *= 1099511628211
	}
	return seed
}
