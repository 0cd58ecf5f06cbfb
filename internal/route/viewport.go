package route

import (
	"math/rand"
	"sync"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/geo"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Bounds is the rectangle a map consumer should fit.
type Bounds struct {
	SW models.Coord
	NE models.Coord
}

func boundsOf(points []models.Coord) Bounds {
	b := Bounds{SW: points[0], NE: points[0]}
	for _, p := range points[1:] {
		if p.Lat < b.SW.Lat {
			b.SW.Lat = p.Lat
		}
		if p.Lng < b.SW.Lng {
			b.SW.Lng = p.Lng
		}
		if p.Lat > b.NE.Lat {
			b.NE.Lat = p.Lat
		}
		if p.Lng > b.NE.Lng {
			b.NE.Lng = p.Lng
		}
	}
	return b
}

// Viewport decides when the map may re-fit around the route. Once the
// user pans or zooms by hand, automatic fitting is suppressed until an
// explicit recenter, so the engine never fights the user's gestures.
type Viewport struct {
	mu         sync.Mutex
	interacted bool
	bounds     Bounds
	hasBounds  bool
}

func NewViewport() *Viewport { return &Viewport{} }

// Fit proposes new bounds. It reports whether the consumer should
// actually apply them.
func (v *Viewport) Fit(points []models.Coord) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bounds = boundsOf(points)
	v.hasBounds = true
	if v.interacted {
		return Bounds{}, false
	}
	return v.bounds, true
}

// UserInteracted records a manual pan/zoom.
func (v *Viewport) UserInteracted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.interacted = true
}

// Recenter clears the interaction flag and returns the last known
// bounds so the consumer can snap back.
func (v *Viewport) Recenter() (Bounds, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.interacted = false
	return v.bounds, v.hasBounds
}

// OverlayCircle is an auxiliary demand-heat marker around the driver.
type OverlayCircle struct {
	Center models.Coord `json:"center"`
	Radius float64      `json:"radius_m"`
	Hot    bool         `json:"hot"`
}

// DemandOverlay renders pseudo-random heat circles near the driver.
// The generator is seeded from the snapped grid cell, so repeated
// renders at near-identical positions produce identical circles instead
// of flickering.
func DemandOverlay(center models.Coord, count int) []OverlayCircle {
	snapped := geo.Snap(center)
	rng := rand.New(rand.NewSource(geo.CellSeed(center)))
	out := make([]OverlayCircle, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, OverlayCircle{
			Center: models.Coord{
				Lat: snapped.Lat + (rng.Float64()-0.5)*0.02,
				Lng: snapped.Lng + (rng.Float64()-0.5)*0.02,
			},
			Radius: 300 + rng.Float64()*200,
			Hot:    i%2 == 0,
		})
	}
	return out
}
