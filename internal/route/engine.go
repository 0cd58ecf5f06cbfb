package route

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/geo"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/observability"
)

// Engine computes routes for the current leg(s) of a mission and
// memoizes them by grid-snapped coordinates, so GPS jitter between two
// renders never turns into a second provider call.
type Engine struct {
	router Router
	ttl    time.Duration
	log    *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	path Path
	ts   time.Time
}

func NewEngine(router Router, ttl time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		router: router,
		ttl:    ttl,
		log:    log,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// ComputeRoute returns the routed path from origin through one or two
// waypoints (store, then customer). A provider failure returns ok=false
// and the caller simply suppresses route display; it must never crash
// anything downstream.
func (e *Engine) ComputeRoute(ctx context.Context, origin models.Coord, waypoints []models.Coord) (Path, bool) {
	if len(waypoints) == 0 || len(waypoints) > 2 {
		return Path{}, false
	}

	key := geo.CellKey(append([]models.Coord{origin}, waypoints...)...)
	e.mu.Lock()
	if ent, ok := e.cache[key]; ok && e.now().Sub(ent.ts) <= e.ttl {
		e.mu.Unlock()
		observability.RouteCacheHits.Inc()
		return ent.path, true
	}
	e.mu.Unlock()

	path, err := e.router.Route(ctx, origin, waypoints)
	if err != nil {
		observability.RouteFailures.Inc()
		e.log.Warn("route computation failed", "error", err)
		return Path{}, false
	}
	observability.RoutesComputed.Inc()

	e.mu.Lock()
	e.cache[key] = cacheEntry{path: path, ts: e.now()}
	e.mu.Unlock()
	return path, true
}

// Invalidate drops all cached paths, e.g. when the mission changes leg.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cacheEntry)
}
