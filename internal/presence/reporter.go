package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/observability"
)

// Sample is one device position fix.
type Sample struct {
	Loc models.Coord
	At  time.Time
}

// PositionWatcher abstracts the device geolocation source. Watch starts
// continuous delivery and returns a handle that stops it; a permission
// denial is reported as the returned error so callers can surface a
// retry affordance instead of crashing.
type PositionWatcher interface {
	Watch(onSample func(Sample)) (clear func(), err error)
}

// Reporter pushes each position sample to the presence store and the
// location stream. Writes are fire-and-forget: a failed write is logged
// and the next sample overwrites it.
type Reporter struct {
	driverID string
	store    Store
	pub      Publisher // optional
	watcher  PositionWatcher
	log      *slog.Logger

	mu      sync.Mutex
	clear   func()
	stopped bool
}

func NewReporter(driverID string, store Store, pub Publisher, watcher PositionWatcher, log *slog.Logger) *Reporter {
	return &Reporter{driverID: driverID, store: store, pub: pub, watcher: watcher, log: log}
}

// GoOnline flips the presence flag and starts sampling.
func (r *Reporter) GoOnline(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clear != nil {
		return nil // already sampling
	}
	if err := r.store.SetOnline(ctx, r.driverID, true); err != nil {
		return err
	}
	clear, err := r.watcher.Watch(r.handleSample)
	if err != nil {
		// degrade to "no location": stay online but without samples
		r.log.Warn("position watch unavailable", "driver_id", r.driverID, "error", err)
		return err
	}
	r.clear = clear
	r.stopped = false
	return nil
}

// GoOffline stops sampling and flips the presence flag. Safe to call
// repeatedly; once it returns, no further location write is issued even
// if the watcher delivers a buffered sample.
func (r *Reporter) GoOffline(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clear != nil {
		r.clear()
		r.clear = nil
	}
	r.stopped = true
	return r.store.SetOnline(ctx, r.driverID, false)
}

func (r *Reporter) handleSample(s Sample) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.store.UpdateLocation(ctx, r.driverID, s.Loc, s.At); err != nil {
		observability.PresenceWriteErrors.Inc()
		r.log.Warn("presence write failed", "driver_id", r.driverID, "error", err)
		return
	}
	observability.PresenceWrites.Inc()

	if r.pub != nil {
		p := models.Presence{DriverID: r.driverID, Online: true, Loc: s.Loc, LastUpdate: s.At}
		if err := r.pub.PublishLocation(ctx, p); err != nil {
			r.log.Warn("location publish failed", "driver_id", r.driverID, "error", err)
		}
	}
}
