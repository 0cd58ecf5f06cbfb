package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// fakeWatcher hands the sample callback to the test so it can simulate
// hardware fixes, including buffered ones delivered after clearWatch.
type fakeWatcher struct {
	mu       sync.Mutex
	onSample func(Sample)
	cleared  bool
	denied   bool
}

func (w *fakeWatcher) Watch(onSample func(Sample)) (func(), error) {
	if w.denied {
		return nil, errors.New("permission denied")
	}
	w.mu.Lock()
	w.onSample = onSample
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.cleared = true
		w.mu.Unlock()
	}, nil
}

func (w *fakeWatcher) fix(loc models.Coord) {
	w.mu.Lock()
	cb := w.onSample
	w.mu.Unlock()
	if cb != nil {
		cb(Sample{Loc: loc, At: time.Now()})
	}
}

type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) PublishLocation(ctx context.Context, pr models.Presence) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

func TestReporterWritesEachSample(t *testing.T) {
	store := NewMemoryStore()
	w := &fakeWatcher{}
	pub := &countingPublisher{}
	r := NewReporter("d1", store, pub, w, slog.Default())
	ctx := context.Background()

	if err := r.GoOnline(ctx); err != nil {
		t.Fatal(err)
	}
	w.fix(models.Coord{Lat: -23.55, Lng: -46.63})
	w.fix(models.Coord{Lat: -23.56, Lng: -46.64})

	p, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Online || p.Loc.Lat != -23.56 {
		t.Fatalf("presence not updated: %+v", p)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.count != 2 {
		t.Fatalf("expected 2 published samples, got %d", pub.count)
	}
}

func TestNoWriteAfterGoOffline(t *testing.T) {
	store := NewMemoryStore()
	w := &fakeWatcher{}
	r := NewReporter("d1", store, nil, w, slog.Default())
	ctx := context.Background()

	_ = r.GoOnline(ctx)
	w.fix(models.Coord{Lat: -23.55, Lng: -46.63})
	if err := r.GoOffline(ctx); err != nil {
		t.Fatal(err)
	}

	// a buffered hardware sample lands after the driver logged out
	w.fix(models.Coord{Lat: 0, Lng: 0})

	p, _ := store.Get(ctx, "d1")
	if p.Online {
		t.Fatal("driver should be offline")
	}
	if p.Loc.Lat == 0 {
		t.Fatal("leaked location write after GoOffline returned")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.cleared {
		t.Fatal("watch handle not released")
	}
}

func TestGoOfflineIdempotent(t *testing.T) {
	store := NewMemoryStore()
	r := NewReporter("d1", store, nil, &fakeWatcher{}, slog.Default())
	ctx := context.Background()
	_ = r.GoOnline(ctx)
	if err := r.GoOffline(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.GoOffline(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestPermissionDenialSurfacesError(t *testing.T) {
	store := NewMemoryStore()
	w := &fakeWatcher{denied: true}
	r := NewReporter("d1", store, nil, w, slog.Default())

	if err := r.GoOnline(context.Background()); err == nil {
		t.Fatal("expected permission error for retry affordance")
	}
	// the driver is still marked online, just without location
	p, _ := store.Get(context.Background(), "d1")
	if !p.Online {
		t.Fatal("denial should degrade to no-location, not offline")
	}
}
