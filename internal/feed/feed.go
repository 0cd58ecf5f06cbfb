package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/observability"
)

// Source delivers raw mission change events. Delivery is at-least-once
// and ordered per mission only; Run blocks until ctx is done and must
// stop calling deliver once it returns.
type Source interface {
	Run(ctx context.Context, deliver func(models.MissionEvent)) error
}

// Feed turns the raw change stream into driver-facing offer and
// withdrawal callbacks, deduplicating by mission id.
type Feed struct {
	src Source
	log *slog.Logger
}

func New(src Source, log *slog.Logger) *Feed {
	return &Feed{src: src, log: log}
}

// Subscription is one driver's live view of the pending pool.
type Subscription struct {
	mu       sync.Mutex
	closed   bool
	paused   bool
	offered  map[string]bool
	excluded map[string]bool
	cancel   context.CancelFunc
	done     chan struct{}

	onOffer     func(models.Mission)
	onWithdrawn func(missionID string)
}

// Subscribe starts streaming offers. Callbacks run on the source
// goroutine; once Unsubscribe returns no callback fires again, even if
// the transport still has buffered events.
func (f *Feed) Subscribe(onOffer func(models.Mission), onWithdrawn func(missionID string)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		offered:     make(map[string]bool),
		excluded:    make(map[string]bool),
		cancel:      cancel,
		done:        make(chan struct{}),
		onOffer:     onOffer,
		onWithdrawn: onWithdrawn,
	}
	go func() {
		defer close(sub.done)
		if err := f.src.Run(ctx, sub.handle); err != nil && ctx.Err() == nil {
			f.log.Error("mission source stopped", "error", err)
		}
	}()
	return sub
}

func (s *Subscription) handle(ev models.MissionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	m := ev.Mission
	switch {
	case ev.Type == models.EventInsert && m.Status == models.StatusPending:
		if s.paused || s.offered[m.ID] || s.excluded[m.ID] {
			return // duplicate delivery or locally rejected
		}
		s.offered[m.ID] = true
		observability.OffersSurfaced.Inc()
		s.onOffer(m)
	case ev.Type == models.EventUpdate && m.Status != models.StatusPending:
		if !s.offered[m.ID] {
			return
		}
		delete(s.offered, m.ID)
		observability.OffersWithdrawn.Inc()
		s.onWithdrawn(m.ID)
	}
}

// Exclude stops a mission from being re-offered on this subscription.
// Used after a local rejection; the mission stays in the pool for
// everyone else.
func (s *Subscription) Exclude(missionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded[missionID] = true
	delete(s.offered, missionID)
}

// Pause suppresses new offers while the driver holds an accepted
// mission. Withdrawals keep flowing so stale offers still clear.
func (s *Subscription) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *Subscription) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Unsubscribe releases the underlying stream. Safe to call repeatedly.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}
