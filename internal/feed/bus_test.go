package feed

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

func waitForSubscribers(t *testing.T, bus *Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		bus.mu.Lock()
		got := len(bus.subs)
		bus.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers", n)
}

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	f := New(bus.Source(), slog.Default())
	g := New(bus.Source(), slog.Default())

	recA, recB := &recorder{}, &recorder{}
	subA := f.Subscribe(recA.offer, recA.withdraw)
	defer subA.Unsubscribe()
	subB := g.Subscribe(recB.offer, recB.withdraw)
	defer subB.Unsubscribe()

	waitForSubscribers(t, bus, 2)

	// someone accepts m1; every subscribed instance sees the withdrawal
	bus.Publish(pendingInsert("m1"))
	bus.Publish(acceptedUpdate("m1"))

	for _, rec := range []*recorder{recA, recB} {
		offers, withdrawn := rec.counts()
		if offers != 1 || withdrawn != 1 {
			t.Fatalf("subscriber saw offers=%d withdrawn=%d", offers, withdrawn)
		}
	}
}

func TestBusUnsubscribeReleasesSubscriber(t *testing.T) {
	bus := NewBus(nil)
	f := New(bus.Source(), slog.Default())
	sub := f.Subscribe(func(models.Mission) {}, func(string) {})
	waitForSubscribers(t, bus, 1)
	sub.Unsubscribe()
	waitForSubscribers(t, bus, 0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.MissionEvent
}

func (s *recordingSink) Emit(ctx context.Context, ev models.MissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func TestBusEmitForwardsToSink(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(sink)
	if err := bus.Emit(context.Background(), pendingInsert("m1")); err != nil {
		t.Fatal(err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 {
		t.Fatalf("sink received %d events", len(sink.events))
	}
}
