package feed

import (
	"context"
	"sync"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Bus fans mission events out to any number of in-process subscribers.
// courierd publishes its own row mutations here and pumps the Kafka
// change feed into it, so subscriptions behave the same whether the
// event originated locally or on another node.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]func(models.MissionEvent)
	next    int
	forward EventSink // optional, e.g. the Kafka emitter
}

// EventSink receives events for transport beyond this process.
type EventSink interface {
	Emit(ctx context.Context, ev models.MissionEvent) error
}

func NewBus(forward EventSink) *Bus {
	return &Bus{subs: make(map[int]func(models.MissionEvent)), forward: forward}
}

// Publish delivers to local subscribers only. Used when replaying
// events that already came off the wire.
func (b *Bus) Publish(ev models.MissionEvent) {
	b.mu.Lock()
	handlers := make([]func(models.MissionEvent), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Emit delivers locally and forwards to the wire sink. Implements the
// emitter the acceptance service publishes through.
func (b *Bus) Emit(ctx context.Context, ev models.MissionEvent) error {
	b.Publish(ev)
	if b.forward == nil {
		return nil
	}
	return b.forward.Emit(ctx, ev)
}

// Source returns a fresh Source view of the bus; each Run registers its
// own subscriber and unregisters when the context ends.
func (b *Bus) Source() Source {
	return &busSource{bus: b}
}

type busSource struct {
	bus *Bus
}

func (s *busSource) Run(ctx context.Context, deliver func(models.MissionEvent)) error {
	s.bus.mu.Lock()
	id := s.bus.next
	s.bus.next++
	s.bus.subs[id] = deliver
	s.bus.mu.Unlock()

	<-ctx.Done()

	s.bus.mu.Lock()
	delete(s.bus.subs, id)
	s.bus.mu.Unlock()
	return nil
}
