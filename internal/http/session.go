package httpapi

import (
	"sync"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/feed"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/mission"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/presence"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/route"
)

// samplePump adapts HTTP-posted location samples to the reporter's
// watch interface: each POST becomes one "hardware" fix.
type samplePump struct {
	mu sync.Mutex
	cb func(presence.Sample)
}

func (p *samplePump) Watch(onSample func(presence.Sample)) (func(), error) {
	p.mu.Lock()
	p.cb = onSample
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.cb = nil
		p.mu.Unlock()
	}, nil
}

func (p *samplePump) push(loc models.Coord) bool {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(presence.Sample{Loc: loc, At: time.Now()})
	return true
}

// driverSession is the server-side state for one connected driver.
type driverSession struct {
	driverID string
	pump     *samplePump
	reporter *presence.Reporter
	viewport *route.Viewport

	mu      sync.Mutex
	sub     *feed.Subscription
	tracker *mission.Tracker
}

func (s *Server) session(driverID string) *driverSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds, ok := s.sessions[driverID]; ok {
		return ds
	}
	pump := &samplePump{}
	ds := &driverSession{
		driverID: driverID,
		pump:     pump,
		reporter: presence.NewReporter(driverID, s.deps.Presence, s.deps.LocationPub, pump, s.logger),
		viewport: route.NewViewport(),
	}
	s.sessions[driverID] = ds
	return ds
}

func (ds *driverSession) setSubscription(sub *feed.Subscription) {
	ds.mu.Lock()
	old := ds.sub
	ds.sub = sub
	ds.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
}

func (ds *driverSession) subscription() *feed.Subscription {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.sub
}

func (ds *driverSession) setTracker(tr *mission.Tracker) {
	ds.mu.Lock()
	old := ds.tracker
	ds.tracker = tr
	ds.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

func (ds *driverSession) activeTracker() *mission.Tracker {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.tracker
}

// missionOver tears the tracker down and reopens the offer stream.
func (ds *driverSession) missionOver() {
	ds.mu.Lock()
	tr := ds.tracker
	ds.tracker = nil
	sub := ds.sub
	ds.mu.Unlock()
	if tr != nil {
		tr.Stop()
	}
	if sub != nil {
		sub.Resume()
	}
}
