package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

var ErrNoSession = errors.New("no websocket session")

// Envelope is the typed frame pushed to a driver session.
type Envelope struct {
	Kind      string          `json:"kind"` // offer | withdrawn | cancelled
	Mission   *models.Mission `json:"mission,omitempty"`
	MissionID string          `json:"mission_id,omitempty"`
}

// Session wraps one driver connection; writes are serialized because
// gorilla connections allow a single concurrent writer.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// Registry holds the connected driver sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{sessions: make(map[string]*Session), log: log}
}

func (r *Registry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[driverID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[driverID] = &Session{conn: conn}
}

func (r *Registry) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[driverID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, driverID)
	}
}

// Offer pushes a new pending mission to one driver.
func (r *Registry) Offer(driverID string, m models.Mission) error {
	return r.sendTo(driverID, Envelope{Kind: "offer", Mission: &m})
}

// Withdraw tells one driver a previously offered mission left the pool.
func (r *Registry) Withdraw(driverID, missionID string) error {
	return r.sendTo(driverID, Envelope{Kind: "withdrawn", MissionID: missionID})
}

// Broadcast fans an envelope to every connected session; drivers not
// reachable right now are skipped, the feed dedupe makes redelivery safe.
func (r *Registry) Broadcast(env Envelope) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		if err := r.sendTo(id, env); err != nil {
			r.log.Warn("ws push failed", "driver_id", id, "error", err)
		}
	}
}

func (r *Registry) sendTo(driverID string, env Envelope) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(env)
}
