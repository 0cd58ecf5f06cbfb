package presence

import (
	"context"
	"sync"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Store persists driver presence records. Writes for one driver always
// come from that driver's own reporter, so implementations only need to
// tolerate concurrent readers.
type Store interface {
	UpdateLocation(ctx context.Context, driverID string, loc models.Coord, at time.Time) error
	SetOnline(ctx context.Context, driverID string, online bool) error
	Get(ctx context.Context, driverID string) (models.Presence, error)
}

// MemoryStore is the in-process Store used in tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Presence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Presence)}
}

func (m *MemoryStore) UpdateLocation(ctx context.Context, driverID string, loc models.Coord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.records[driverID]
	p.DriverID = driverID
	p.Loc = loc
	p.LastUpdate = at
	m.records[driverID] = p
	return nil
}

func (m *MemoryStore) SetOnline(ctx context.Context, driverID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.records[driverID]
	p.DriverID = driverID
	p.Online = online
	m.records[driverID] = p
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, driverID string) (models.Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[driverID]
	if !ok {
		return models.Presence{}, ErrUnknownDriver
	}
	return p, nil
}

var ErrUnknownDriver = &UnknownDriverError{}

type UnknownDriverError struct{}

func (e *UnknownDriverError) Error() string { return "unknown driver" }
