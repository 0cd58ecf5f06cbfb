package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// ErrNotFound is returned when a mission id does not exist at all.
var ErrNotFound = errors.New("mission not found")

// MissionStore defines persistence for missions. ClaimPending is the
// single mutual-exclusion point in the system: it must be an atomic
// compare-and-set on status, never a read-then-write.
type MissionStore interface {
	Insert(ctx context.Context, m *models.Mission) error
	Get(ctx context.Context, id string) (*models.Mission, error)

	// ClaimPending assigns the mission to the driver iff it is still
	// pending. claimed=false with a nil error means another driver won
	// the race or the mission left the pool; that outcome is expected.
	ClaimPending(ctx context.Context, id, driverID string, at time.Time) (m *models.Mission, claimed bool, err error)

	// Complete marks the mission done iff it is held by this driver.
	Complete(ctx context.Context, id, driverID string, at time.Time) (*models.Mission, bool, error)

	// Cancel moves the mission to cancelled regardless of holder.
	Cancel(ctx context.Context, id string) (*models.Mission, error)

	// ActiveFor returns the driver's currently accepted mission, if any.
	ActiveFor(ctx context.Context, driverID string) (*models.Mission, error)
}

// MemoryStore is the in-process MissionStore used in tests. Its claim
// path holds one lock so it gives the same at-most-one-winner guarantee
// the Postgres conditional update gives.
type MemoryStore struct {
	mu       sync.Mutex
	missions map[string]*models.Mission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{missions: make(map[string]*models.Mission)}
}

func (s *MemoryStore) Insert(ctx context.Context, m *models.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.missions[m.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ClaimPending(ctx context.Context, id, driverID string, at time.Time) (*models.Mission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if m.Status != models.StatusPending {
		return nil, false, nil
	}
	m.Status = models.StatusAccepted
	m.DriverID = driverID
	t := at
	m.AcceptedAt = &t
	cp := *m
	return &cp, true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id, driverID string, at time.Time) (*models.Mission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if m.Status != models.StatusAccepted || m.DriverID != driverID {
		return nil, false, nil
	}
	m.Status = models.StatusCompleted
	t := at
	m.CompletedAt = &t
	cp := *m
	return &cp, true, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.Status = models.StatusCancelled
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ActiveFor(ctx context.Context, driverID string) (*models.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.missions {
		if m.DriverID == driverID && m.Status == models.StatusAccepted {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}
