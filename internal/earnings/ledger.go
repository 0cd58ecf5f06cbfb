package earnings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Ledger records driver earnings transactions and answers balance and
// weekly statement queries.
type Ledger interface {
	Record(ctx context.Context, tx *models.Transaction) error
	Transactions(ctx context.Context, driverID, weekID string) ([]models.Transaction, error)
	Balance(ctx context.Context, driverID string) (float64, error)
}

// StatsStore keeps per-day driver counters, upserted on (driver, date).
type StatsStore interface {
	Bump(ctx context.Context, driverID string, delta models.DailyStats) error
	For(ctx context.Context, driverID, date string) (models.DailyStats, error)
}

// WeekID renders the ISO week a timestamp belongs to, the grouping key
// the statement UI filters on.
func WeekID(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// DeliveryTransaction builds the ledger entry for a completed mission.
func DeliveryTransaction(m *models.Mission, at time.Time) *models.Transaction {
	return &models.Transaction{
		ID:        uuid.NewString(),
		DriverID:  m.DriverID,
		Kind:      models.TxDelivery,
		Amount:    m.Earnings,
		WeekID:    WeekID(at),
		MissionID: m.ID,
		CreatedAt: at,
	}
}

// MemoryLedger backs tests and local runs.
type MemoryLedger struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Record(ctx context.Context, tx *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, *tx)
	return nil
}

func (l *MemoryLedger) Transactions(ctx context.Context, driverID, weekID string) ([]models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Transaction
	for _, tx := range l.txs {
		if tx.DriverID != driverID {
			continue
		}
		if weekID != "" && tx.WeekID != weekID {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (l *MemoryLedger) Balance(ctx context.Context, driverID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum float64
	for _, tx := range l.txs {
		if tx.DriverID == driverID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

// MemoryStats backs tests and local runs.
type MemoryStats struct {
	mu   sync.Mutex
	days map[string]models.DailyStats
}

func NewMemoryStats() *MemoryStats { return &MemoryStats{days: make(map[string]models.DailyStats)} }

func statsKey(driverID, date string) string { return driverID + "|" + date }

func (s *MemoryStats) Bump(ctx context.Context, driverID string, delta models.DailyStats) error {
	date := time.Now().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.days[statsKey(driverID, date)]
	d.DriverID = driverID
	d.Date = date
	d.Accepted += delta.Accepted
	d.Finished += delta.Finished
	d.Rejected += delta.Rejected
	d.Earnings += delta.Earnings
	s.days[statsKey(driverID, date)] = d
	return nil
}

func (s *MemoryStats) For(ctx context.Context, driverID, date string) (models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days[statsKey(driverID, date)], nil
}
