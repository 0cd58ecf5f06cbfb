package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/observability"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/storage"
)

// RejectReason says why a claim did not go through. Losing the race is
// the common case and is not an error.
type RejectReason string

const (
	AlreadyTaken RejectReason = "already_taken"
	DriverBusy   RejectReason = "driver_busy"
	NotTheHolder RejectReason = "not_the_holder"
)

// ClaimOutcome is the first-class result of an accept or complete
// attempt. Exactly one of Mission or Reason is meaningful.
type ClaimOutcome struct {
	Mission *models.Mission
	Reason  RejectReason
}

func (o ClaimOutcome) Accepted() bool { return o.Mission != nil }

// EventEmitter publishes the row change onto the feed so every other
// subscribed driver sees the withdrawal. Emission is best-effort.
type EventEmitter interface {
	Emit(ctx context.Context, ev models.MissionEvent) error
}

// StatsRecorder tracks the driver's daily accepted/finished/rejected
// counters. Optional; failures are logged and swallowed.
type StatsRecorder interface {
	Bump(ctx context.Context, driverID string, delta models.DailyStats) error
}

// Acceptance performs the optimistic-concurrency claim. All mutual
// exclusion lives in the store's conditional update; there is no
// client-side locking to get wrong.
type Acceptance struct {
	store   storage.MissionStore
	emitter EventEmitter // optional
	stats   StatsRecorder
	log     *slog.Logger
	now     func() time.Time
}

func NewAcceptance(store storage.MissionStore, emitter EventEmitter, stats StatsRecorder, log *slog.Logger) *Acceptance {
	return &Acceptance{store: store, emitter: emitter, stats: stats, log: log, now: time.Now}
}

// Accept claims the mission for the driver. A driver already holding an
// accepted mission is refused before touching the pool.
func (a *Acceptance) Accept(ctx context.Context, missionID, driverID string) (ClaimOutcome, error) {
	active, err := a.store.ActiveFor(ctx, driverID)
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("check active mission: %w", err)
	}
	if active != nil {
		return ClaimOutcome{Reason: DriverBusy}, nil
	}

	m, claimed, err := a.store.ClaimPending(ctx, missionID, driverID, a.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ClaimOutcome{Reason: AlreadyTaken}, nil
		}
		return ClaimOutcome{}, fmt.Errorf("claim mission %s: %w", missionID, err)
	}
	if !claimed {
		observability.ClaimsLost.Inc()
		return ClaimOutcome{Reason: AlreadyTaken}, nil
	}
	observability.ClaimsWon.Inc()
	a.log.Info("mission claimed", "mission_id", missionID, "driver_id", driverID)

	a.emit(ctx, models.MissionEvent{Type: models.EventUpdate, Mission: *m})
	a.bump(ctx, driverID, models.DailyStats{Accepted: 1})
	return ClaimOutcome{Mission: m}, nil
}

// Complete closes out the mission; only the assigned driver can do so.
func (a *Acceptance) Complete(ctx context.Context, missionID, driverID string) (ClaimOutcome, error) {
	m, done, err := a.store.Complete(ctx, missionID, driverID, a.now())
	if err != nil {
		return ClaimOutcome{}, fmt.Errorf("complete mission %s: %w", missionID, err)
	}
	if !done {
		return ClaimOutcome{Reason: NotTheHolder}, nil
	}
	a.log.Info("mission completed", "mission_id", missionID, "driver_id", driverID, "earnings", m.Earnings)

	a.emit(ctx, models.MissionEvent{Type: models.EventUpdate, Mission: *m})
	a.bump(ctx, driverID, models.DailyStats{Finished: 1, Earnings: m.Earnings})
	return ClaimOutcome{Mission: m}, nil
}

// Reject is deliberately local: the mission row is untouched and stays
// in the pool for other drivers. The caller excludes the id from its
// own feed so the driver is not nagged with it again this session.
func (a *Acceptance) Reject(ctx context.Context, missionID, driverID string) {
	a.log.Info("mission rejected", "mission_id", missionID, "driver_id", driverID)
	a.bump(ctx, driverID, models.DailyStats{Rejected: 1})
}

func (a *Acceptance) emit(ctx context.Context, ev models.MissionEvent) {
	if a.emitter == nil {
		return
	}
	if err := a.emitter.Emit(ctx, ev); err != nil {
		a.log.Warn("mission event emit failed", "mission_id", ev.Mission.ID, "error", err)
	}
}

func (a *Acceptance) bump(ctx context.Context, driverID string, delta models.DailyStats) {
	if a.stats == nil {
		return
	}
	if err := a.stats.Bump(ctx, driverID, delta); err != nil {
		a.log.Warn("daily stats update failed", "driver_id", driverID, "error", err)
	}
}
