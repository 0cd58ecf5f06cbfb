package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/feed"
	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// ErrMissionOver is returned by Advance once the tracker reached a
// terminal state (cancelled externally or delivered).
var ErrMissionOver = errors.New("mission is over")

var phaseOrder = []models.DriverPhase{
	models.PhaseGoingToStore,
	models.PhaseArrivedAtStore,
	models.PhasePickingUp,
	models.PhaseGoingToCustomer,
	models.PhaseArrivedAtCustomer,
}

// Tracker supervises one accepted mission. Phase transitions come only
// from explicit driver actions; in parallel it watches the change feed
// for that single mission so an external cancellation terminates the
// trip immediately instead of leaving the driver riding to a store
// that no longer wants them.
type Tracker struct {
	missionID string
	src       feed.Source
	log       *slog.Logger

	mu        sync.Mutex
	phaseIdx  int
	cancelled bool
	finished  bool
	watchErr  error

	onCancelled func()
	onError     func(error)

	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewTracker(missionID string, src feed.Source, log *slog.Logger) *Tracker {
	return &Tracker{missionID: missionID, src: src, log: log}
}

// Start begins supervision. onCancelled fires at most once, when the
// counterpart cancels the mission. onError reports a broken watch
// stream; the tracker keeps its state and Retry restarts the stream.
func (t *Tracker) Start(onCancelled func(), onError func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	t.onCancelled = onCancelled
	t.onError = onError
	t.startWatchLocked()
}

func (t *Tracker) startWatchLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.watchErr = nil
	go t.watch(ctx)
}

func (t *Tracker) watch(ctx context.Context) {
	defer close(t.done)
	err := t.src.Run(ctx, t.handle)
	if err == nil || ctx.Err() != nil {
		return
	}
	// A dead watch would silently hide a cancellation; surface it as a
	// retryable state rather than freezing.
	t.mu.Lock()
	t.watchErr = err
	cb := t.onError
	t.mu.Unlock()
	t.log.Warn("mission watch failed", "mission_id", t.missionID, "error", err)
	if cb != nil {
		cb(err)
	}
}

func (t *Tracker) handle(ev models.MissionEvent) {
	if ev.Mission.ID != t.missionID {
		return
	}
	if ev.Mission.Status != models.StatusCancelled {
		return
	}
	t.mu.Lock()
	if t.cancelled || t.finished || t.stopped {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	cb := t.onCancelled
	t.mu.Unlock()
	t.log.Info("mission cancelled by counterpart", "mission_id", t.missionID)
	if cb != nil {
		cb()
	}
}

// Retry restarts a watch that previously reported an error.
func (t *Tracker) Retry() {
	t.mu.Lock()
	if t.stopped || t.cancelled || t.watchErr == nil {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	t.mu.Lock()
	if !t.stopped {
		t.startWatchLocked()
	}
	t.mu.Unlock()
}

// Phase returns the current leg of the trip.
func (t *Tracker) Phase() models.DriverPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.finished {
		return models.PhaseOnline
	}
	return phaseOrder[t.phaseIdx]
}

// Cancelled reports whether the counterpart withdrew the mission.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Err returns the pending watch error, if the stream is broken.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watchErr
}

// Advance moves to the next phase on a driver action. Arriving at the
// customer is the last phase; completing the delivery is a separate
// Acceptance.Complete call, after which Finish retires the tracker.
func (t *Tracker) Advance() (models.DriverPhase, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.finished {
		return models.PhaseOnline, ErrMissionOver
	}
	if t.phaseIdx+1 >= len(phaseOrder) {
		return phaseOrder[t.phaseIdx], fmt.Errorf("already at %s", phaseOrder[t.phaseIdx])
	}
	t.phaseIdx++
	return phaseOrder[t.phaseIdx], nil
}

// Finish marks the mission delivered and retires the tracker.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
	t.Stop()
}

// Stop tears down the watch. Idempotent; once it returns, neither
// callback fires again.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.onCancelled = nil
	t.onError = nil
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
