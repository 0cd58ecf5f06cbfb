package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

func pendingMission(id string) *models.Mission {
	return &models.Mission{
		ID:        id,
		Status:    models.StatusPending,
		StoreName: "Padaria Central",
		Earnings:  12.50,
		CreatedAt: time.Now(),
	}
}

func TestClaimPendingExactlyOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Insert(ctx, pendingMission("m1")); err != nil {
		t.Fatal(err)
	}

	drivers := []string{"driver-a", "driver-b", "driver-c", "driver-d"}
	var wg sync.WaitGroup
	wins := make([]bool, len(drivers))
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			_, claimed, err := s.ClaimPending(ctx, "m1", d, time.Now())
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			wins[i] = claimed
		}(i, d)
	}
	wg.Wait()

	winners := 0
	winner := ""
	for i, won := range wins {
		if won {
			winners++
			winner = drivers[i]
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	m, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != models.StatusAccepted || m.DriverID != winner {
		t.Fatalf("final row %v/%v does not match winner %s", m.Status, m.DriverID, winner)
	}
}

func TestClaimAfterWinnerStillRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, pendingMission("m1"))

	if _, claimed, _ := s.ClaimPending(ctx, "m1", "driver-a", time.Now()); !claimed {
		t.Fatal("first claim should win")
	}
	// a retry by the loser must stay rejected: pending is gone
	if _, claimed, err := s.ClaimPending(ctx, "m1", "driver-b", time.Now()); claimed || err != nil {
		t.Fatalf("expected rejection, claimed=%v err=%v", claimed, err)
	}
}

func TestClaimCancelledMissionRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, pendingMission("m1"))
	if _, err := s.Cancel(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, claimed, err := s.ClaimPending(ctx, "m1", "driver-a", time.Now()); claimed || err != nil {
		t.Fatalf("expected rejection on cancelled mission, claimed=%v err=%v", claimed, err)
	}
}

func TestClaimUnknownMission(t *testing.T) {
	s := NewMemoryStore()
	if _, _, err := s.ClaimPending(context.Background(), "nope", "driver-a", time.Now()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteOnlyByHolder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, pendingMission("m1"))
	_, _, _ = s.ClaimPending(ctx, "m1", "driver-a", time.Now())

	if _, done, _ := s.Complete(ctx, "m1", "driver-b", time.Now()); done {
		t.Fatal("non-holder must not complete the mission")
	}
	m, done, err := s.Complete(ctx, "m1", "driver-a", time.Now())
	if err != nil || !done {
		t.Fatalf("holder completion failed: done=%v err=%v", done, err)
	}
	if m.Status != models.StatusCompleted || m.CompletedAt == nil {
		t.Fatalf("unexpected completed row: %+v", m)
	}
}

func TestActiveFor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, pendingMission("m1"))
	_ = s.Insert(ctx, pendingMission("m2"))

	if m, err := s.ActiveFor(ctx, "driver-a"); err != nil || m != nil {
		t.Fatalf("expected no active mission, got %v err=%v", m, err)
	}
	_, _, _ = s.ClaimPending(ctx, "m2", "driver-a", time.Now())
	m, err := s.ActiveFor(ctx, "driver-a")
	if err != nil || m == nil || m.ID != "m2" {
		t.Fatalf("expected m2 active, got %v err=%v", m, err)
	}
	_, _, _ = s.Complete(ctx, "m2", "driver-a", time.Now())
	if m, _ := s.ActiveFor(ctx, "driver-a"); m != nil {
		t.Fatalf("completed mission should not be active, got %v", m)
	}
}
