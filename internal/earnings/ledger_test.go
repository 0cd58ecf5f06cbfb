package earnings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

func TestBalanceFoldsAllEntries(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	now := time.Now()

	entries := []*models.Transaction{
		{ID: "t1", DriverID: "d1", Kind: models.TxDelivery, Amount: 12.5, WeekID: WeekID(now), CreatedAt: now},
		{ID: "t2", DriverID: "d1", Kind: models.TxBonus, Amount: 5, WeekID: WeekID(now), CreatedAt: now},
		{ID: "t3", DriverID: "d2", Kind: models.TxDelivery, Amount: 99, WeekID: WeekID(now), CreatedAt: now},
	}
	for _, tx := range entries {
		if err := l.Record(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	b, err := l.Balance(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if b != 17.5 {
		t.Fatalf("balance %f", b)
	}
}

func TestTransactionsWeekFilter(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	thisWeek := time.Now()
	lastWeek := thisWeek.AddDate(0, 0, -7)
	_ = l.Record(ctx, &models.Transaction{ID: "t1", DriverID: "d1", Amount: 10, WeekID: WeekID(thisWeek)})
	_ = l.Record(ctx, &models.Transaction{ID: "t2", DriverID: "d1", Amount: 20, WeekID: WeekID(lastWeek)})

	txs, err := l.Transactions(ctx, "d1", WeekID(lastWeek))
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].ID != "t2" {
		t.Fatalf("week filter wrong: %+v", txs)
	}
}

func TestDeliveryTransactionFromMission(t *testing.T) {
	now := time.Now()
	m := &models.Mission{ID: "m1", DriverID: "d1", Earnings: 14.9}
	tx := DeliveryTransaction(m, now)
	if tx.DriverID != "d1" || tx.MissionID != "m1" || tx.Amount != 14.9 {
		t.Fatalf("bad transaction %+v", tx)
	}
	if tx.Kind != models.TxDelivery || tx.WeekID != WeekID(now) || tx.ID == "" {
		t.Fatalf("bad transaction %+v", tx)
	}
}

type fakePayer struct {
	calls int
	cents int64
	fail  bool
}

func (f *fakePayer) Transfer(ctx context.Context, amountCents int64, currency, destination string) (string, error) {
	f.calls++
	f.cents = amountCents
	if f.fail {
		return "", errors.New("stripe down")
	}
	return "tr_123", nil
}

func TestPayoutZeroesBalance(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	now := time.Now()
	_ = l.Record(ctx, &models.Transaction{ID: "t1", DriverID: "d1", Amount: 30.25, WeekID: WeekID(now), CreatedAt: now})

	p := &fakePayer{}
	tx, err := Payout(ctx, l, p, "d1", "brl", "acct_d1")
	if err != nil {
		t.Fatal(err)
	}
	if p.cents != 3025 {
		t.Fatalf("transferred %d cents", p.cents)
	}
	if tx.Kind != models.TxPayout || tx.Reference != "tr_123" {
		t.Fatalf("bad payout tx %+v", tx)
	}
	b, _ := l.Balance(ctx, "d1")
	if b != 0 {
		t.Fatalf("balance after payout %f", b)
	}
}

func TestPayoutFailureLeavesLedgerUntouched(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	_ = l.Record(ctx, &models.Transaction{ID: "t1", DriverID: "d1", Amount: 10})

	p := &fakePayer{fail: true}
	if _, err := Payout(ctx, l, p, "d1", "brl", "acct_d1"); err == nil {
		t.Fatal("expected transfer error")
	}
	b, _ := l.Balance(ctx, "d1")
	if b != 10 {
		t.Fatalf("balance mutated on failed payout: %f", b)
	}
}

func TestPayoutEmptyBalanceRefused(t *testing.T) {
	l := NewMemoryLedger()
	p := &fakePayer{}
	if _, err := Payout(context.Background(), l, p, "d1", "brl", "acct_d1"); err == nil {
		t.Fatal("expected refusal with no balance")
	}
	if p.calls != 0 {
		t.Fatal("transfer must not be attempted")
	}
}

func TestStatsBumpAccumulates(t *testing.T) {
	s := NewMemoryStats()
	ctx := context.Background()
	_ = s.Bump(ctx, "d1", models.DailyStats{Accepted: 1})
	_ = s.Bump(ctx, "d1", models.DailyStats{Finished: 1, Earnings: 12.5})

	d, err := s.For(ctx, "d1", time.Now().Format("2006-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Accepted != 1 || d.Finished != 1 || d.Earnings != 12.5 {
		t.Fatalf("stats wrong: %+v", d)
	}
}
