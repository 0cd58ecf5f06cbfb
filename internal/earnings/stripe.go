package earnings

import (
	"context"
	"fmt"
	"math"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/transfer"

	"github.com/google/uuid"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// Payer moves a driver's balance to their connected account.
type Payer interface {
	Transfer(ctx context.Context, amountCents int64, currency, destination string) (string, error)
}

// StripePayer is a thin wrapper around stripe-go transfers.
type StripePayer struct{}

// NewStripePayer initializes the stripe client with the given API key.
func NewStripePayer(apiKey string) *StripePayer {
	stripe.Key = apiKey
	return &StripePayer{}
}

func (s *StripePayer) Transfer(ctx context.Context, amountCents int64, currency, destination string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destination),
	}
	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

// Payout settles the driver's current balance: transfers the funds and
// records a negating ledger entry so Balance drops to zero.
func Payout(ctx context.Context, ledger Ledger, payer Payer, driverID, currency, destination string) (*models.Transaction, error) {
	balance, err := ledger.Balance(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance <= 0 {
		return nil, fmt.Errorf("nothing to pay out for %s", driverID)
	}

	cents := int64(math.Round(balance * 100))
	transferID, err := payer.Transfer(ctx, cents, currency, destination)
	if err != nil {
		return nil, fmt.Errorf("stripe transfer: %w", err)
	}

	now := time.Now()
	tx := &models.Transaction{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		Kind:      models.TxPayout,
		Amount:    -balance,
		WeekID:    WeekID(now),
		Reference: transferID,
		CreatedAt: now,
	}
	if err := ledger.Record(ctx, tx); err != nil {
		return nil, fmt.Errorf("record payout: %w", err)
	}
	return tx, nil
}
