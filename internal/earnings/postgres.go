package earnings

import (
	"context"
	"database/sql"
	"time"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

// PostgresLedger persists transactions and daily stats, sharing the
// mission store's connection pool.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Record(ctx context.Context, tx *models.Transaction) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO transactions
		(id, driver_id, kind, amount, week_id, mission_id, reference, created_at)
		VALUES($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8)`,
		tx.ID, tx.DriverID, tx.Kind, tx.Amount, tx.WeekID, tx.MissionID, tx.Reference, tx.CreatedAt)
	return err
}

func (l *PostgresLedger) Transactions(ctx context.Context, driverID, weekID string) ([]models.Transaction, error) {
	q := `SELECT id, driver_id, kind, amount, week_id, COALESCE(mission_id, ''), COALESCE(reference, ''), created_at
		FROM transactions WHERE driver_id=$1`
	args := []any{driverID}
	if weekID != "" {
		q += ` AND week_id=$2`
		args = append(args, weekID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.DriverID, &tx.Kind, &tx.Amount, &tx.WeekID, &tx.MissionID, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Balance(ctx context.Context, driverID string) (float64, error) {
	var sum float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE driver_id=$1`, driverID).Scan(&sum)
	return sum, err
}

func (l *PostgresLedger) Bump(ctx context.Context, driverID string, delta models.DailyStats) error {
	date := time.Now().Format("2006-01-02")
	_, err := l.db.ExecContext(ctx, `INSERT INTO daily_stats
		(driver_id, date, accepted, finished, rejected, earnings)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (driver_id, date) DO UPDATE SET
			accepted = daily_stats.accepted + EXCLUDED.accepted,
			finished = daily_stats.finished + EXCLUDED.finished,
			rejected = daily_stats.rejected + EXCLUDED.rejected,
			earnings = daily_stats.earnings + EXCLUDED.earnings`,
		driverID, date, delta.Accepted, delta.Finished, delta.Rejected, delta.Earnings)
	return err
}

func (l *PostgresLedger) For(ctx context.Context, driverID, date string) (models.DailyStats, error) {
	d := models.DailyStats{DriverID: driverID, Date: date}
	err := l.db.QueryRowContext(ctx, `SELECT accepted, finished, rejected, earnings
		FROM daily_stats WHERE driver_id=$1 AND date=$2`, driverID, date).
		Scan(&d.Accepted, &d.Finished, &d.Rejected, &d.Earnings)
	if err == sql.ErrNoRows {
		return d, nil
	}
	return d, err
}
