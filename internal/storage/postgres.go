package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/marcioafsadv/GUEPARDO-ENTREGADOR/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the handle for migrations and the earnings ledger, which
// share the connection pool.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

const missionColumns = `id, status, store_name, store_address, store_lat, store_lng,
	customer_address, customer_lat, customer_lng, COALESCE(driver_id, ''), earnings,
	distance_to_store_km, delivery_distance_km, created_at, accepted_at, completed_at`

func (p *PostgresStore) Insert(ctx context.Context, m *models.Mission) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO missions
		(id, status, store_name, store_address, store_lat, store_lng,
		 customer_address, customer_lat, customer_lng, earnings,
		 distance_to_store_km, delivery_distance_km, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.Status, m.StoreName, m.StoreAddress, m.StoreCoord.Lat, m.StoreCoord.Lng,
		m.CustomerAddress, m.CustomerCoord.Lat, m.CustomerCoord.Lng, m.Earnings,
		m.DistanceToStore, m.DeliveryDistance, m.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Mission, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=$1`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ClaimPending is the atomic claim: the WHERE clause only matches a row
// still in the pending pool, so under any interleaving of concurrent
// claims exactly one driver gets the row back.
func (p *PostgresStore) ClaimPending(ctx context.Context, id, driverID string, at time.Time) (*models.Mission, bool, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE missions
		SET status=$1, driver_id=$2, accepted_at=$3
		WHERE id=$4 AND status=$5
		RETURNING `+missionColumns,
		models.StatusAccepted, driverID, at, id, models.StatusPending)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race or the mission left the pool; distinguish a
		// missing id so callers can report it as a real error
		if _, gerr := p.Get(ctx, id); errors.Is(gerr, ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (p *PostgresStore) Complete(ctx context.Context, id, driverID string, at time.Time) (*models.Mission, bool, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE missions
		SET status=$1, completed_at=$2
		WHERE id=$3 AND driver_id=$4 AND status=$5
		RETURNING `+missionColumns,
		models.StatusCompleted, at, id, driverID, models.StatusAccepted)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (p *PostgresStore) Cancel(ctx context.Context, id string) (*models.Mission, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE missions SET status=$1 WHERE id=$2 RETURNING `+missionColumns,
		models.StatusCancelled, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (p *PostgresStore) ActiveFor(ctx context.Context, driverID string) (*models.Mission, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions
		WHERE driver_id=$1 AND status=$2`, driverID, models.StatusAccepted)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*models.Mission, error) {
	var m models.Mission
	var acceptedAt, completedAt sql.NullTime
	err := row.Scan(&m.ID, &m.Status, &m.StoreName, &m.StoreAddress,
		&m.StoreCoord.Lat, &m.StoreCoord.Lng,
		&m.CustomerAddress, &m.CustomerCoord.Lat, &m.CustomerCoord.Lng,
		&m.DriverID, &m.Earnings, &m.DistanceToStore, &m.DeliveryDistance,
		&m.CreatedAt, &acceptedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.Time
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}
