package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MissionStatus is the closed set of persisted mission states.
type MissionStatus string

const (
	StatusPending   MissionStatus = "pending"
	StatusAccepted  MissionStatus = "accepted"
	StatusCompleted MissionStatus = "completed"
	StatusCancelled MissionStatus = "cancelled"
)

// Terminal reports whether a mission can no longer change state.
func (s MissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Mission is one delivery task spanning a store pickup and a customer
// dropoff. DriverID is set exactly when status is accepted or completed.
type Mission struct {
	ID               string        `json:"id"`
	Status           MissionStatus `json:"status"`
	StoreName        string        `json:"store_name"`
	StoreAddress     string        `json:"store_address"`
	StoreCoord       Coord         `json:"store_coord"`
	CustomerAddress  string        `json:"customer_address"`
	CustomerCoord    Coord         `json:"customer_coord"`
	DriverID         string        `json:"driver_id,omitempty"`
	Earnings         float64       `json:"earnings"`
	DistanceToStore  float64       `json:"distance_to_store_km"`
	DeliveryDistance float64       `json:"delivery_distance_km"`
	CreatedAt        time.Time     `json:"created_at"`
	AcceptedAt       *time.Time    `json:"accepted_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

func (m Mission) TotalDistance() float64 {
	return m.DistanceToStore + m.DeliveryDistance
}

// MissionEventType mirrors the row-level change kinds the feed transports.
type MissionEventType string

const (
	EventInsert MissionEventType = "insert"
	EventUpdate MissionEventType = "update"
)

// MissionEvent is one change-feed notification. Events for the same
// mission arrive in commit order; across missions there is no ordering
// and delivery is at-least-once.
type MissionEvent struct {
	Type    MissionEventType `json:"type"`
	Mission Mission          `json:"mission"`
}

// DriverPhase is the driver-side progression through an accepted mission.
type DriverPhase string

const (
	PhaseOffline           DriverPhase = "OFFLINE"
	PhaseOnline            DriverPhase = "ONLINE"
	PhaseGoingToStore      DriverPhase = "GOING_TO_STORE"
	PhaseArrivedAtStore    DriverPhase = "ARRIVED_AT_STORE"
	PhasePickingUp         DriverPhase = "PICKING_UP"
	PhaseGoingToCustomer   DriverPhase = "GOING_TO_CUSTOMER"
	PhaseArrivedAtCustomer DriverPhase = "ARRIVED_AT_CUSTOMER"
)

// Presence is one driver's live online/location state. The record is
// single-writer: only the owning driver's client mutates it.
type Presence struct {
	DriverID   string    `json:"driver_id"`
	Online     bool      `json:"online"`
	Loc        Coord     `json:"loc"`
	LastUpdate time.Time `json:"last_update"`
}

// FreshnessWindow is how recent a presence update must be to be trusted.
const FreshnessWindow = 5 * time.Minute

// Stale reports whether the record is too old to trust, regardless of
// the Online flag.
func (p Presence) Stale(now time.Time) bool {
	return p.StaleWithin(now, FreshnessWindow)
}

// StaleWithin is Stale with a caller-chosen window.
func (p Presence) StaleWithin(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastUpdate) > window
}

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	TxDelivery TransactionKind = "delivery"
	TxBonus    TransactionKind = "bonus"
	TxPayout   TransactionKind = "payout"
)

// Transaction is one earnings ledger entry for a driver.
type Transaction struct {
	ID        string          `json:"id"`
	DriverID  string          `json:"driver_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    float64         `json:"amount"`
	WeekID    string          `json:"week_id"`
	MissionID string          `json:"mission_id,omitempty"`
	Reference string          `json:"reference,omitempty"` // external id, e.g. stripe transfer
	CreatedAt time.Time       `json:"created_at"`
}

// DailyStats aggregates one driver's day, upserted on (driver, date).
type DailyStats struct {
	DriverID string  `json:"driver_id"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Accepted int     `json:"accepted"`
	Finished int     `json:"finished"`
	Rejected int     `json:"rejected"`
	Earnings float64 `json:"earnings"`
}
