package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const ReservationConfirmed ReservationStatus = "confirmed"

// Reservation is the durable record of a settled purchase. IntentID is unique.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ReservationID string            `bun:"reservation_id,pk" json:"reservation_id"`
	IntentID      string            `bun:"intent_id,notnull,unique" json:"intent_id"`
	QuestID       string            `bun:"quest_id,notnull" json:"quest_id"`
	UserID        string            `bun:"user_id,notnull" json:"user_id"`
	Quantity      int               `bun:"quantity,notnull" json:"quantity"`
	Amount        int64             `bun:"amount,notnull" json:"amount"`
	Currency      string            `bun:"currency,notnull" json:"currency"`
	Slot          string            `bun:"slot,nullzero" json:"slot,omitempty"`
	Status        ReservationStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time         `bun:"created_at,notnull" json:"created_at"`
}

type ReservationInput struct {
	IntentID string
	QuestID  string
	UserID   string
	Quantity int
	Amount   int64
	Currency string
	Slot     string
}
