package models

import (
	"time"

	"github.com/uptrace/bun"
)

type IntentStatus string

const (
	IntentCreated   IntentStatus = "created"
	IntentConfirmed IntentStatus = "confirmed"
	IntentFailed    IntentStatus = "failed"
)

// Metadata keys attached to every gateway intent.
const (
	MetaHoldID   = "hold_id"
	MetaQuestID  = "quest_id"
	MetaUserID   = "user_id"
	MetaQuantity = "quantity"
	MetaSlot     = "slot"
)

// PaymentIntent is the local read-only mirror of a gateway payment intent.
type PaymentIntent struct {
	bun.BaseModel `bun:"table:payment_intents"`

	IntentID  string            `bun:"intent_id,pk" json:"intent_id"`
	HoldID    string            `bun:"hold_id,notnull" json:"hold_id"`
	QuestID   string            `bun:"quest_id,notnull" json:"quest_id"`
	UserID    string            `bun:"user_id,notnull" json:"user_id"`
	Quantity  int               `bun:"quantity,notnull" json:"quantity"`
	Amount    int64             `bun:"amount,notnull" json:"amount"`
	Currency  string            `bun:"currency,notnull" json:"currency"`
	Status    IntentStatus      `bun:"status,notnull" json:"status"`
	Metadata  map[string]string `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time         `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	// ClientSecret is handed to the caller once and never stored.
	ClientSecret string `bun:"-" json:"-"`
}

// IntentRequest carries everything the gateway adapter needs to open an intent.
type IntentRequest struct {
	HoldID   string
	QuestID  string
	UserID   string
	Quantity int
	Amount   int64
	Currency string
	Slot     string
}

type PaymentEventType string

const (
	EventPaymentSucceeded PaymentEventType = "payment_intent.succeeded"
	EventPaymentFailed    PaymentEventType = "payment_intent.payment_failed"
	EventPaymentCanceled  PaymentEventType = "payment_intent.canceled"
)

// PaymentEvent is a webhook delivery whose signature has been verified.
type PaymentEvent struct {
	ID       string
	Type     PaymentEventType
	IntentID string
	Status   IntentStatus
	Amount   int64
	Currency string
	Metadata map[string]string
}
