package models

import "time"

const (
	EventReservationSettled = "reservation.settled"
	EventPurchaseAbandoned  = "purchase.abandoned"
	EventHoldExpired        = "hold.expired"
)

// Abandonment reasons carried on purchase.abandoned events.
const (
	ReasonPaymentFailed           = "payment_failed"
	ReasonCancelledByUser         = "cancelled_by_user"
	ReasonHoldExpiredAfterPayment = "hold_expired_after_payment"
	ReasonGatewayRejected         = "gateway_rejected"
)

type ReservationEvent struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservation_id,omitempty"`
	IntentID      string    `json:"intent_id,omitempty"`
	HoldID        string    `json:"hold_id,omitempty"`
	QuestID       string    `json:"quest_id"`
	UserID        string    `json:"user_id,omitempty"`
	Quantity      int       `json:"quantity"`
	Amount        int64     `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
