package models

import "time"

type HoldRequest struct {
	QuestID  string `json:"questId"`
	Quantity int    `json:"quantity"`
	Slot     string `json:"slot,omitempty"`
}

type HoldResponse struct {
	HoldID       string    `json:"holdId"`
	IntentID     string    `json:"intentId"`
	ClientSecret string    `json:"clientSecret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type ConfirmRequest struct {
	IntentID string `json:"intentId"`
}

type ConfirmResponse struct {
	ReservationID string    `json:"reservationId"`
	QuestID       string    `json:"questId"`
	Quantity      int       `json:"quantity"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
}

type AttemptState string

const (
	AttemptAwaitingConfirmation AttemptState = "awaiting_confirmation"
	AttemptSettled              AttemptState = "settled"
	AttemptAbandoned            AttemptState = "abandoned"
)

type PurchaseStatus struct {
	IntentID      string       `json:"intentId"`
	State         AttemptState `json:"state"`
	HoldState     HoldState    `json:"holdState"`
	IntentStatus  IntentStatus `json:"intentStatus"`
	ReservationID string       `json:"reservationId,omitempty"`
}
