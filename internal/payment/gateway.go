package payment

import (
	"context"

	"ms-questbooking/internal/models"
)

// GatewayIntent is what the payment provider reports about one intent.
type GatewayIntent struct {
	ID           string
	ClientSecret string
	Status       models.IntentStatus
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Gateway is the narrow surface of the external payment provider.
//
// Errors wrapping models.ErrGatewayUnavailable mean the outcome is unknown
// (timeout, 5xx, network). Errors wrapping models.ErrGatewayRejected are
// definite refusals.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, idempotencyKey string, metadata map[string]string) (*GatewayIntent, error)
	GetIntent(ctx context.Context, intentID string) (*GatewayIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
	ParseWebhook(payload []byte, signatureHeader string) (*models.PaymentEvent, error)
}

// IntentStore persists the local mirror of gateway intents.
type IntentStore interface {
	Save(ctx context.Context, intent *models.PaymentIntent) error
	Get(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	UpdateStatus(ctx context.Context, intentID string, status models.IntentStatus) error
}
