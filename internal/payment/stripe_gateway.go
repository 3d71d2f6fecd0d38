package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-questbooking/internal/config"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway implements Gateway on top of the Stripe API.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

// NewStripeGateway builds a client whose HTTP calls are bounded by the
// configured request timeout.
func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	sc := client.New(cfg.SecretKey, stripe.NewBackends(httpClient))
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return NewStripeGatewayWithClient(sc, cfg.WebhookSecret, log), nil
}

func NewStripeGatewayWithClient(sc *client.API, webhookSecret string, log *logger.Logger) *StripeGateway {
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &StripeGateway{client: sc, webhookSecret: webhookSecret, log: log}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency, idempotencyKey string, metadata map[string]string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		Metadata: metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey("hold-" + idempotencyKey)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError("create payment intent", err)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Payment intent created: %s (%d %s)", pi.ID, amount, currency))
	return toGatewayIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, models.ErrIntentNotFound
		}
		return nil, classifyStripeError("retrieve payment intent", err)
	}
	return toGatewayIntent(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.client.PaymentIntents.Cancel(intentID, params); err != nil {
		return classifyStripeError("cancel payment intent", err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header before decoding anything.
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", models.ErrInvalidSignature)
	}
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	}

	out := &models.PaymentEvent{
		ID:   event.ID,
		Type: models.PaymentEventType(event.Type),
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return out, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", models.ErrMalformedEvent, event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	gi := toGatewayIntent(&pi)
	out.IntentID = gi.ID
	out.Status = gi.Status
	out.Amount = gi.Amount
	out.Currency = gi.Currency
	out.Metadata = gi.Metadata
	switch out.Type {
	case models.EventPaymentFailed, models.EventPaymentCanceled:
		out.Status = models.IntentFailed
	case models.EventPaymentSucceeded:
		out.Status = models.IntentConfirmed
	}
	return out, nil
}

func toGatewayIntent(pi *stripe.PaymentIntent) *GatewayIntent {
	return &GatewayIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapStripeStatus(pi),
		Amount:       pi.Amount,
		Currency:     strings.ToLower(string(pi.Currency)),
		Metadata:     pi.Metadata,
	}
}

func mapStripeStatus(pi *stripe.PaymentIntent) models.IntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.IntentConfirmed
	case stripe.PaymentIntentStatusCanceled:
		return models.IntentFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// Stripe drops a failed attempt back to requires_payment_method.
		if pi.LastPaymentError != nil {
			return models.IntentFailed
		}
	}
	return models.IntentCreated
}

// classifyStripeError separates definite refusals from unknown outcomes.
// Timeouts, transport failures, rate limits and 5xx answers may or may not
// have reached Stripe.
func classifyStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode == 0 {
			return fmt.Errorf("%s: %w: %v", op, models.ErrGatewayUnavailable, err)
		}
		return fmt.Errorf("%s: %w: %v", op, models.ErrGatewayRejected, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrGatewayUnavailable, err)
}
