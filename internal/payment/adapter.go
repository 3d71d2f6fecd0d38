package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
)

// Adapter opens payment intents, verifies webhook deliveries and keeps the
// local intent mirror in step with what the gateway reports. It holds no
// inventory logic.
type Adapter struct {
	gateway  Gateway
	store    IntentStore
	log      *logger.Logger
	currency string
	now      func() time.Time
}

func NewAdapter(gateway Gateway, store IntentStore, log *logger.Logger, defaultCurrency string) *Adapter {
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	if defaultCurrency == "" {
		defaultCurrency = "usd"
	}
	return &Adapter{
		gateway:  gateway,
		store:    store,
		log:      log,
		currency: strings.ToLower(defaultCurrency),
		now:      time.Now,
	}
}

// CreateIntent asks the gateway for a new intent tagged with the hold, quest
// and user, then records it locally with status created. The hold id doubles
// as the gateway idempotency key so a retried request never opens a second
// intent for the same hold.
func (a *Adapter) CreateIntent(ctx context.Context, req models.IntentRequest) (*models.PaymentIntent, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = a.currency
	}
	metadata := map[string]string{
		models.MetaHoldID:   req.HoldID,
		models.MetaQuestID:  req.QuestID,
		models.MetaUserID:   req.UserID,
		models.MetaQuantity: strconv.Itoa(req.Quantity),
	}
	if req.Slot != "" {
		metadata[models.MetaSlot] = req.Slot
	}

	gi, err := a.gateway.CreatePaymentIntent(ctx, req.Amount, currency, req.HoldID, metadata)
	if err != nil {
		a.log.Error("PAYMENT", fmt.Sprintf("Failed to create intent for hold %s: %v", req.HoldID, err))
		return nil, err
	}

	now := a.now().UTC()
	intent := &models.PaymentIntent{
		IntentID:     gi.ID,
		HoldID:       req.HoldID,
		QuestID:      req.QuestID,
		UserID:       req.UserID,
		Quantity:     req.Quantity,
		Amount:       req.Amount,
		Currency:     currency,
		Status:       models.IntentCreated,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
		ClientSecret: gi.ClientSecret,
	}
	// The gateway metadata carries everything reconciliation needs, so a
	// failed mirror write does not fail the purchase.
	if err := a.store.Save(ctx, intent); err != nil {
		a.log.Error("PAYMENT", fmt.Sprintf("Failed to mirror intent %s locally: %v", gi.ID, err))
	}

	a.log.Info("PAYMENT", fmt.Sprintf("Created intent %s for hold %s (%d %s)", gi.ID, req.HoldID, req.Amount, currency))
	return intent, nil
}

// VerifyEvent authenticates a webhook delivery. Nothing is mutated here.
func (a *Adapter) VerifyEvent(payload []byte, signatureHeader string) (*models.PaymentEvent, error) {
	event, err := a.gateway.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSignature) {
			a.log.LogSecurity("INVALID_SIGNATURE", fmt.Sprintf("Rejected webhook delivery: %v", err))
		}
		return nil, err
	}
	return event, nil
}

// Lookup returns the local mirror of an intent, rebuilding it from gateway
// metadata when the mirror write was lost.
func (a *Adapter) Lookup(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := a.store.Get(ctx, intentID)
	if err == nil {
		return intent, nil
	}
	if !errors.Is(err, models.ErrIntentNotFound) {
		return nil, err
	}

	gi, err := a.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	intent, err = IntentFromMetadata(gi.ID, gi.Amount, gi.Currency, gi.Metadata)
	if err != nil {
		return nil, models.ErrIntentNotFound
	}
	intent.Status = gi.Status
	intent.CreatedAt = a.now().UTC()
	if err := a.store.Save(ctx, intent); err != nil {
		a.log.Warn("PAYMENT", fmt.Sprintf("Failed to restore mirror for intent %s: %v", intentID, err))
	}
	return intent, nil
}

// RefreshStatus re-queries the gateway and records the answer locally.
func (a *Adapter) RefreshStatus(ctx context.Context, intentID string) (*GatewayIntent, error) {
	gi, err := a.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	a.RecordStatus(ctx, intentID, gi.Status)
	return gi, nil
}

// RecordStatus updates the mirror. Failures are logged only; the gateway
// stays the source of truth for intent status.
func (a *Adapter) RecordStatus(ctx context.Context, intentID string, status models.IntentStatus) {
	if err := a.store.UpdateStatus(ctx, intentID, status); err != nil && !errors.Is(err, models.ErrIntentNotFound) {
		a.log.Warn("PAYMENT", fmt.Sprintf("Failed to record status %s for intent %s: %v", status, intentID, err))
	}
}

// CancelIntent cancels an unpaid intent at the gateway.
func (a *Adapter) CancelIntent(ctx context.Context, intentID string) error {
	if err := a.gateway.CancelPaymentIntent(ctx, intentID); err != nil {
		return err
	}
	a.RecordStatus(ctx, intentID, models.IntentFailed)
	a.log.Info("PAYMENT", fmt.Sprintf("Cancelled intent %s", intentID))
	return nil
}

// IntentFromMetadata rebuilds the purchase context carried on a gateway intent.
func IntentFromMetadata(intentID string, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	holdID := metadata[models.MetaHoldID]
	questID := metadata[models.MetaQuestID]
	if intentID == "" || holdID == "" || questID == "" {
		return nil, fmt.Errorf("%w: intent %q lacks hold or quest metadata", models.ErrMalformedEvent, intentID)
	}
	qty, err := strconv.Atoi(metadata[models.MetaQuantity])
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("%w: intent %q has bad quantity %q", models.ErrMalformedEvent, intentID, metadata[models.MetaQuantity])
	}
	return &models.PaymentIntent{
		IntentID: intentID,
		HoldID:   holdID,
		QuestID:  questID,
		UserID:   metadata[models.MetaUserID],
		Quantity: qty,
		Amount:   amount,
		Currency: strings.ToLower(currency),
		Status:   models.IntentCreated,
		Metadata: metadata,
	}, nil
}
