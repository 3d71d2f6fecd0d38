package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-questbooking/internal/config"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
	"ms-questbooking/internal/payment"
)

type Inventory interface {
	EnsureQuest(ctx context.Context, questID string, available int64) (bool, error)
	Hold(ctx context.Context, questID string, quantity int, ttl time.Duration) (*models.Hold, error)
	Commit(ctx context.Context, holdID string) (models.CommitOutcome, error)
	Release(ctx context.Context, holdID string) error
	Inspect(ctx context.Context, holdID string) (models.HoldInfo, error)
	Sweep(ctx context.Context, batch int64) ([]models.Hold, error)
}

type Payments interface {
	CreateIntent(ctx context.Context, req models.IntentRequest) (*models.PaymentIntent, error)
	VerifyEvent(payload []byte, signatureHeader string) (*models.PaymentEvent, error)
	Lookup(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	RefreshStatus(ctx context.Context, intentID string) (*payment.GatewayIntent, error)
	RecordStatus(ctx context.Context, intentID string, status models.IntentStatus)
	CancelIntent(ctx context.Context, intentID string) error
}

type Reservations interface {
	CreateIfAbsent(ctx context.Context, in models.ReservationInput) (*models.Reservation, bool, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Reservation, error)
}

type Catalog interface {
	GetQuest(ctx context.Context, questID string) (*models.Quest, error)
}

type Options struct {
	HoldTTL     time.Duration
	MaxQuantity int
	Currency    string
	SweepBatch  int64
	Topics      config.TopicConfig
	Retry       RetryPolicy
}

// Reconciler turns the two unordered payment confirmation signals (the
// client's confirm call and the gateway webhook) into exactly one inventory
// commit and one reservation per intent. It keeps no per-intent state of its
// own: the ledger tombstones and the reservation unique index decide every
// race, so any number of instances can run side by side.
type Reconciler struct {
	inventory    Inventory
	payments     Payments
	reservations Reservations
	catalog      Catalog
	events       *eventSink
	log          *logger.Logger
	opts         Options
}

func NewReconciler(inv Inventory, pay Payments, res Reservations, cat Catalog, pub Publisher, log *logger.Logger, opts Options) *Reconciler {
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 15 * time.Minute
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = 20
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 200
	}
	opts.Currency = strings.ToLower(opts.Currency)
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &Reconciler{
		inventory:    inv,
		payments:     pay,
		reservations: res,
		catalog:      cat,
		events:       &eventSink{pub: pub, topics: opts.Topics, log: log, now: time.Now},
		log:          log,
		opts:         opts,
	}
}

// StartPurchase holds tickets and opens a payment intent for them.
func (r *Reconciler) StartPurchase(ctx context.Context, userID string, req models.HoldRequest) (*models.HoldResponse, error) {
	if strings.TrimSpace(req.QuestID) == "" {
		return nil, fmt.Errorf("%w: questId is required", models.ErrInvalidRequest)
	}
	if req.Quantity <= 0 || req.Quantity > r.opts.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", models.ErrInvalidQuantity, r.opts.MaxQuantity)
	}

	quest, err := r.catalog.GetQuest(ctx, req.QuestID)
	if err != nil {
		return nil, err
	}
	if _, err := r.inventory.EnsureQuest(ctx, quest.ID, quest.TicketsAvailable); err != nil {
		return nil, err
	}

	hold, err := r.inventory.Hold(ctx, quest.ID, req.Quantity, r.opts.HoldTTL)
	if err != nil {
		return nil, err
	}

	currency := quest.Currency
	if currency == "" {
		currency = r.opts.Currency
	}
	amount := quest.PricePerTicket * int64(req.Quantity)

	intent, err := r.payments.CreateIntent(ctx, models.IntentRequest{
		HoldID:   hold.ID,
		QuestID:  quest.ID,
		UserID:   userID,
		Quantity: req.Quantity,
		Amount:   amount,
		Currency: currency,
		Slot:     req.Slot,
	})
	if err != nil {
		if errors.Is(err, models.ErrGatewayUnavailable) {
			// The intent may exist at the gateway. Keep the hold so a late
			// webhook can still settle; the sweep reclaims it otherwise.
			r.log.Warn("PURCHASE", fmt.Sprintf("Gateway outcome unknown for hold %s, keeping it until expiry", hold.ID))
			return nil, err
		}
		if relErr := r.inventory.Release(ctx, hold.ID); relErr != nil {
			r.log.Error("PURCHASE", fmt.Sprintf("Failed to release hold %s after gateway rejection: %v", hold.ID, relErr))
		}
		return nil, err
	}

	r.log.Info("PURCHASE", fmt.Sprintf("User %s holds %d x %s as %s (intent %s)", userID, req.Quantity, quest.ID, hold.ID, intent.IntentID))
	return &models.HoldResponse{
		HoldID:       hold.ID,
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     intent.Currency,
		ExpiresAt:    hold.ExpiresAt,
	}, nil
}

// ConfirmFromClient handles the client's claim that payment went through.
// The claim is only a hint: the gateway is asked before anything is settled.
func (r *Reconciler) ConfirmFromClient(ctx context.Context, userID, intentID string) (*models.Reservation, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, fmt.Errorf("%w: intentId is required", models.ErrInvalidRequest)
	}

	existing, err := r.reservations.FindByIntentID(ctx, intentID)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return nil, models.ErrIntentNotFound
		}
		return existing, nil
	case !errors.Is(err, models.ErrReservationNotFound):
		return nil, err
	}

	intent, err := r.ownedIntent(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}

	gi, err := r.payments.RefreshStatus(ctx, intentID)
	if err != nil {
		return nil, err
	}

	switch gi.Status {
	case models.IntentConfirmed:
		return r.settle(ctx, intent, "client")
	case models.IntentFailed:
		res, err := r.abandonDeclined(ctx, intent, "client", true)
		if err != nil || res != nil {
			return res, err
		}
		return nil, models.ErrPaymentFailed
	default:
		return nil, models.ErrPaymentPending
	}
}

// HandleWebhook verifies a gateway delivery and applies it. Errors wrapping
// models.ErrTransient should make the caller answer non-2xx so the gateway
// redelivers; any other error is final for this delivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := r.payments.VerifyEvent(payload, signatureHeader)
	if err != nil {
		return err
	}
	r.log.LogWebhook(string(event.Type), event.ID, fmt.Sprintf("verified for intent %s", event.IntentID))

	switch event.Type {
	case models.EventPaymentSucceeded:
		intent, err := r.intentForEvent(ctx, event)
		if err != nil {
			return err
		}
		r.payments.RecordStatus(ctx, intent.IntentID, models.IntentConfirmed)
		_, err = r.settle(ctx, intent, "webhook")
		return err

	case models.EventPaymentFailed, models.EventPaymentCanceled:
		intent, err := r.intentForEvent(ctx, event)
		if err != nil {
			return err
		}
		_, err = r.abandonDeclined(ctx, intent, "webhook", event.Type == models.EventPaymentFailed)
		return err

	default:
		r.log.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type %s", event.Type))
		return nil
	}
}

// CancelPurchase lets the buyer walk away from checkout. A payment that
// already succeeded is settled instead of cancelled.
func (r *Reconciler) CancelPurchase(ctx context.Context, userID, intentID string) (*models.PurchaseStatus, error) {
	if _, err := r.reservations.FindByIntentID(ctx, intentID); err == nil {
		return r.Status(ctx, userID, intentID)
	} else if !errors.Is(err, models.ErrReservationNotFound) {
		return nil, err
	}

	intent, err := r.ownedIntent(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}

	gi, err := r.payments.RefreshStatus(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if gi.Status == models.IntentConfirmed {
		if _, err := r.settle(ctx, intent, "cancel"); err != nil && !errors.Is(err, models.ErrHoldExpired) {
			return nil, err
		}
		return r.Status(ctx, userID, intentID)
	}

	if gi.Status != models.IntentFailed {
		if err := r.payments.CancelIntent(ctx, intentID); err != nil {
			r.log.Warn("PURCHASE", fmt.Sprintf("Gateway cancel for intent %s failed: %v", intentID, err))
		}
	}
	if err := r.abandon(ctx, intent, models.ReasonCancelledByUser); err != nil {
		return nil, err
	}
	return r.Status(ctx, userID, intentID)
}

// Status derives where a purchase attempt stands from the durable records.
func (r *Reconciler) Status(ctx context.Context, userID, intentID string) (*models.PurchaseStatus, error) {
	intent, err := r.ownedIntent(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}
	status := &models.PurchaseStatus{
		IntentID:     intentID,
		IntentStatus: intent.Status,
	}

	res, err := r.reservations.FindByIntentID(ctx, intentID)
	switch {
	case err == nil:
		status.State = models.AttemptSettled
		status.ReservationID = res.ReservationID
		status.HoldState = models.HoldStateCommitted
		return status, nil
	case !errors.Is(err, models.ErrReservationNotFound):
		return nil, err
	}

	info, err := r.inventory.Inspect(ctx, intent.HoldID)
	if err != nil {
		return nil, err
	}
	status.HoldState = info.State

	switch {
	case intent.Status == models.IntentFailed:
		status.State = models.AttemptAbandoned
	case info.State == models.HoldStateActive, info.State == models.HoldStateCommitted:
		status.State = models.AttemptAwaitingConfirmation
	default:
		status.State = models.AttemptAbandoned
	}
	return status, nil
}

// settle commits the hold and records the reservation. Both steps are
// idempotent, so concurrent or repeated calls converge on one row and one
// decrement.
func (r *Reconciler) settle(ctx context.Context, intent *models.PaymentIntent, source string) (*models.Reservation, error) {
	existing, err := r.reservations.FindByIntentID(ctx, intent.IntentID)
	if err == nil {
		r.log.LogReservation("NOOP", intent.IntentID, fmt.Sprintf("already settled (%s)", source))
		return existing, nil
	}
	if !errors.Is(err, models.ErrReservationNotFound) {
		return nil, err
	}

	var outcome models.CommitOutcome
	err = r.opts.Retry.Do(ctx, r.log, "inventory commit "+intent.HoldID, func() error {
		var cerr error
		outcome, cerr = r.inventory.Commit(ctx, intent.HoldID)
		return cerr
	})
	switch {
	case errors.Is(err, models.ErrHoldExpired), errors.Is(err, models.ErrHoldNotFound):
		return nil, r.paidAfterExpiry(ctx, intent)
	case err != nil:
		return nil, err
	case outcome == models.CommitAlreadyReleased:
		return nil, r.paidAfterExpiry(ctx, intent)
	}

	var (
		res     *models.Reservation
		created bool
	)
	err = r.opts.Retry.Do(ctx, r.log, "reservation insert "+intent.IntentID, func() error {
		var cerr error
		res, created, cerr = r.reservations.CreateIfAbsent(ctx, models.ReservationInput{
			IntentID: intent.IntentID,
			QuestID:  intent.QuestID,
			UserID:   intent.UserID,
			Quantity: intent.Quantity,
			Amount:   intent.Amount,
			Currency: intent.Currency,
			Slot:     intent.Metadata[models.MetaSlot],
		})
		return cerr
	})
	if err != nil {
		// The commit is recorded in the hold tombstone; a redelivery or the
		// next client confirm finds it and only retries the insert.
		r.log.Error("PURCHASE", fmt.Sprintf("Reservation for intent %s not written after commit: %v", intent.IntentID, err))
		return nil, err
	}

	if created {
		r.log.Info("PURCHASE", fmt.Sprintf("Settled intent %s as reservation %s via %s (commit %s)", intent.IntentID, res.ReservationID, source, outcome))
		r.events.settled(ctx, res, intent.HoldID)
	}
	return res, nil
}

// paidAfterExpiry handles money taken for tickets that went back on sale.
func (r *Reconciler) paidAfterExpiry(ctx context.Context, intent *models.PaymentIntent) error {
	r.log.Error("PURCHASE", fmt.Sprintf("Payment for intent %s succeeded but hold %s is gone; refund required (user %s, %d %s)",
		intent.IntentID, intent.HoldID, intent.UserID, intent.Amount, intent.Currency))
	r.events.abandoned(ctx, intent, models.ReasonHoldExpiredAfterPayment)
	return models.ErrHoldExpired
}

// abandonDeclined closes a declined intent at the gateway before its hold
// goes back on sale. A declined intent stays payable with another card, so
// when the cancel is refused the gateway is asked again and a payment that
// got through is settled instead.
func (r *Reconciler) abandonDeclined(ctx context.Context, intent *models.PaymentIntent, source string, cancel bool) (*models.Reservation, error) {
	if existing, err := r.reservations.FindByIntentID(ctx, intent.IntentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, models.ErrReservationNotFound) {
		return nil, err
	}

	if cancel {
		if cerr := r.payments.CancelIntent(ctx, intent.IntentID); cerr != nil {
			gi, err := r.payments.RefreshStatus(ctx, intent.IntentID)
			if err != nil {
				return nil, models.Transient("cancel declined intent "+intent.IntentID, cerr)
			}
			switch gi.Status {
			case models.IntentConfirmed:
				r.log.Warn("PURCHASE", fmt.Sprintf("Intent %s was paid after a decline, settling via %s", intent.IntentID, source))
				return r.settle(ctx, intent, source)
			case models.IntentFailed:
				r.log.Warn("PURCHASE", fmt.Sprintf("Gateway cancel for declined intent %s refused: %v", intent.IntentID, cerr))
			default:
				// Payment may be in flight; the hold stays until it resolves or expires.
				return nil, models.Transient("cancel declined intent "+intent.IntentID, cerr)
			}
		}
	}

	return nil, r.abandon(ctx, intent, models.ReasonPaymentFailed)
}

// abandon releases the hold of an attempt that will never be paid.
func (r *Reconciler) abandon(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	if _, err := r.reservations.FindByIntentID(ctx, intent.IntentID); err == nil {
		r.log.Warn("PURCHASE", fmt.Sprintf("Ignoring %s for settled intent %s", reason, intent.IntentID))
		return nil
	} else if !errors.Is(err, models.ErrReservationNotFound) {
		return err
	}

	err := r.opts.Retry.Do(ctx, r.log, "inventory release "+intent.HoldID, func() error {
		return r.inventory.Release(ctx, intent.HoldID)
	})
	if err != nil {
		return err
	}
	r.payments.RecordStatus(ctx, intent.IntentID, models.IntentFailed)
	r.log.LogHold("ABANDONED", intent.HoldID, fmt.Sprintf("intent %s: %s", intent.IntentID, reason))
	r.events.abandoned(ctx, intent, reason)
	return nil
}

func (r *Reconciler) ownedIntent(ctx context.Context, userID, intentID string) (*models.PaymentIntent, error) {
	intent, err := r.payments.Lookup(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, models.ErrIntentNotFound
	}
	return intent, nil
}

// intentForEvent prefers the metadata on the verified event so a webhook can
// settle even when the local intent mirror was never written.
func (r *Reconciler) intentForEvent(ctx context.Context, event *models.PaymentEvent) (*models.PaymentIntent, error) {
	if event.IntentID == "" {
		return nil, fmt.Errorf("%w: event %s carries no intent", models.ErrMalformedEvent, event.ID)
	}
	intent, err := payment.IntentFromMetadata(event.IntentID, event.Amount, event.Currency, event.Metadata)
	if err == nil {
		return intent, nil
	}
	intent, err = r.payments.Lookup(ctx, event.IntentID)
	if errors.Is(err, models.ErrGatewayUnavailable) {
		return nil, models.Transient("intent lookup "+event.IntentID, err)
	}
	return intent, err
}

// SweepOnce expires overdue holds and announces each one.
func (r *Reconciler) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		expired, err := r.inventory.Sweep(ctx, r.opts.SweepBatch)
		for _, h := range expired {
			r.events.expired(ctx, h)
		}
		total += len(expired)
		if err != nil {
			return total, err
		}
		if int64(len(expired)) < r.opts.SweepBatch {
			return total, nil
		}
	}
}
