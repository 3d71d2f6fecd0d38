package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-questbooking/internal/config"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
)

// Publisher sends one message to a topic. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// eventSink publishes lifecycle events after the durable write they describe.
// Delivery is best-effort; failures are logged and never undo the write.
type eventSink struct {
	pub    Publisher
	topics config.TopicConfig
	log    *logger.Logger
	now    func() time.Time
}

func (s *eventSink) settled(ctx context.Context, res *models.Reservation, holdID string) {
	s.emit(ctx, s.topics.ReservationSettled, res.QuestID, models.ReservationEvent{
		Type:          models.EventReservationSettled,
		ReservationID: res.ReservationID,
		IntentID:      res.IntentID,
		HoldID:        holdID,
		QuestID:       res.QuestID,
		UserID:        res.UserID,
		Quantity:      res.Quantity,
		Amount:        res.Amount,
		Currency:      res.Currency,
	})
}

func (s *eventSink) abandoned(ctx context.Context, intent *models.PaymentIntent, reason string) {
	s.emit(ctx, s.topics.PurchaseAbandoned, intent.QuestID, models.ReservationEvent{
		Type:     models.EventPurchaseAbandoned,
		IntentID: intent.IntentID,
		HoldID:   intent.HoldID,
		QuestID:  intent.QuestID,
		UserID:   intent.UserID,
		Quantity: intent.Quantity,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Reason:   reason,
	})
}

func (s *eventSink) expired(ctx context.Context, hold models.Hold) {
	s.emit(ctx, s.topics.HoldExpired, hold.QuestID, models.ReservationEvent{
		Type:     models.EventHoldExpired,
		HoldID:   hold.ID,
		QuestID:  hold.QuestID,
		Quantity: hold.Quantity,
	})
}

func (s *eventSink) emit(ctx context.Context, topic, key string, ev models.ReservationEvent) {
	if s.pub == nil || topic == "" {
		return
	}
	ev.OccurredAt = s.now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("EVENTS", fmt.Sprintf("Failed to encode %s event: %v", ev.Type, err))
		return
	}
	if err := s.pub.Publish(ctx, topic, key, value); err != nil {
		s.log.Warn("EVENTS", fmt.Sprintf("Failed to publish %s for quest %s: %v", ev.Type, key, err))
	}
}
