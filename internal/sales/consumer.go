package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-questbooking/internal/models"

	"github.com/segmentio/kafka-go"
)

// HandleMessage is the kafka.Handler for the settled-reservation topic.
// Undecodable or foreign messages are skipped; store failures are returned
// so the consumer redelivers.
func (p *Projection) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var ev models.ReservationEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		p.log.Warn("SALES", fmt.Sprintf("Skipping undecodable message at %s@%d: %v", msg.Topic, msg.Offset, err))
		return nil
	}
	if ev.Type != models.EventReservationSettled {
		return nil
	}

	applied, err := p.Apply(ctx, ev)
	switch {
	case errors.Is(err, models.ErrMalformedEvent):
		p.log.Warn("SALES", fmt.Sprintf("Skipping %s at %s@%d: %v", ev.Type, msg.Topic, msg.Offset, err))
		return nil
	case err != nil:
		return err
	case !applied:
		p.log.Debug("SALES", fmt.Sprintf("Reservation %s already counted", ev.ReservationID))
	}
	return nil
}
