package sales

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupProjection(t *testing.T) *Projection {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	p := NewProjection(db, logger.NewWithWriter(nil))
	require.NoError(t, p.EnsureSchema(context.Background()))
	return p
}

func settled(resID string, qty int, amount int64, at time.Time) models.ReservationEvent {
	return models.ReservationEvent{
		Type:          models.EventReservationSettled,
		ReservationID: resID,
		QuestID:       "q1",
		Quantity:      qty,
		Amount:        amount,
		Currency:      "usd",
		OccurredAt:    at,
	}
}

func TestApply_CountsEachReservationOnce(t *testing.T) {
	p := setupProjection(t)
	ctx := context.Background()
	day1 := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	applied, err := p.Apply(ctx, settled("r1", 2, 5000, day1))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = p.Apply(ctx, settled("r1", 2, 5000, day1))
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = p.Apply(ctx, settled("r2", 1, 2500, day1.Add(time.Hour)))
	require.NoError(t, err)
	_, err = p.Apply(ctx, settled("r3", 4, 10000, day2))
	require.NoError(t, err)

	s, err := p.Summary(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.TicketsSold)
	assert.Equal(t, int64(17500), s.TotalRevenue)
	require.Len(t, s.Daily, 2)
	assert.Equal(t, "2026-06-01", s.Daily[0].SaleDate)
	assert.Equal(t, int64(3), s.Daily[0].Tickets)
	assert.Equal(t, "2026-06-02", s.Daily[1].SaleDate)
	assert.Equal(t, int64(4), s.Daily[1].Tickets)
}

func TestApply_ConcurrentRedelivery(t *testing.T) {
	p := setupProjection(t)
	ctx := context.Background()
	ev := settled("r1", 3, 7500, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Apply(ctx, ev)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := p.Summary(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TicketsSold)
}

func TestApply_RejectsIncompleteEvent(t *testing.T) {
	p := setupProjection(t)
	_, err := p.Apply(context.Background(), models.ReservationEvent{Type: models.EventReservationSettled, QuestID: "q1", Quantity: 1})
	assert.ErrorIs(t, err, models.ErrMalformedEvent)
}

func TestSummary_UnknownQuest(t *testing.T) {
	p := setupProjection(t)
	s, err := p.Summary(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.TicketsSold)
	assert.NotNil(t, s.Daily)
	assert.Empty(t, s.Daily)
}

func TestHandleMessage(t *testing.T) {
	p := setupProjection(t)
	ctx := context.Background()

	value, err := json.Marshal(settled("r1", 2, 5000, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NoError(t, p.HandleMessage(ctx, kafka.Message{Topic: "settled", Value: value}))
	require.NoError(t, p.HandleMessage(ctx, kafka.Message{Topic: "settled", Value: value}))

	// skipped without error
	require.NoError(t, p.HandleMessage(ctx, kafka.Message{Topic: "settled", Value: []byte("{oops")}))
	other, _ := json.Marshal(models.ReservationEvent{Type: models.EventHoldExpired, QuestID: "q1", Quantity: 9})
	require.NoError(t, p.HandleMessage(ctx, kafka.Message{Topic: "expired", Value: other}))
	incomplete, _ := json.Marshal(models.ReservationEvent{Type: models.EventReservationSettled, QuestID: "q1"})
	require.NoError(t, p.HandleMessage(ctx, kafka.Message{Topic: "settled", Value: incomplete}))

	s, err := p.Summary(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TicketsSold)
}
