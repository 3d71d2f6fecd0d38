package sales

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/uptrace/bun"
)

// Projection keeps per-day sold tickets and revenue for each quest. It is fed
// by reservation.settled events and tolerates redelivery.
type Projection struct {
	db  *bun.DB
	log *logger.Logger
	now func() time.Time
}

func NewProjection(db *bun.DB, log *logger.Logger) *Projection {
	return &Projection{db: db, log: log, now: time.Now}
}

func (p *Projection) EnsureSchema(ctx context.Context) error {
	for _, model := range []interface{}{(*models.QuestSales)(nil), (*models.CountedReservation)(nil)} {
		if _, err := p.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Apply counts a settled reservation once. It reports false when the
// reservation had already been counted.
func (p *Projection) Apply(ctx context.Context, ev models.ReservationEvent) (bool, error) {
	if ev.ReservationID == "" || ev.QuestID == "" || ev.Quantity <= 0 {
		return false, fmt.Errorf("%w: incomplete settled event", models.ErrMalformedEvent)
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = p.now()
	}

	applied := false
	err := p.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&models.CountedReservation{ReservationID: ev.ReservationID, CountedAt: p.now().UTC()}).
			On("CONFLICT (reservation_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.NewInsert().
			Model(&models.QuestSales{
				QuestID:  ev.QuestID,
				SaleDate: occurred.UTC().Format(time.DateOnly),
				Tickets:  int64(ev.Quantity),
				Revenue:  ev.Amount,
			}).
			On("CONFLICT (quest_id, sale_date) DO UPDATE").
			Set("tickets = quest_sales.tickets + EXCLUDED.tickets").
			Set("revenue = quest_sales.revenue + EXCLUDED.revenue").
			Exec(ctx)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, models.Transient("sales.apply", err)
	}
	if applied {
		p.log.LogDatabase("UPSERT", "quest_sales", fmt.Sprintf("quest=%s +%d tickets (reservation %s)", ev.QuestID, ev.Quantity, ev.ReservationID))
	}
	return applied, nil
}

// Summary returns the daily rows for a quest, oldest first, with totals. An
// unknown quest yields an empty summary.
func (p *Projection) Summary(ctx context.Context, questID string) (*models.SalesSummary, error) {
	daily := []models.QuestSales{}
	err := p.db.NewSelect().
		Model(&daily).
		Where("quest_id = ?", questID).
		Order("sale_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, models.Transient("sales.summary", err)
	}

	summary := &models.SalesSummary{QuestID: questID, Daily: daily}
	for _, d := range daily {
		summary.TicketsSold += d.Tickets
		summary.TotalRevenue += d.Revenue
	}
	return summary, nil
}
