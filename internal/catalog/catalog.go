package catalog

import (
	"context"
	"database/sql"
	"errors"

	"ms-questbooking/internal/models"

	"github.com/uptrace/bun"
)

// Catalog reads quest metadata owned by the quest content service. Only the
// fields the purchase flow needs are mapped.
type Catalog struct {
	db *bun.DB
}

func New(db *bun.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) EnsureSchema(ctx context.Context) error {
	_, err := c.db.NewCreateTable().
		Model((*models.Quest)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// GetQuest returns the initial ticket allotment and the price of a quest.
func (c *Catalog) GetQuest(ctx context.Context, questID string) (*models.Quest, error) {
	var q models.Quest
	err := c.db.NewSelect().
		Model(&q).
		Where("id = ?", questID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrQuestNotFound
	}
	if err != nil {
		return nil, models.Transient("catalog.get_quest", err)
	}
	return &q, nil
}

// Upsert is used by the demo seed in cmd/migrate.
func (c *Catalog) Upsert(ctx context.Context, q *models.Quest) error {
	_, err := c.db.NewInsert().
		Model(q).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("tickets_available = EXCLUDED.tickets_available").
		Set("price_per_ticket = EXCLUDED.price_per_ticket").
		Set("currency = EXCLUDED.currency").
		Exec(ctx)
	return err
}
