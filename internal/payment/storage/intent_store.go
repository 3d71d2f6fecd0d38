package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/uptrace/bun"
)

// IntentStore is the bun-backed mirror of gateway payment intents.
type IntentStore struct {
	db  *bun.DB
	log *logger.Logger
}

func NewIntentStore(db *bun.DB, log *logger.Logger) *IntentStore {
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &IntentStore{db: db, log: log}
}

// EnsureSchema creates the table when migrations are not in play (tests, dev).
func (s *IntentStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*models.PaymentIntent)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Save inserts the intent, overwriting the mirror if the gateway reused an id.
func (s *IntentStore) Save(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = intent.CreatedAt
	}
	_, err := s.db.NewInsert().
		Model(intent).
		On("CONFLICT (intent_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return models.Transient("intents.save", err)
	}
	s.log.LogDatabase("INSERT", "payment_intents", fmt.Sprintf("intent %s for hold %s", intent.IntentID, intent.HoldID))
	return nil
}

func (s *IntentStore) Get(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.NewSelect().
		Model(&intent).
		Where("intent_id = ?", intentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrIntentNotFound
	}
	if err != nil {
		return nil, models.Transient("intents.get", err)
	}
	return &intent, nil
}

func (s *IntentStore) UpdateStatus(ctx context.Context, intentID string, status models.IntentStatus) error {
	res, err := s.db.NewUpdate().
		Model((*models.PaymentIntent)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("intent_id = ?", intentID).
		Exec(ctx)
	if err != nil {
		return models.Transient("intents.update_status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrIntentNotFound
	}
	return nil
}
