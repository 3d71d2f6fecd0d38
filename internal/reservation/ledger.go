package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Ledger stores confirmed reservations. The unique index on intent_id is the
// only thing that decides whether a settlement is new or a repeat.
type Ledger struct {
	db  *bun.DB
	log *logger.Logger
	now func() time.Time
}

func NewLedger(db *bun.DB, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewWithWriter(nil)
	}
	return &Ledger{db: db, log: log, now: time.Now}
}

// EnsureSchema creates the reservations table when migrations are not run.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	_, err := l.db.NewCreateTable().
		Model((*models.Reservation)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// CreateIfAbsent inserts a reservation for the intent, or returns the row a
// concurrent or earlier settlement already wrote. created reports which.
func (l *Ledger) CreateIfAbsent(ctx context.Context, in models.ReservationInput) (*models.Reservation, bool, error) {
	if in.IntentID == "" {
		return nil, false, errors.New("reservation: intent id is required")
	}
	if in.Quantity <= 0 {
		return nil, false, models.ErrInvalidQuantity
	}

	res := &models.Reservation{
		ReservationID: uuid.NewString(),
		IntentID:      in.IntentID,
		QuestID:       in.QuestID,
		UserID:        in.UserID,
		Quantity:      in.Quantity,
		Amount:        in.Amount,
		Currency:      strings.ToLower(in.Currency),
		Slot:          in.Slot,
		Status:        models.ReservationConfirmed,
		CreatedAt:     l.now().UTC(),
	}

	result, err := l.db.NewInsert().
		Model(res).
		On("CONFLICT (intent_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, models.Transient("reservations.insert", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		l.log.LogReservation("CREATED", in.IntentID, fmt.Sprintf("reservation %s quest=%s qty=%d", res.ReservationID, res.QuestID, res.Quantity))
		return res, true, nil
	}

	existing, err := l.FindByIntentID(ctx, in.IntentID)
	if err != nil {
		return nil, false, err
	}
	l.log.LogReservation("DUPLICATE", in.IntentID, fmt.Sprintf("already settled as %s", existing.ReservationID))
	return existing, false, nil
}

func (l *Ledger) FindByIntentID(ctx context.Context, intentID string) (*models.Reservation, error) {
	return l.findOne(ctx, "intent_id = ?", intentID)
}

func (l *Ledger) FindByID(ctx context.Context, reservationID string) (*models.Reservation, error) {
	return l.findOne(ctx, "reservation_id = ?", reservationID)
}

func (l *Ledger) findOne(ctx context.Context, where string, arg string) (*models.Reservation, error) {
	var res models.Reservation
	err := l.db.NewSelect().
		Model(&res).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrReservationNotFound
	}
	if err != nil {
		return nil, models.Transient("reservations.select", err)
	}
	return &res, nil
}

// ListByUser returns the caller's reservations, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Reservation, error) {
	return l.list(ctx, "user_id = ?", userID, limit, offset)
}

// ListByQuest returns a quest's reservations, newest first.
func (l *Ledger) ListByQuest(ctx context.Context, questID string, limit, offset int) ([]models.Reservation, error) {
	return l.list(ctx, "quest_id = ?", questID, limit, offset)
}

func (l *Ledger) list(ctx context.Context, where, arg string, limit, offset int) ([]models.Reservation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out := []models.Reservation{}
	err := l.db.NewSelect().
		Model(&out).
		Where(where, arg).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, models.Transient("reservations.list", err)
	}
	return out, nil
}
