package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"ms-questbooking/internal/models"
	"ms-questbooking/internal/payment/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestStore(t *testing.T) *storage.IntentStore {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	store := storage.NewIntentStore(bunDB, nil)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestIntentStore_SaveGetUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	intent := &models.PaymentIntent{
		IntentID: "pi_1",
		HoldID:   "hold-1",
		QuestID:  "q1",
		UserID:   "user-1",
		Quantity: 2,
		Amount:   5000,
		Currency: "usd",
		Status:   models.IntentCreated,
		Metadata: map[string]string{models.MetaSlot: "2026-06-01T10:00"},
	}
	require.NoError(t, store.Save(ctx, intent))

	got, err := store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "hold-1", got.HoldID)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, models.IntentCreated, got.Status)
	assert.Equal(t, "2026-06-01T10:00", got.Metadata[models.MetaSlot])

	require.NoError(t, store.UpdateStatus(ctx, "pi_1", models.IntentConfirmed))
	got, err = store.Get(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentConfirmed, got.Status)
}

func TestIntentStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "pi_missing")
	assert.ErrorIs(t, err, models.ErrIntentNotFound)

	err = store.UpdateStatus(ctx, "pi_missing", models.IntentFailed)
	assert.ErrorIs(t, err, models.ErrIntentNotFound)
}
