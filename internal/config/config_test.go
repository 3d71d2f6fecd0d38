package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Purchase.HoldTTL)
	assert.Equal(t, 30*time.Second, cfg.Purchase.SweepInterval)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "quests.reservation.settled", cfg.Kafka.Topics.ReservationSettled)
	assert.Empty(t, cfg.Catalog.BaseURL)
	assert.Empty(t, cfg.Tickets.QRSecret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HOLD_TTL", "10m")
	t.Setenv("HOLD_SWEEP_INTERVAL", "5s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("STRIPE_CURRENCY", "EUR")
	t.Setenv("STORE_RETRY_ATTEMPTS", "7")
	t.Setenv("CATALOG_URL", "http://quests.internal/")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.Purchase.HoldTTL)
	assert.Equal(t, 5*time.Second, cfg.Purchase.SweepInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.Equal(t, uint64(7), cfg.Retry.MaxAttempts)
	assert.Equal(t, "http://quests.internal", cfg.Catalog.BaseURL)
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("HOLD_TTL", "soon")
	assert.Equal(t, 15*time.Minute, getEnvDuration("HOLD_TTL", 15*time.Minute))

	t.Setenv("HOLD_TTL", "-5m")
	assert.Equal(t, 15*time.Minute, getEnvDuration("HOLD_TTL", 15*time.Minute))
}
