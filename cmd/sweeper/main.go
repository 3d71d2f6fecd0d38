package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ms-questbooking/internal/config"
	"ms-questbooking/internal/inventory"
	"ms-questbooking/internal/kafka"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/platform"
	"ms-questbooking/internal/purchase"

	"github.com/joho/godotenv"
)

// The standalone sweeper only expires holds and announces the expiries. It
// needs Redis and, optionally, Kafka.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger(cfg.LogDir)
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := platform.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("SWEEPER", err.Error())
		log.Close()
		os.Exit(1)
	}
	defer redisClient.Close()

	var publisher purchase.Publisher = kafka.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
	}

	ledger := inventory.NewLedger(redisClient, log, inventory.Options{
		KeyPrefix:    cfg.Redis.KeyPrefix,
		TombstoneTTL: cfg.Purchase.TombstoneTTL,
	})
	reconciler := purchase.NewReconciler(ledger, nil, nil, nil, publisher, log, purchase.OptionsFromConfig(cfg))

	if err := reconciler.RunSweeper(ctx, cfg.Purchase.SweepInterval); err != nil {
		log.Error("SWEEPER", err.Error())
	}
}
