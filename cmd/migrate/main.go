package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ms-questbooking/internal/catalog"
	"ms-questbooking/internal/config"
	"ms-questbooking/internal/database/migrations"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
	"ms-questbooking/internal/platform"

	"github.com/joho/godotenv"
)

var demoQuests = []models.Quest{
	{ID: "escape-catacombs", Title: "Escape the Catacombs", TicketsAvailable: 40, PricePerTicket: 2500, Currency: "usd"},
	{ID: "haunted-manor", Title: "The Haunted Manor", TicketsAvailable: 24, PricePerTicket: 3200, Currency: "usd"},
	{ID: "lab-zero", Title: "Lab Zero", TicketsAvailable: 12, PricePerTicket: 4500, Currency: "usd"},
}

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	to := flag.Uint("to", 0, "migrate to this version instead of the latest")
	seed := flag.Bool("seed", false, "upsert demo quests after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger(cfg.LogDir)
	defer log.Close()

	if err := run(context.Background(), cfg, log, *down, *to, *seed); err != nil {
		log.Error("MIGRATE", err.Error())
		log.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, down bool, to uint, seed bool) error {
	db, err := platform.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	runner := migrations.NewRunner(db, log)
	// closes db too
	defer runner.Close()

	switch {
	case down:
		log.Warn("MIGRATE", "Rolling back all migrations")
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		return nil
	case to > 0:
		if err := runner.MigrateTo(to); err != nil {
			return err
		}
	default:
		if err := runner.RunMigrations(); err != nil {
			return err
		}
	}

	if !seed {
		return nil
	}
	cat := catalog.New(db)
	for i := range demoQuests {
		q := demoQuests[i]
		if err := cat.Upsert(ctx, &q); err != nil {
			return fmt.Errorf("seed quest %s: %w", q.ID, err)
		}
		log.Info("MIGRATE", fmt.Sprintf("Seeded quest %s (%d tickets)", q.ID, q.TicketsAvailable))
	}
	return nil
}
