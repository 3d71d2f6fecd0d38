package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-questbooking/internal/auth"
	"ms-questbooking/internal/catalog"
	"ms-questbooking/internal/config"
	"ms-questbooking/internal/database/migrations"
	"ms-questbooking/internal/inventory"
	"ms-questbooking/internal/kafka"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/payment"
	"ms-questbooking/internal/payment/storage"
	"ms-questbooking/internal/platform"
	"ms-questbooking/internal/purchase"
	"ms-questbooking/internal/purchase/purchase_api"
	"ms-questbooking/internal/reservation"
	"ms-questbooking/internal/reservation/qr"
	"ms-questbooking/internal/sales"
	"ms-questbooking/internal/sales/sales_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.LogDir)
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("APP", fmt.Sprintf("Service exited: %v", err))
		log.Close()
		os.Exit(1)
	}
	log.Info("APP", "Quest booking service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("APP", "Starting quest booking service")

	bunDB, err := platform.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	redisClient, err := platform.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		// Close is skipped on purpose: it would close bunDB with the driver.
		if err := migrations.NewRunner(bunDB, log).RunMigrations(); err != nil {
			return err
		}
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	gateway, err := payment.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		return err
	}

	publisher, producer := newPublisher(ctx, cfg.Kafka, log)
	if producer != nil {
		defer producer.Close()
	}

	tickets, err := qr.NewGenerator(cfg.Tickets.QRSecret)
	if err != nil {
		return fmt.Errorf("TICKET_QR_SECRET: %w", err)
	}

	ledger := inventory.NewLedger(redisClient, log, inventory.Options{
		KeyPrefix:    cfg.Redis.KeyPrefix,
		TombstoneTTL: cfg.Purchase.TombstoneTTL,
	})
	intents := storage.NewIntentStore(bunDB, log)
	reservations := reservation.NewLedger(bunDB, log)
	projection := sales.NewProjection(bunDB, log)

	reconciler := purchase.NewReconciler(
		ledger,
		payment.NewAdapter(gateway, intents, log, cfg.Stripe.Currency),
		reservations,
		newCatalog(cfg, bunDB, redisClient, log),
		publisher,
		log,
		purchase.OptionsFromConfig(cfg),
	)

	handler := &purchase_api.Handler{
		Purchases:    reconciler,
		Reservations: reservations,
		Inventory:    ledger,
		Tickets:      tickets,
		Logger:       log,
		AdminRole:    cfg.Auth.AdminRole,
		HealthCheck: func(ctx context.Context) error {
			if err := bunDB.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
	}
	salesHandler := sales_api.NewHandler(projection, log)
	authn := auth.Middleware(verifier, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestLogger(log))

	handler.RegisterRoutes(r, authn)
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Use(auth.RequireRole(cfg.Auth.AdminRole))
		salesHandler.RegisterRoutes(r)
	})
	log.Info("ROUTER", "Purchase, reservation, admin and sales routes registered")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Quest booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Purchase.SweeperEnabled {
		g.Go(func() error {
			return reconciler.RunSweeper(gctx, cfg.Purchase.SweepInterval)
		})
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.ReservationSettled}, cfg.Kafka.GroupID, log)
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(gctx, projection.HandleMessage)
		})
	}

	return g.Wait()
}

// newVerifier prefers the OIDC issuer and falls back to a shared HMAC secret.
func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	case cfg.JWTSecret != "":
		return auth.NewHMACVerifier(cfg.JWTSecret), nil
	default:
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
}

func newPublisher(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) (purchase.Publisher, *kafka.Producer) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
		return kafka.NoopPublisher{}, nil
	}
	topics := []string{cfg.Topics.ReservationSettled, cfg.Topics.PurchaseAbandoned, cfg.Topics.HoldExpired}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return producer, producer
}

// newCatalog reads quests from the quest service when CATALOG_URL is set and
// from the local quests table otherwise.
func newCatalog(cfg *config.Config, db *bun.DB, redisClient *redis.Client, log *logger.Logger) purchase.Catalog {
	if cfg.Catalog.BaseURL == "" {
		log.Info("CATALOG", "Using local quests table")
		return catalog.New(db)
	}
	httpClient := &http.Client{Timeout: cfg.Catalog.RequestTimeout}
	tokens := auth.NewM2MTokenSource(auth.ClientCredentials{
		TokenURL:     cfg.Catalog.TokenURL,
		ClientID:     cfg.Catalog.ClientID,
		ClientSecret: cfg.Catalog.ClientSecret,
	}, httpClient, auth.NewRedisTokenCache(redisClient, cfg.Redis.KeyPrefix+"m2m_token"), log)
	log.Info("CATALOG", fmt.Sprintf("Using quest service at %s", cfg.Catalog.BaseURL))
	return catalog.NewRemote(cfg.Catalog.BaseURL, httpClient, tokens, log)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
