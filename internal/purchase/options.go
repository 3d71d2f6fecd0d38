package purchase

import "ms-questbooking/internal/config"

// OptionsFromConfig collects the reconciler settings spread over cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HoldTTL:     cfg.Purchase.HoldTTL,
		MaxQuantity: cfg.Purchase.MaxQuantity,
		Currency:    cfg.Stripe.Currency,
		SweepBatch:  cfg.Purchase.SweepBatch,
		Topics:      cfg.Kafka.Topics,
		Retry: RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
	}
}
