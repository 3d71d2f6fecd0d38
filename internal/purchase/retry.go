package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a store call is repeated after an
// infrastructure failure. Business errors are returned on the first attempt.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 4
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 100 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 2 * time.Second
	}
	return p
}

// Do runs fn until it succeeds, returns a non-transient error, the context
// ends or the attempt budget is spent. MaxAttempts counts retries after the
// first call.
func (p RetryPolicy) Do(ctx context.Context, log *logger.Logger, op string, fn func() error) error {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.MaxAttempts), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil || errors.Is(err, models.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		log.Warn("RETRY", fmt.Sprintf("%s attempt %d failed: %v (next in %s)", op, attempt, err, wait))
	})
	if err != nil && errors.Is(err, models.ErrTransient) {
		log.Error("RETRY", fmt.Sprintf("%s gave up after %d attempts: %v", op, attempt, err))
	}
	return err
}
