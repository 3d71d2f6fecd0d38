package purchase

import (
	"context"
	"fmt"
	"time"
)

// RunSweeper expires overdue holds every interval until ctx ends. It runs in
// the API process or alone in cmd/sweeper; several sweepers may overlap
// because each release is conditional on the hold still being overdue.
func (r *Reconciler) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	r.log.Info("SWEEPER", fmt.Sprintf("Hold sweeper started (every %s, batch %d)", interval, r.opts.SweepBatch))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("SWEEPER", "Hold sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := r.SweepOnce(ctx)
			if err != nil {
				r.log.Error("SWEEPER", fmt.Sprintf("Sweep failed after %d expiries: %v", n, err))
				continue
			}
			if n > 0 {
				r.log.Info("SWEEPER", fmt.Sprintf("Expired %d holds", n))
			}
		}
	}
}
