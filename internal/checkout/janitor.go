package checkout

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner forgets per-session state that has gone stale.
type Pruner interface {
	Prune(now time.Time) int
}

// RunJanitor prunes every interval until ctx is cancelled.
func RunJanitor(ctx context.Context, interval time.Duration, logger *zap.Logger, pruners ...Pruner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			removed := 0
			for _, p := range pruners {
				removed += p.Prune(now)
			}
			if removed > 0 {
				logger.Debug("pruned stale session state", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
