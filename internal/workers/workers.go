package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WeekRepairer reopens an active week for every group that lost one.
type WeekRepairer interface {
	RepairAll(ctx context.Context) (int, error)
}

// StartRepairWorker runs a repair pass immediately and then on every tick
// until ctx is cancelled. The returned channel is closed when the worker exits.
func StartRepairWorker(ctx context.Context, repairer WeekRepairer, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		repairActiveWeeks(ctx, repairer)
		for {
			select {
			case <-ticker.C:
				repairActiveWeeks(ctx, repairer)
			case <-ctx.Done():
				zap.S().Info("Week repair worker stopped")
				return
			}
		}
	}()

	return done
}

func repairActiveWeeks(ctx context.Context, repairer WeekRepairer) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	checked, err := repairer.RepairAll(ctx)
	if err != nil {
		zap.S().Errorf("Week repair pass finished with errors after %d groups: %v", checked, err)
		return
	}
	zap.S().Debugf("Week repair pass checked %d groups", checked)
}
