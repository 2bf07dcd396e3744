package cron

import (
	"context"
	"time"

	"nomadpi/services/provisioning"

	"go.uber.org/zap"
)

// StartRecoverySweep periodically fails devices stuck in Pending. It blocks
// until ctx is done.
func StartRecoverySweep(ctx context.Context, svc provisioning.ProvisioningService, interval, staleAfter time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("recovery sweep shutdown signal received")
			return
		case <-ticker.C:
			n, err := svc.RecoverStale(ctx, staleAfter)
			if err != nil && ctx.Err() == nil {
				logger.Warn("recovery sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("recovery sweep finished", zap.Int("recovered", n))
			}
		}
	}
}
