package provisioning

import (
	"context"
	"time"

	"nomadpi/models"

	"go.uber.org/zap"
)

// lockProbe bounds how long the sweep waits for a device that is being
// worked on; a held lock means the device is not stale.
const lockProbe = 200 * time.Millisecond

// RecoverStale fails devices that have been Pending for longer than
// olderThan, e.g. after a crash mid-provisioning or a lost queue task.
func (s *DefaultProvisioningService) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.Devices.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if s.recoverOne(ctx, candidate, cutoff) {
			recovered++
		}
	}
	if recovered > 0 {
		s.Logger.Info("stale devices marked failed", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *DefaultProvisioningService) recoverOne(ctx context.Context, candidate models.Device, cutoff time.Time) bool {
	lockCtx, cancel := context.WithTimeout(ctx, lockProbe)
	defer cancel()

	unlock, err := s.Locker.Lock(lockCtx, lockKey(candidate.Name))
	if err != nil {
		return false
	}
	defer unlock()

	device, err := s.load(ctx, candidate.ID)
	if err != nil || device.State != models.StatePending || !device.UpdatedAt.Before(cutoff) {
		return false
	}

	device.MarkFailed(models.NewProvisionError(models.KindProvisioningTimeout,
		"provisioning did not finish; marked failed by the stale-device sweep", nil))
	if err := s.persist(ctx, device); err != nil {
		s.Logger.Warn("failed to mark stale device", zap.String("deviceId", device.ID), zap.Error(err))
		return false
	}
	return true
}
