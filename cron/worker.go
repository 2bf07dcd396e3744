package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nomadpi/config"
	"nomadpi/models"
	"nomadpi/services/provisioning"
	"nomadpi/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueueRedisOpt is the asynq connection for the provisioning queue.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// InitProvisionWorker starts the background worker that runs queued
// provisioning tasks. The returned server must be shut down by the caller.
func InitProvisionWorker(svc provisioning.ProvisioningService, logger *zap.Logger) *asynq.Server {
	srv := asynq.NewServer(
		QueueRedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar().Named("asynq"),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeProvisionDevice, handleProvisionTask(svc, logger))

	go func() {
		logger.Info("starting provisioning worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Start(mux)
			if err == nil {
				return
			}
			logger.Warn("failed to start provisioning worker", zap.Int("attempt", attempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("max worker start attempts reached")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleProvisionTask(svc provisioning.ProvisioningService, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseProvisionPayload(task)
		if err != nil {
			logger.Error("invalid provisioning payload", zap.Error(err))
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}

		device, err := svc.Provision(ctx, p.DeviceID)
		switch {
		case err == nil:
			logger.Info("queued provisioning finished", zap.String("deviceId", p.DeviceID), zap.String("state", string(device.State)))
			return nil
		case errors.Is(err, models.ErrAlreadyProvisioned), errors.Is(err, models.ErrDeviceNotFound):
			// Duplicate or obsolete task; nothing left to do.
			logger.Info("skipping provisioning task", zap.String("deviceId", p.DeviceID), zap.Error(err))
			return nil
		default:
			// The failure is already recorded on the device; retrying needs ResetFailed.
			return fmt.Errorf("provision %s: %v: %w", p.DeviceID, err, asynq.SkipRetry)
		}
	}
}
