package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"nomadpi/models"
	"nomadpi/services/provisioning"
	"nomadpi/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type stubService struct {
	provisioning.ProvisioningService
	provisionErr error
	provisioned  []string
	sweeps       int32
}

func (s *stubService) Provision(_ context.Context, deviceID string) (*models.Device, error) {
	s.provisioned = append(s.provisioned, deviceID)
	if s.provisionErr != nil {
		return nil, s.provisionErr
	}
	d := models.NewDevice(deviceID, "laptop1", "user-1")
	d.MarkGenerated("/etc/wireguard/clients/laptop1.conf", "")
	return d, nil
}

func (s *stubService) RecoverStale(context.Context, time.Duration) (int, error) {
	atomic.AddInt32(&s.sweeps, 1)
	return 0, nil
}

func provisionTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, _, err := tasks.NewProvisionTask(id, time.Now(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestHandleProvisionTask(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  bool
		wantSkip bool
	}{
		{name: "success"},
		{name: "already provisioned", err: models.ErrAlreadyProvisioned},
		{name: "device deleted", err: models.ErrDeviceNotFound},
		{name: "remote failure", err: models.NewProvisionError(models.KindRemoteUnavailable, "down", nil), wantErr: true, wantSkip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{provisionErr: tt.err}
			err := handleProvisionTask(svc, zap.NewNop())(context.Background(), provisionTask(t, "dev-1"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("handler error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantSkip && !errors.Is(err, asynq.SkipRetry) {
				t.Errorf("error %v does not skip retries", err)
			}
			if len(svc.provisioned) != 1 || svc.provisioned[0] != "dev-1" {
				t.Errorf("provisioned = %v", svc.provisioned)
			}
		})
	}
}

func TestHandleProvisionTask_BadPayload(t *testing.T) {
	svc := &stubService{}
	err := handleProvisionTask(svc, zap.NewNop())(context.Background(), asynq.NewTask(tasks.TypeProvisionDevice, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("error = %v, want SkipRetry", err)
	}
	if len(svc.provisioned) != 0 {
		t.Error("provisioned a device from a bad payload")
	}
}

func TestStartRecoverySweep(t *testing.T) {
	svc := &stubService{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartRecoverySweep(ctx, svc, 2*time.Millisecond, time.Minute, zap.NewNop())
		close(done)
	}()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&svc.sweeps) < 2 {
		select {
		case <-deadline:
			t.Fatal("sweep did not run")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not stop after cancel")
	}
}
