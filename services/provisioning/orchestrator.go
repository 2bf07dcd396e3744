package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	deviceRepo "nomadpi/database/repository/device"
	"nomadpi/models"
	"nomadpi/services/remote"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// CreateDevice stores a new Pending device. Provisioning is a separate step.
func (s *DefaultProvisioningService) CreateDevice(ctx context.Context, ownerID, name string) (*models.Device, error) {
	name = strings.TrimSpace(name)
	if err := ValidateDeviceName(name); err != nil {
		return nil, err
	}

	device := models.NewDevice(uuid.New().String(), name, ownerID)
	device.TargetHost = s.Settings.TargetHost

	if err := s.Devices.Create(ctx, device); err != nil {
		if errors.Is(err, deviceRepo.ErrDuplicateName) {
			return nil, models.NewProvisionError(models.KindDuplicateDeviceName, fmt.Sprintf("a device named %q already exists", name), err)
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	s.Logger.Info("device created", zap.String("deviceId", device.ID), zap.String("name", name), zap.String("ownerId", ownerID))
	return device, nil
}

// Provision generates the keypair and client profile for a Pending device.
// Concurrent calls for the same device name are serialized; only the first
// one to observe Pending dispatches anything.
func (s *DefaultProvisioningService) Provision(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, lockKey(device.Name))
	if err != nil {
		return device, lockFailure(ctx, err)
	}
	defer unlock()

	// Re-read under the lock: the state may have moved while we waited.
	device, err = s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.State != models.StatePending {
		return device, models.NewProvisionError(models.KindAlreadyProvisioned,
			fmt.Sprintf("device %s is %s, not %s", device.ID, device.State, models.StatePending), nil)
	}

	log := s.Logger.With(zap.String("deviceId", device.ID), zap.String("name", device.Name))
	target := device.TargetHost
	if target == "" {
		target = s.Settings.TargetHost
	}

	text, err := BuildGenerateCommand(device.Name, s.Settings.ClientDir, s.Settings.TemplateCommand)
	if err != nil {
		return s.fail(ctx, device, err)
	}

	invocationID, err := s.Dispatcher.Dispatch(ctx, remote.Command{
		Target:   target,
		Text:     text,
		Kind:     models.KindGenerateConfig,
		DeviceID: device.ID,
	})
	if err != nil {
		return s.fail(ctx, device, err)
	}

	out, err := s.Poller.AwaitCompletion(ctx, invocationID, target, time.Now().Add(s.Settings.ProvisionTimeout))
	if err != nil {
		return s.fail(ctx, device, err)
	}

	publicKey, err := parsePublicKey(out.Stdout)
	if err != nil {
		log.Warn("could not read public key from generate output", zap.Error(err))
	}

	device.TargetHost = target
	device.MarkGenerated(ArtifactPath(s.Settings.ClientDir, device.Name), publicKey)
	if err := s.persist(ctx, device); err != nil {
		// The remote side is done; the stale sweep will settle the record.
		log.Error("failed to persist generated device", zap.Error(err))
		return device, fmt.Errorf("failed to persist device %s: %w", device.ID, err)
	}

	log.Info("device provisioned", zap.String("invocationId", invocationID), zap.String("artifactPath", device.ArtifactPath))
	return device, nil
}

// fail records err on the device and returns it unchanged. The write is
// detached from ctx so a disconnected caller still leaves the device Failed.
func (s *DefaultProvisioningService) fail(ctx context.Context, device *models.Device, cause error) (*models.Device, error) {
	device.MarkFailed(cause)
	if err := s.persist(ctx, device); err != nil {
		s.Logger.Error("failed to persist failed device",
			zap.String("deviceId", device.ID), zap.NamedError("cause", cause), zap.Error(err))
	}
	s.Logger.Warn("provisioning failed",
		zap.String("deviceId", device.ID),
		zap.String("kind", string(models.KindOf(cause))),
		zap.Error(cause))
	return device, cause
}

// lockFailure classifies a Locker error. Only a caller that gave up is
// Canceled; a lock backend failure is Internal. The device is left untouched
// since it cannot be written safely without the lock.
func lockFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return models.NewProvisionError(models.KindCanceled, "gave up waiting for another provisioning run", err)
	}
	return models.NewProvisionError(models.KindInternal, "failed to acquire provisioning lock", err)
}

func (s *DefaultProvisioningService) persist(ctx context.Context, device *models.Device) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return s.Devices.Update(ctx, device)
}

// ResetFailed moves a Failed device back to Pending so Provision can run again.
func (s *DefaultProvisioningService) ResetFailed(ctx context.Context, ownerID, deviceID string) (*models.Device, error) {
	device, err := s.GetDevice(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.Lock(ctx, lockKey(device.Name))
	if err != nil {
		return device, lockFailure(ctx, err)
	}
	defer unlock()

	device, err = s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	switch device.State {
	case models.StateFailed:
	case models.StatePending:
		return device, models.NewProvisionError(models.KindAlreadyProvisioned, "provisioning is already in progress", nil)
	default:
		return device, models.NewProvisionError(models.KindAlreadyProvisioned, "device configuration has already been generated", nil)
	}

	device.ResetPending()
	if err := s.persist(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to reset device %s: %w", device.ID, err)
	}
	return device, nil
}

// DownloadConfig reads the generated profile of a device from the remote host.
func (s *DefaultProvisioningService) DownloadConfig(ctx context.Context, ownerID, deviceID string) (*models.Artifact, error) {
	device, err := s.GetDevice(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}
	if device.State != models.StateGenerated {
		return nil, models.ErrConfigNotReady
	}

	target := device.TargetHost
	if target == "" {
		target = s.Settings.TargetHost
	}

	content, err := s.Fetcher.Fetch(ctx, device.ID, target, device.ArtifactPath)
	if err != nil {
		return nil, err
	}
	if err := verifyArtifact(content, device.PublicKey); err != nil {
		s.Logger.Error("remote configuration drifted from device record",
			zap.String("deviceId", device.ID), zap.String("path", device.ArtifactPath), zap.Error(err))
		return nil, models.NewProvisionError(models.KindRemoteReadFailed, err.Error(), nil)
	}

	return &models.Artifact{
		Filename:    device.Name + ".conf",
		ContentType: ConfigContentType,
		Content:     content,
	}, nil
}

func (s *DefaultProvisioningService) GetDevice(ctx context.Context, ownerID, deviceID string) (*models.Device, error) {
	device, err := s.Devices.GetByIDForOwner(ctx, deviceID, ownerID)
	if err != nil {
		if errors.Is(err, deviceRepo.ErrNotFound) {
			return nil, models.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return device, nil
}

func (s *DefaultProvisioningService) ListDevices(ctx context.Context, ownerID string) ([]models.Device, error) {
	devices, err := s.Devices.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *DefaultProvisioningService) ListCommands(ctx context.Context, ownerID, deviceID string) ([]models.ProvisioningCommand, error) {
	if _, err := s.GetDevice(ctx, ownerID, deviceID); err != nil {
		return nil, err
	}
	if s.Commands == nil {
		return []models.ProvisioningCommand{}, nil
	}
	return s.Commands.GetByDevice(ctx, deviceID)
}

func (s *DefaultProvisioningService) load(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.Devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, deviceRepo.ErrNotFound) {
			return nil, models.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return device, nil
}
