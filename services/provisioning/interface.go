package provisioning

import (
	"context"
	"time"

	commandRepo "nomadpi/database/repository/command"
	deviceRepo "nomadpi/database/repository/device"
	"nomadpi/models"
	"nomadpi/services/remote"

	"go.uber.org/zap"
)

// ProvisioningService drives the per-device provisioning lifecycle.
type ProvisioningService interface {
	// Device records
	CreateDevice(ctx context.Context, ownerID, name string) (*models.Device, error)
	GetDevice(ctx context.Context, ownerID, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, ownerID string) ([]models.Device, error)
	ListCommands(ctx context.Context, ownerID, deviceID string) ([]models.ProvisioningCommand, error)

	// Lifecycle
	Provision(ctx context.Context, deviceID string) (*models.Device, error)
	ResetFailed(ctx context.Context, ownerID, deviceID string) (*models.Device, error)
	DownloadConfig(ctx context.Context, ownerID, deviceID string) (*models.Artifact, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// CommandDispatcher submits a remote command and returns its invocation ID.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd remote.Command) (string, error)
}

// CompletionPoller waits for an invocation to finish.
type CompletionPoller interface {
	AwaitCompletion(ctx context.Context, invocationID, target string, deadline time.Time) (*remote.CommandOutput, error)
}

// ArtifactFetcher reads a file from the remote host.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, deviceID, target, remotePath string) ([]byte, error)
}

// Settings carries the remote layout and provisioning deadline.
type Settings struct {
	TargetHost       string
	ClientDir        string
	TemplateCommand  string
	ProvisionTimeout time.Duration
}

// DefaultProvisioningService is the production implementation.
type DefaultProvisioningService struct {
	Devices    deviceRepo.DeviceRepository
	Commands   commandRepo.CommandRepository
	Dispatcher CommandDispatcher
	Poller     CompletionPoller
	Fetcher    ArtifactFetcher
	Locker     Locker
	Settings   Settings
	Logger     *zap.Logger
}
