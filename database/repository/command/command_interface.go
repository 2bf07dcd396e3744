package commandRepo

import (
	"context"
	"errors"

	"nomadpi/models"
)

// ErrNotFound is returned when no command matches the invocation ID.
var ErrNotFound = errors.New("command not found")

// CommandRepository persists the correlation records of dispatched remote commands.
type CommandRepository interface {
	// Record stores a newly dispatched command.
	Record(ctx context.Context, cmd models.ProvisioningCommand) error
	// Complete stores the terminal status of a command.
	Complete(ctx context.Context, invocationID string, status models.CommandStatus, detail string) error
	// GetByDevice lists the commands issued for a device, newest first.
	GetByDevice(ctx context.Context, deviceID string) ([]models.ProvisioningCommand, error)
}
