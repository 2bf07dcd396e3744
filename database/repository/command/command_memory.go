package commandRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"nomadpi/models"
)

// MemoryCommandRepo keeps the command journal in process.
type MemoryCommandRepo struct {
	mu       sync.Mutex
	commands map[string]models.ProvisioningCommand
}

func NewMemoryCommandRepo() *MemoryCommandRepo {
	return &MemoryCommandRepo{commands: make(map[string]models.ProvisioningCommand)}
}

func (r *MemoryCommandRepo) Record(_ context.Context, cmd models.ProvisioningCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.InvocationID] = cmd
	return nil
}

func (r *MemoryCommandRepo) Complete(_ context.Context, invocationID string, status models.CommandStatus, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[invocationID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	cmd.Status = status
	cmd.Detail = detail
	cmd.CompletedAt = &now
	r.commands[invocationID] = cmd
	return nil
}

func (r *MemoryCommandRepo) GetByDevice(_ context.Context, deviceID string) ([]models.ProvisioningCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commands := []models.ProvisioningCommand{}
	for _, c := range r.commands {
		if c.DeviceID == deviceID {
			commands = append(commands, c)
		}
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].SubmittedAt.After(commands[j].SubmittedAt)
	})
	return commands, nil
}
