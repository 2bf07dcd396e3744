package deviceRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"nomadpi/models"
)

// MemoryDeviceRepo is an in-process DeviceRepository used for local runs and tests.
type MemoryDeviceRepo struct {
	mu      sync.RWMutex
	devices map[string]models.Device
}

func NewMemoryDeviceRepo() *MemoryDeviceRepo {
	return &MemoryDeviceRepo{devices: make(map[string]models.Device)}
}

func (r *MemoryDeviceRepo) Create(_ context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.Name == device.Name {
			return ErrDuplicateName
		}
	}
	r.devices[device.ID] = *device
	return nil
}

func (r *MemoryDeviceRepo) GetByID(_ context.Context, id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryDeviceRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Device, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return d, nil
}

func (r *MemoryDeviceRepo) GetByOwner(_ context.Context, ownerID string) ([]models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := []models.Device{}
	for _, d := range r.devices {
		if d.OwnerID == ownerID {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
	return devices, nil
}

func (r *MemoryDeviceRepo) Update(_ context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.ID]; !ok {
		return ErrNotFound
	}
	r.devices[device.ID] = *device
	return nil
}

func (r *MemoryDeviceRepo) FindStalePending(_ context.Context, cutoff time.Time) ([]models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []models.Device
	for _, d := range r.devices {
		if d.State == models.StatePending && d.UpdatedAt.Before(cutoff) {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// All returns a snapshot of every stored device.
func (r *MemoryDeviceRepo) All() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	return devices
}
