package deviceRepo

import (
	"context"
	"errors"
	"time"

	"nomadpi/models"
)

var (
	// ErrNotFound is returned when no device matches the lookup.
	ErrNotFound = errors.New("device not found")
	// ErrDuplicateName is returned when another device already uses the name.
	ErrDuplicateName = errors.New("device name already in use")
)

// DeviceRepository defines methods for device data access.
type DeviceRepository interface {
	// Create inserts a new device record.
	Create(ctx context.Context, device *models.Device) error
	// GetByID retrieves a device by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Device, error)
	// GetByIDForOwner retrieves a device only if it belongs to ownerID.
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*models.Device, error)
	// GetByOwner retrieves all devices of a user, newest first.
	GetByOwner(ctx context.Context, ownerID string) ([]models.Device, error)
	// Update replaces the mutable fields of an existing device.
	Update(ctx context.Context, device *models.Device) error
	// FindStalePending returns devices still Pending whose last update is before cutoff.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Device, error)
}
