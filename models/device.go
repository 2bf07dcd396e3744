// File: nomadpi/models/device.go
package models

import (
	"fmt"
	"time"
)

// ProvisioningState tracks where a device is in the provisioning lifecycle.
type ProvisioningState string

const (
	StatePending   ProvisioningState = "pending"
	StateGenerated ProvisioningState = "generated"
	StateFailed    ProvisioningState = "failed"
)

// Device is a VPN client endpoint owned by a user.
type Device struct {
	ID           string            `bson:"id" json:"id"`
	Name         string            `bson:"name" json:"name"`
	OwnerID      string            `bson:"ownerId" json:"userId"`
	State        ProvisioningState `bson:"provisioningState" json:"provisioningState"`
	ArtifactPath string            `bson:"artifactPath,omitempty" json:"configPath,omitempty"`
	PublicKey    string            `bson:"publicKey,omitempty" json:"publicKey,omitempty"`
	TargetHost   string            `bson:"targetHost,omitempty" json:"-"`
	LastError    *DeviceError      `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// DeviceError records why the last provisioning attempt failed.
type DeviceError struct {
	Kind    ErrorKind `bson:"kind" json:"kind"`
	Message string    `bson:"message" json:"message"`
	At      time.Time `bson:"at" json:"at"`
}

// NewDevice returns a device in the Pending state.
func NewDevice(id, name, ownerID string) *Device {
	now := time.Now()
	return &Device{
		ID:        id,
		Name:      name,
		OwnerID:   ownerID,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConfigGenerated reports whether the client profile exists on the remote host.
func (d *Device) ConfigGenerated() bool {
	return d.State == StateGenerated
}

// MarkGenerated records a successful provisioning run.
func (d *Device) MarkGenerated(artifactPath, publicKey string) {
	d.State = StateGenerated
	d.ArtifactPath = artifactPath
	d.PublicKey = publicKey
	d.LastError = nil
	d.UpdatedAt = time.Now()
}

// MarkFailed records a failed provisioning run. The artifact path is cleared.
func (d *Device) MarkFailed(err error) {
	d.State = StateFailed
	d.ArtifactPath = ""
	d.LastError = &DeviceError{
		Kind:    KindOf(err),
		Message: err.Error(),
		At:      time.Now(),
	}
	d.UpdatedAt = time.Now()
}

// ResetPending moves a failed device back to Pending so it can be provisioned again.
func (d *Device) ResetPending() {
	d.State = StatePending
	d.ArtifactPath = ""
	d.PublicKey = ""
	d.UpdatedAt = time.Now()
}

// Validate checks that artifactPath is set if and only if the device is Generated.
func (d *Device) Validate() error {
	switch d.State {
	case StatePending, StateGenerated, StateFailed:
	default:
		return fmt.Errorf("device %s: unknown provisioning state %q", d.ID, d.State)
	}
	if (d.State == StateGenerated) != (d.ArtifactPath != "") {
		return fmt.Errorf("device %s: artifact path must be set only in state %q (state %q, path %q)",
			d.ID, StateGenerated, d.State, d.ArtifactPath)
	}
	return nil
}

// Artifact is a generated client configuration ready to be served.
type Artifact struct {
	Filename    string
	ContentType string
	Content     []byte
}
