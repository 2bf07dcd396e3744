package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a provisioning failure.
type ErrorKind string

const (
	KindRemoteUnavailable   ErrorKind = "RemoteUnavailable"
	KindProvisioningTimeout ErrorKind = "ProvisioningTimeout"
	KindRemoteCommandFailed ErrorKind = "RemoteCommandFailed"
	KindRemoteReadFailed    ErrorKind = "RemoteReadFailed"
	KindArtifactNotFound    ErrorKind = "ArtifactNotFound"
	KindConfigNotReady      ErrorKind = "ConfigNotReady"
	KindDeviceNotFound      ErrorKind = "DeviceNotFound"
	KindAlreadyProvisioned  ErrorKind = "AlreadyProvisioned"
	KindInvalidDeviceName   ErrorKind = "InvalidDeviceName"
	KindDuplicateDeviceName ErrorKind = "DuplicateDeviceName"
	KindCanceled            ErrorKind = "Canceled"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
	KindInternal            ErrorKind = "Internal"
)

// Retryable reports whether the caller may repeat the operation without
// operator intervention.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRemoteUnavailable, KindProvisioningTimeout, KindCanceled:
		return true
	}
	return false
}

// ProvisionError is returned by every provisioning component.
type ProvisionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProvisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// Is matches any ProvisionError of the same kind, so the sentinels below
// work with errors.Is.
func (e *ProvisionError) Is(target error) bool {
	var t *ProvisionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewProvisionError builds a ProvisionError wrapping err (which may be nil).
func NewProvisionError(kind ErrorKind, message string, err error) error {
	return &ProvisionError{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrRemoteUnavailable   = &ProvisionError{Kind: KindRemoteUnavailable, Message: "remote execution service unavailable"}
	ErrProvisioningTimeout = &ProvisionError{Kind: KindProvisioningTimeout, Message: "remote command did not complete before the deadline"}
	ErrRemoteCommandFailed = &ProvisionError{Kind: KindRemoteCommandFailed, Message: "remote command failed"}
	ErrRemoteReadFailed    = &ProvisionError{Kind: KindRemoteReadFailed, Message: "failed to read configuration from remote host"}
	ErrArtifactNotFound    = &ProvisionError{Kind: KindArtifactNotFound, Message: "configuration artifact not found"}
	ErrConfigNotReady      = &ProvisionError{Kind: KindConfigNotReady, Message: "Configuration not yet generated"}
	ErrDeviceNotFound      = &ProvisionError{Kind: KindDeviceNotFound, Message: "Device not found"}
	ErrAlreadyProvisioned  = &ProvisionError{Kind: KindAlreadyProvisioned, Message: "device has already been provisioned"}
	ErrInvalidDeviceName   = &ProvisionError{Kind: KindInvalidDeviceName, Message: "invalid device name"}
	ErrDuplicateDeviceName = &ProvisionError{Kind: KindDuplicateDeviceName, Message: "device name already in use"}
	ErrCanceled            = &ProvisionError{Kind: KindCanceled, Message: "operation canceled"}
)

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// MessageOf returns the human-readable message of a ProvisionError, falling
// back to err.Error().
func MessageOf(err error) string {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
