package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	"nomadpi/models"

	"go.uber.org/zap"
)

// Command is a shell invocation to run on a target host.
type Command struct {
	Target   string
	Text     string
	Kind     models.CommandKind
	DeviceID string
}

// Dispatcher submits commands to the remote-execution API.
type Dispatcher struct {
	exec     Executor
	document string
	journal  Journal
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher. journal may be nil.
func NewDispatcher(exec Executor, document string, journal Journal, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{exec: exec, document: document, journal: journal, logger: logger}
}

// Dispatch submits cmd and returns the invocation ID. Submission failures are
// reported as RemoteUnavailable; the command text is passed through untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (string, error) {
	if strings.TrimSpace(cmd.Target) == "" {
		return "", models.NewProvisionError(models.KindRemoteUnavailable, "no target host configured", ErrUnknownTarget)
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return "", models.NewProvisionError(models.KindRemoteUnavailable, "refusing to submit an empty command", nil)
	}

	invocationID, err := d.exec.Submit(ctx, Submission{
		Target:   cmd.Target,
		Document: d.document,
		Commands: []string{cmd.Text},
	})
	if err != nil {
		msg := "failed to submit remote command"
		if errors.Is(err, ErrUnknownTarget) {
			msg = "remote execution service rejected target " + cmd.Target
		}
		d.logger.Warn("dispatch failed",
			zap.String("target", cmd.Target),
			zap.String("kind", string(cmd.Kind)),
			zap.String("deviceId", cmd.DeviceID),
			zap.Error(err))
		return "", models.NewProvisionError(models.KindRemoteUnavailable, msg, err)
	}

	d.logger.Info("remote command dispatched",
		zap.String("invocationId", invocationID),
		zap.String("target", cmd.Target),
		zap.String("kind", string(cmd.Kind)),
		zap.String("deviceId", cmd.DeviceID))

	if d.journal != nil {
		record := models.ProvisioningCommand{
			InvocationID: invocationID,
			DeviceID:     cmd.DeviceID,
			TargetHost:   cmd.Target,
			Kind:         cmd.Kind,
			Status:       models.CommandPending,
			SubmittedAt:  time.Now(),
		}
		// The command is already running remotely; a journal failure must not hide that.
		if err := d.journal.Record(context.WithoutCancel(ctx), record); err != nil {
			d.logger.Warn("failed to journal dispatched command", zap.String("invocationId", invocationID), zap.Error(err))
		}
	}
	return invocationID, nil
}
