package remote

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"nomadpi/models"

	"go.uber.org/zap"
)

// Fetcher reads files from the target host through the dispatcher and poller.
type Fetcher struct {
	dispatcher *Dispatcher
	poller     *Poller
	timeout    time.Duration
	logger     *zap.Logger
}

// NewFetcher builds a Fetcher whose reads are bounded by timeout.
func NewFetcher(dispatcher *Dispatcher, poller *Poller, timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{dispatcher: dispatcher, poller: poller, timeout: timeout, logger: logger}
}

// CatCommand builds the read command for remotePath.
func CatCommand(remotePath string) (string, error) {
	if !path.IsAbs(remotePath) || path.Clean(remotePath) != remotePath || strings.ContainsAny(remotePath, "\x00\n") {
		return "", models.NewProvisionError(models.KindRemoteReadFailed, "refusing to read unsafe remote path "+remotePath, nil)
	}
	return "sudo cat -- " + ShellQuote(remotePath), nil
}

// Fetch returns the contents of remotePath on target. deviceID is only used
// to correlate the journaled command. An empty remotePath fails with
// ArtifactNotFound without contacting the host.
func (f *Fetcher) Fetch(ctx context.Context, deviceID, target, remotePath string) ([]byte, error) {
	if remotePath == "" {
		// No artifact was ever recorded for this device.
		return nil, models.ErrArtifactNotFound
	}
	text, err := CatCommand(remotePath)
	if err != nil {
		return nil, err
	}

	invocationID, err := f.dispatcher.Dispatch(ctx, Command{
		Target:   target,
		Text:     text,
		Kind:     models.KindFetchArtifact,
		DeviceID: deviceID,
	})
	if err != nil {
		return nil, err
	}

	out, err := f.poller.AwaitCompletion(ctx, invocationID, target, time.Now().Add(f.timeout))
	if err != nil {
		if errors.Is(err, models.ErrRemoteCommandFailed) {
			return nil, models.NewProvisionError(models.KindRemoteReadFailed, "failed to read "+remotePath+": "+models.MessageOf(err), err)
		}
		return nil, err
	}

	f.logger.Debug("artifact fetched", zap.String("path", remotePath), zap.Int("bytes", len(out.Stdout)))
	return []byte(out.Stdout), nil
}
