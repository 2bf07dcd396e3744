package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	"nomadpi/models"

	"go.uber.org/zap"
)

var errNoStatus = errors.New("executor returned no invocation status")

// PollConfig bounds how often the poller queries invocation status.
type PollConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxQueryErrors is the number of consecutive failed status queries
	// tolerated before giving up with RemoteUnavailable.
	MaxQueryErrors int
}

// DefaultPollConfig returns the production polling policy.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxQueryErrors:  5,
	}
}

func (c PollConfig) normalized() PollConfig {
	def := DefaultPollConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.MaxQueryErrors <= 0 {
		c.MaxQueryErrors = def.MaxQueryErrors
	}
	return c
}

// Poller waits for dispatched invocations to reach a terminal state.
type Poller struct {
	exec    Executor
	cfg     PollConfig
	journal Journal
	logger  *zap.Logger
}

// NewPoller builds a Poller. journal may be nil.
func NewPoller(exec Executor, cfg PollConfig, journal Journal, logger *zap.Logger) *Poller {
	return &Poller{exec: exec, cfg: cfg.normalized(), journal: journal, logger: logger}
}

// AwaitCompletion polls invocationID until it succeeds, fails, or deadline passes.
func (p *Poller) AwaitCompletion(ctx context.Context, invocationID, target string, deadline time.Time) (*CommandOutput, error) {
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log := p.logger.With(zap.String("invocationId", invocationID), zap.String("target", target))
	interval := p.cfg.InitialInterval
	queryErrors := 0
	polls := 0
	var lastErr error

	for {
		polls++
		inv, err := p.exec.Status(pollCtx, invocationID, target)
		if err == nil && inv == nil {
			err = errNoStatus
		}
		switch {
		case err != nil && pollCtx.Err() != nil:
			// The query was cut short by the deadline or cancellation; handled below.
		case errors.Is(err, ErrInvocationNotFound):
			// Freshly submitted invocations take a moment to become visible.
			log.Debug("invocation not visible yet", zap.Int("poll", polls))
		case err != nil:
			queryErrors++
			lastErr = err
			log.Warn("status query failed", zap.Int("consecutiveErrors", queryErrors), zap.Error(err))
			if queryErrors >= p.cfg.MaxQueryErrors {
				p.complete(ctx, invocationID, models.CommandFailed, err.Error())
				return nil, models.NewProvisionError(models.KindRemoteUnavailable, "status queries kept failing", err)
			}
		default:
			queryErrors = 0
			switch inv.Status {
			case StatusSuccess:
				log.Info("remote command succeeded", zap.Int("polls", polls))
				p.complete(ctx, invocationID, models.CommandSucceeded, "")
				return &CommandOutput{InvocationID: invocationID, Stdout: inv.Stdout, Stderr: inv.Stderr}, nil
			case StatusFailed:
				detail := strings.TrimSpace(inv.Stderr)
				if detail == "" {
					detail = "remote command exited with an error"
				}
				log.Warn("remote command failed", zap.Int("exitCode", inv.ExitCode), zap.String("stderr", detail))
				p.complete(ctx, invocationID, models.CommandFailed, detail)
				return nil, models.NewProvisionError(models.KindRemoteCommandFailed, detail, nil)
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, p.stopped(ctx, pollCtx, invocationID, lastErr, polls)
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * p.cfg.Multiplier)
		if interval > p.cfg.MaxInterval {
			interval = p.cfg.MaxInterval
		}
	}
}

// stopped classifies why pollCtx ended: our deadline (or the caller's) is a
// timeout, anything else is a cancellation.
func (p *Poller) stopped(ctx, pollCtx context.Context, invocationID string, lastErr error, polls int) error {
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("remote command timed out", zap.String("invocationId", invocationID), zap.Int("polls", polls))
		p.complete(ctx, invocationID, models.CommandTimedOut, "deadline exceeded while pending")
		return models.NewProvisionError(models.KindProvisioningTimeout, "remote command did not complete before the deadline", lastErr)
	}
	p.logger.Info("polling canceled", zap.String("invocationId", invocationID))
	p.complete(ctx, invocationID, models.CommandCanceled, "caller canceled while pending")
	return models.NewProvisionError(models.KindCanceled, "polling canceled before the remote command completed", ctx.Err())
}

func (p *Poller) complete(ctx context.Context, invocationID string, status models.CommandStatus, detail string) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Complete(context.WithoutCancel(ctx), invocationID, status, detail); err != nil {
		p.logger.Warn("failed to journal command result", zap.String("invocationId", invocationID), zap.Error(err))
	}
}
