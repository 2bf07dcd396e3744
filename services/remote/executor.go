// Package remote talks to the remote-execution service that runs shell
// commands on the WireGuard host: dispatching commands, polling them to
// completion and reading files back.
package remote

import (
	"context"
	"errors"
	"strings"

	"nomadpi/models"
)

// Status is the remote-reported state of an invocation.
type Status string

const (
	StatusPending Status = "Pending"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Terminal reports whether no further status change is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

var (
	// ErrUnknownTarget is returned by an Executor when the target host is not managed.
	ErrUnknownTarget = errors.New("unknown target host")
	// ErrInvocationNotFound is returned while a fresh invocation is not yet visible.
	ErrInvocationNotFound = errors.New("invocation not found")
)

// Submission is one request to run commands on a target host.
type Submission struct {
	Target   string
	Document string
	Commands []string
}

// Invocation is a status snapshot of a submitted command.
type Invocation struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor is the remote-execution API.
type Executor interface {
	// Submit starts the commands on the target and returns an invocation ID.
	Submit(ctx context.Context, sub Submission) (string, error)
	// Status reports the current state of an invocation.
	Status(ctx context.Context, invocationID, target string) (*Invocation, error)
}

// Journal persists dispatched commands and their outcome. Optional.
type Journal interface {
	Record(ctx context.Context, cmd models.ProvisioningCommand) error
	Complete(ctx context.Context, invocationID string, status models.CommandStatus, detail string) error
}

// CommandOutput is the captured result of a successful invocation.
type CommandOutput struct {
	InvocationID string
	Stdout       string
	Stderr       string
}

// ShellQuote wraps s in single quotes so a POSIX shell treats it as one literal word.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
