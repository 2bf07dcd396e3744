package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	commandRepo "nomadpi/database/repository/command"
	"nomadpi/models"
	"nomadpi/services/remote"
	"nomadpi/services/remote/remotetest"

	"go.uber.org/zap"
)

func fastPoll() remote.PollConfig {
	return remote.PollConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
		Multiplier:      2,
		MaxQueryErrors:  3,
	}
}

func submit(t *testing.T, exec *remotetest.Executor) string {
	t.Helper()
	id, err := exec.Submit(context.Background(), remote.Submission{Target: "i-1", Commands: []string{"true"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return id
}

func TestPoller_SuccessAfterPendingPolls(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{
			PendingPolls: 2,
			Result:       remote.Invocation{Status: remote.StatusSuccess, Stdout: "hello"},
		}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	out, err := p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if out.Stdout != "hello" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "hello")
	}
	if got := exec.StatusCalls(); got != 3 {
		t.Errorf("StatusCalls = %d, want 3", got)
	}
}

func TestPoller_RemoteFailure(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{Result: remote.Invocation{Status: remote.StatusFailed, Stderr: "wg: command not found\n", ExitCode: 127}}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	_, err := p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(time.Second))
	if !errors.Is(err, models.ErrRemoteCommandFailed) {
		t.Fatalf("AwaitCompletion() error = %v, want RemoteCommandFailed", err)
	}
	if got := models.MessageOf(err); got != "wg: command not found" {
		t.Errorf("message = %q", got)
	}
}

func TestPoller_TimesOutWithinDeadline(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{PendingPolls: -1}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	deadline := 60 * time.Millisecond
	start := time.Now()
	_, err := p.AwaitCompletion(context.Background(), id, "i-1", start.Add(deadline))
	elapsed := time.Since(start)

	if !errors.Is(err, models.ErrProvisioningTimeout) {
		t.Fatalf("AwaitCompletion() error = %v, want ProvisioningTimeout", err)
	}
	if errors.Is(err, models.ErrRemoteCommandFailed) {
		t.Fatal("timeout must be distinct from a remote failure")
	}
	if elapsed > deadline+250*time.Millisecond {
		t.Errorf("returned after %v, deadline was %v", elapsed, deadline)
	}
}

func TestPoller_RetriesTransientQueryErrors(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{
			StatusErrors:  2,
			NotFoundPolls: 4,
			Result:        remote.Invocation{Status: remote.StatusSuccess, Stdout: "ok"},
		}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	out, err := p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("AwaitCompletion() error = %v", err)
	}
	if out.Stdout != "ok" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestPoller_GivesUpAfterConsecutiveQueryErrors(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{StatusErrors: 10}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	_, err := p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(time.Second))
	if !errors.Is(err, models.ErrRemoteUnavailable) {
		t.Fatalf("AwaitCompletion() error = %v, want RemoteUnavailable", err)
	}
	if got := exec.StatusCalls(); got != 3 {
		t.Errorf("StatusCalls = %d, want 3", got)
	}
}

func TestPoller_CancelIsNotTimeout(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{PendingPolls: -1}
	}}
	p := remote.NewPoller(exec, fastPoll(), nil, zap.NewNop())
	id := submit(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := p.AwaitCompletion(ctx, id, "i-1", time.Now().Add(5*time.Second))
	if !errors.Is(err, models.ErrCanceled) {
		t.Fatalf("AwaitCompletion() error = %v, want Canceled", err)
	}
}

func TestPoller_JournalsTerminalStatus(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{PendingPolls: -1}
	}}
	journal := commandRepo.NewMemoryCommandRepo()
	d := remote.NewDispatcher(exec, "AWS-RunShellScript", journal, zap.NewNop())
	p := remote.NewPoller(exec, fastPoll(), journal, zap.NewNop())

	id, err := d.Dispatch(context.Background(), remote.Command{Target: "i-1", Text: "sleep 600", Kind: models.KindGenerateConfig, DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	_, _ = p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(20*time.Millisecond))

	cmds, _ := journal.GetByDevice(context.Background(), "dev-1")
	if len(cmds) != 1 {
		t.Fatalf("journal has %d commands, want 1", len(cmds))
	}
	if cmds[0].Status != models.CommandTimedOut || cmds[0].CompletedAt == nil {
		t.Errorf("journaled command = %+v, want timed_out with completion time", cmds[0])
	}
}

// emptyStatusExecutor answers every status query with neither an invocation
// nor an error.
type emptyStatusExecutor struct {
	*remotetest.Executor
}

func (emptyStatusExecutor) Status(context.Context, string, string) (*remote.Invocation, error) {
	return nil, nil
}

func TestPoller_EmptyStatusCountsAsQueryError(t *testing.T) {
	fake := &remotetest.Executor{}
	id := submit(t, fake)
	p := remote.NewPoller(emptyStatusExecutor{fake}, fastPoll(), nil, zap.NewNop())

	_, err := p.AwaitCompletion(context.Background(), id, "i-1", time.Now().Add(time.Second))
	if !errors.Is(err, models.ErrRemoteUnavailable) {
		t.Fatalf("AwaitCompletion() error = %v, want RemoteUnavailable", err)
	}
}
