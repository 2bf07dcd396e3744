package remote_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nomadpi/models"
	"nomadpi/services/remote"
	"nomadpi/services/remote/remotetest"

	"go.uber.org/zap"
)

func newFetcher(exec remote.Executor) *remote.Fetcher {
	logger := zap.NewNop()
	d := remote.NewDispatcher(exec, "AWS-RunShellScript", nil, logger)
	p := remote.NewPoller(exec, fastPoll(), nil, logger)
	return remote.NewFetcher(d, p, time.Second, logger)
}

func TestFetcher_ReturnsStdout(t *testing.T) {
	const profile = "[Interface]\nAddress = 10.8.0.2/32\n"
	exec := &remotetest.Executor{Respond: func(sub remote.Submission) remotetest.Script {
		return remotetest.Script{PendingPolls: 1, Result: remote.Invocation{Status: remote.StatusSuccess, Stdout: profile}}
	}}

	got, err := newFetcher(exec).Fetch(context.Background(), "dev-1", "i-1", "/etc/wireguard/clients/laptop1.conf")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != profile {
		t.Errorf("Fetch() = %q, want %q", got, profile)
	}
	cmd := exec.Submissions()[0].Commands[0]
	if cmd != "sudo cat -- '/etc/wireguard/clients/laptop1.conf'" {
		t.Errorf("command = %q", cmd)
	}
}

func TestFetcher_RemoteErrorIsReadFailure(t *testing.T) {
	exec := &remotetest.Executor{Respond: func(remote.Submission) remotetest.Script {
		return remotetest.Script{Result: remote.Invocation{Status: remote.StatusFailed, Stderr: "cat: /etc/wireguard/clients/gone.conf: No such file or directory"}}
	}}

	_, err := newFetcher(exec).Fetch(context.Background(), "dev-1", "i-1", "/etc/wireguard/clients/gone.conf")
	if !errors.Is(err, models.ErrRemoteReadFailed) {
		t.Fatalf("Fetch() error = %v, want RemoteReadFailed", err)
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Errorf("error should carry remote stderr: %v", err)
	}
}

func TestFetcher_RejectsUnsafePaths(t *testing.T) {
	exec := &remotetest.Executor{}
	for _, p := range []string{"relative.conf", "/etc/../etc/shadow", "/tmp/a\nreboot"} {
		if _, err := newFetcher(exec).Fetch(context.Background(), "dev-1", "i-1", p); err == nil {
			t.Errorf("Fetch(%q) succeeded, want error", p)
		}
	}
	if n := len(exec.Submissions()); n != 0 {
		t.Errorf("unsafe paths were dispatched %d times", n)
	}
}

func TestFetcher_MissingPathIsArtifactNotFound(t *testing.T) {
	exec := &remotetest.Executor{}
	_, err := newFetcher(exec).Fetch(context.Background(), "dev-1", "i-1", "")
	if !errors.Is(err, models.ErrArtifactNotFound) {
		t.Fatalf("Fetch() error = %v, want ArtifactNotFound", err)
	}
	if n := len(exec.Submissions()); n != 0 {
		t.Errorf("dispatched %d commands, want 0", n)
	}
}
