// Package remotetest provides a scriptable in-memory remote executor for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nomadpi/services/remote"
)

// ErrTransient is returned by Status while a Script's StatusErrors are being consumed.
var ErrTransient = errors.New("remotetest: transient status failure")

// Script decides how one submission behaves.
type Script struct {
	// PendingPolls is how many Status calls report Pending before Result.
	// A negative value keeps the invocation pending forever.
	PendingPolls int
	// StatusErrors transient errors are returned before any status.
	StatusErrors int
	// NotFoundPolls Status calls report ErrInvocationNotFound first.
	NotFoundPolls int
	Result        remote.Invocation
}

type invocation struct {
	sub    remote.Submission
	script Script
	polls  int
}

// Executor is a fake remote.Executor.
type Executor struct {
	// Targets, when non-empty, lists the accepted target hosts.
	Targets []string
	// SubmitErr, when set, fails every submission.
	SubmitErr error
	// Respond picks the script for a submission. Defaults to immediate success.
	Respond func(sub remote.Submission) Script

	mu          sync.Mutex
	seq         int
	submissions []remote.Submission
	invocations map[string]*invocation
	statusCalls int
}

// Submit implements remote.Executor.
func (e *Executor) Submit(_ context.Context, sub remote.Submission) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.SubmitErr != nil {
		return "", e.SubmitErr
	}
	if len(e.Targets) > 0 && !contains(e.Targets, sub.Target) {
		return "", fmt.Errorf("%w: %s", remote.ErrUnknownTarget, sub.Target)
	}

	script := Script{Result: remote.Invocation{Status: remote.StatusSuccess}}
	if e.Respond != nil {
		script = e.Respond(sub)
	}

	e.seq++
	id := fmt.Sprintf("cmd-%04d", e.seq)
	if e.invocations == nil {
		e.invocations = make(map[string]*invocation)
	}
	e.invocations[id] = &invocation{sub: sub, script: script}
	e.submissions = append(e.submissions, sub)
	return id, nil
}

// Status implements remote.Executor.
func (e *Executor) Status(ctx context.Context, invocationID, target string) (*remote.Invocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusCalls++

	inv, ok := e.invocations[invocationID]
	if !ok || inv.sub.Target != target {
		return nil, fmt.Errorf("remotetest: no invocation %s on %s", invocationID, target)
	}
	if inv.script.StatusErrors > 0 {
		inv.script.StatusErrors--
		return nil, ErrTransient
	}
	if inv.script.NotFoundPolls > 0 {
		inv.script.NotFoundPolls--
		return nil, remote.ErrInvocationNotFound
	}
	if inv.script.PendingPolls < 0 || inv.polls < inv.script.PendingPolls {
		inv.polls++
		return &remote.Invocation{Status: remote.StatusPending}, nil
	}
	result := inv.script.Result
	return &result, nil
}

// Submissions returns every accepted submission in order.
func (e *Executor) Submissions() []remote.Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]remote.Submission(nil), e.submissions...)
}

// StatusCalls returns the number of Status queries received.
func (e *Executor) StatusCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusCalls
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
