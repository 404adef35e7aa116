package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

// pipeDrainDelay bounds how long Wait keeps copying output after the process
// group has been killed.
const pipeDrainDelay = time.Second

// RunResult is the outcome of a command that ran to completion.
type RunResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// Runner spawns a shell command. Implementations must return ErrTimeout when
// the command is killed for exceeding its time budget.
type Runner interface {
	Run(ctx context.Context, command string) (*RunResult, error)
}

type ShellRunner struct {
	Timeout   time.Duration
	MaxOutput int
}

func NewShellRunner(timeout time.Duration, maxOutput int) *ShellRunner {
	return &ShellRunner{Timeout: timeout, MaxOutput: maxOutput}
}

// Run executes command through the platform shell in its own process group.
// On timeout the whole group is killed, so children the shell started do not
// outlive the call or hold its pipes open.
func (r *ShellRunner) Run(ctx context.Context, command string) (*RunResult, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := shellCommand(runCtx, command)
	configureProcessGroup(cmd)
	cmd.WaitDelay = pipeDrainDelay

	stdoutBuf := &limitedBuffer{limit: r.MaxOutput}
	stderrBuf := &limitedBuffer{limit: r.MaxOutput}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	err := cmd.Run()
	if cmd.Process != nil {
		// Background children may still hold the pipes after the shell exits.
		killProcessGroup(cmd)
	}
	if runCtx.Err() != nil && ctx.Err() == nil {
		return nil, ErrTimeout
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &RunResult{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdoutBuf.truncated || stderrBuf.truncated,
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// The shell exited 0 but a leftover child kept its output open.
		result.Truncated = true
	default:
		return nil, err
	}
	return result, nil
}

type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

var _ io.Writer = (*limitedBuffer)(nil)
