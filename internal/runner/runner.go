// Package runner executes external programs as argv tokens, never through a
// shell, and reports how they finished.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the context
// kills the process. Children of sudo keep the pipes open otherwise.
const waitDelay = 2 * time.Second

// Command is a program path plus its arguments.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result describes a program that started.
type Result struct {
	Output   string // combined stdout and stderr
	ExitCode int
	TimedOut bool
}

// Success reports a zero exit that finished within its deadline.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner runs a command to completion. A non-nil error means the program
// could not be started; a non-zero exit is reported through Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, cmd Command) (Result, error)

func (f Func) Run(ctx context.Context, cmd Command) (Result, error) { return f(ctx, cmd) }

// Exec runs commands with os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) (Result, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
	}
	waitErr := cmd.Wait()
	res, err := finish(ctx, out.String(), waitErr)
	if err != nil {
		return res, fmt.Errorf("wait %s: %w", c.Path, err)
	}
	return res, nil
}

// finish classifies the outcome of Wait. A process that exited cleanly is
// never a timeout, even if the deadline passed while it was being reaped.
func finish(ctx context.Context, output string, waitErr error) (Result, error) {
	res := Result{Output: output}
	if waitErr == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, nil
	}
	return res, waitErr
}
