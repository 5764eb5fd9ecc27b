package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	shellPath      = "/bin/sh"
	DefaultTimeout = 60 * time.Second

	// how long Wait keeps draining pipes held open by orphaned children
	pipeDrainDelay = 2 * time.Second
)

type processOutput struct {
	exitCode int
	stdout   []byte
	stderr   []byte
}

// runProcess runs name with args in dir and captures both streams. A non-zero
// exit is not an error. When ctx ends, the process group is killed and the
// context error is returned together with the partial output.
func runProcess(ctx context.Context, dir string, name string, args ...string) (*processOutput, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = childEnv(os.Environ())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcess(cmd)
	cmd.Cancel = func() error { return terminateProcess(cmd) }
	cmd.WaitDelay = pipeDrainDelay

	err := cmd.Run()
	out := &processOutput{
		exitCode: exitCode(cmd.ProcessState),
		stdout:   stdout.Bytes(),
		stderr:   stderr.Bytes(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, nil
	}
	// the process exited but a background child kept the pipes open
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return out, nil
	}
	return out, fmt.Errorf("failed to execute %s: %w", name, err)
}

// runWithTimeout wraps runProcess with a wall-clock deadline. Exceeding it
// yields a *TimeoutError; cancellation of the parent context is returned as is.
func runWithTimeout(ctx context.Context, timeout time.Duration, dir, display string, name string, args ...string) (*processOutput, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runProcess(runCtx, dir, name, args...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{
			Command: display,
			Timeout: timeout,
			Stdout:  out.stdout,
			Stderr:  out.stderr,
		}
	}
	return out, err
}

// childEnv is the environment handed to target processes, without our
// OpenTelemetry settings or PWD.
func childEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "OTEL_") || strings.HasPrefix(e, "OTLP_") || strings.HasPrefix(e, "PWD=") {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}
