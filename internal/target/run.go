package target

import (
	"b3pov/pkg/telemetry"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// RunResult is the outcome of one PoV execution.
type RunResult struct {
	ExitCode            int
	Stdout              []byte
	Stderr              []byte
	Command             string   // exactly what was handed to the shell
	TriggeredSanitizers []string // empty when the run was clean
}

func (r *RunResult) Crashed() bool {
	return len(r.TriggeredSanitizers) > 0
}

func (r *RunResult) String() string {
	return decode(r.Stdout) + "\n" + decode(r.Stderr)
}

// CommandResult is the outcome of a command run inside the workspace.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Command  string
}

// RunPov executes the run command against dataFile and classifies the
// result. A crash is a normal result; exceeding timeout returns a
// *TimeoutError instead.
func (p *Project) RunPov(ctx context.Context, harness, dataFile, sanitizer string, timeout time.Duration) (*RunResult, error) {
	if p.runCommand == "" {
		return nil, fmt.Errorf("%w: run command is empty", ErrConfiguration)
	}

	command := FormatCommand(p.runCommand, PlaceholderValues{
		Input:     dataFile,
		Harness:   harness,
		Sanitizer: sanitizer,
		SourceDir: p.sourceDir,
	})

	runTracer := telemetry.FromContext(ctx).Spawn("running pov").WithAttributes(
		telemetry.NewSpanAttributes(telemetry.Testing).
			WithTargetHarness(harness).
			WithSanitizer(sanitizer).
			WithExtraAttribute("pov.command", command),
	)
	runTracer.Start()
	defer runTracer.End()

	p.logger.Debug("running pov",
		zap.String("harness", harness),
		zap.String("input", dataFile),
		zap.String("command", command))

	out, err := runWithTimeout(ctx, timeout, p.sourceDir, command, shellPath, "-c", command)
	if err != nil {
		runTracer.SetStatus(codes.Error, err.Error())
		p.logger.Warn("pov run did not complete",
			zap.String("harness", harness),
			zap.String("input", dataFile),
			zap.Error(err))
		return nil, err
	}

	triggered := p.classifier.Classify(out.exitCode, out.stdout, out.stderr, sanitizer)
	result := &RunResult{
		ExitCode:            out.exitCode,
		Stdout:              out.stdout,
		Stderr:              out.stderr,
		Command:             command,
		TriggeredSanitizers: triggered,
	}

	runTracer.WithAttributes(telemetry.EmptySpanAttributes().WithPovOutcome(result.ExitCode, result.Crashed()))
	runTracer.SetStatus(codes.Ok, "pov executed")
	p.logger.Info("pov executed",
		zap.String("harness", harness),
		zap.String("input", dataFile),
		zap.Int("exit_code", result.ExitCode),
		zap.Strings("triggered_sanitizers", triggered))
	return result, nil
}

// RunInWorkspace runs command through bash with the workspace as working
// directory. A command naming a /work/ script runs the staged copy of that
// script from the workspace instead.
func (p *Project) RunInWorkspace(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("%w: workspace command is empty", ErrConfiguration)
	}

	args := []string{"-lc", command}
	if strings.HasPrefix(command, "/work/") {
		fields := strings.Fields(command)
		args = append([]string{filepath.Base(fields[0])}, fields[1:]...)
	}

	out, err := runWithTimeout(ctx, timeout, p.workspace.Dir(), command, "bash", args...)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("workspace command finished",
		zap.String("command", command),
		zap.Int("exit_code", out.exitCode))
	return &CommandResult{
		ExitCode: out.exitCode,
		Stdout:   out.stdout,
		Stderr:   out.stderr,
		Command:  command,
	}, nil
}
