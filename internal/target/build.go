package target

import (
	"b3pov/pkg/telemetry"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Build runs the build command once per Project. The first outcome is kept:
// later calls never execute the command again and return the same error, or
// nil after a successful or skipped build.
func (p *Project) Build(ctx context.Context) error {
	p.buildOnce.Do(func() {
		p.buildErr = p.build(ctx)
		if p.buildErr == nil {
			p.built.Store(true)
		}
	})
	return p.buildErr
}

// Built reports whether the target is ready to run.
func (p *Project) Built() bool {
	return p.built.Load()
}

func (p *Project) build(ctx context.Context) error {
	if p.buildCommand == "" {
		p.logger.Info("no build command configured, treating target as pre-built")
		return nil
	}

	buildTracer := telemetry.FromContext(ctx).Spawn("building target").WithAttributes(
		telemetry.NewSpanAttributes(telemetry.Building).
			WithExtraAttribute("build.command", p.buildCommand),
	)
	buildTracer.Start()
	defer buildTracer.End()

	p.logger.Info("building target",
		zap.String("command", p.buildCommand),
		zap.String("source_dir", p.sourceDir))

	start := time.Now()
	out, err := runProcess(ctx, p.sourceDir, shellPath, "-c", p.buildCommand)
	if err != nil {
		buildTracer.SetStatus(codes.Error, "build command could not run")
		p.logger.Error("failed to run build command", zap.Error(err))
		return fmt.Errorf("failed to run build command: %w", err)
	}

	if out.exitCode != 0 {
		buildTracer.AddEvent("build_failed", telemetry.NewEventAttributes(map[string]string{
			"exit_code": fmt.Sprint(out.exitCode),
		}))
		buildTracer.SetStatus(codes.Error, "build failed")
		p.logger.Error("target build failed",
			zap.Int("exit_code", out.exitCode),
			zap.ByteString("stdout", out.stdout),
			zap.ByteString("stderr", out.stderr))
		return &BuildError{
			Command:  p.buildCommand,
			ExitCode: out.exitCode,
			Stdout:   out.stdout,
			Stderr:   out.stderr,
		}
	}

	buildTracer.SetStatus(codes.Ok, "build successful")
	p.logger.Info("target built", zap.Duration("elapsed", time.Since(start)))
	return nil
}
