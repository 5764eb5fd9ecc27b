package main

import (
	"b3pov/config"
	"b3pov/internal/crash"
	"b3pov/internal/funcindex"
	"b3pov/internal/pov"
	"b3pov/pkg/database"
	"b3pov/pkg/logger"
	"b3pov/pkg/mq"
	"b3pov/pkg/telemetry"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type runnerParams struct {
	fx.In

	Config     *config.AppConfig
	Logger     *zap.Logger
	Service    *pov.Service
	Shutdowner fx.Shutdowner
	Lifecycle  fx.Lifecycle
}

// startRunner builds the target, runs every PoV under POV_INPUT and shuts the
// app down. The exit code is 1 when any PoV could not be run.
func startRunner(p runnerParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := run(ctx, p)
				if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					p.Logger.Error("failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func run(ctx context.Context, p runnerParams) int {
	if err := p.Service.Build(ctx); err != nil {
		p.Logger.Error("target build failed", zap.Error(err))
		return 1
	}

	if p.Config.FunctionIndexPath != "" || p.Config.Target.HarnessSourcePath != "" {
		if _, err := p.Service.ResolveHarness(ctx, ""); err != nil {
			p.Logger.Warn("harness source not resolved", zap.Error(err))
		}
	}

	if p.Config.PovInput == "" {
		p.Logger.Info("POV_INPUT not set, nothing to run")
		return 0
	}

	files, err := collectInputs(p.Config.PovInput)
	if err != nil {
		p.Logger.Error("failed to list pov inputs", zap.Error(err))
		return 1
	}

	var crashed, timedOut, failed int
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		verdict, err := p.Service.Submit(ctx, pov.Request{PovPath: file})
		switch {
		case err != nil:
			failed++
			p.Logger.Error("pov could not be run", zap.String("file", file), zap.Error(err))
		case verdict.TimedOut:
			timedOut++
		case verdict.Crashed:
			crashed++
		}
	}

	p.Logger.Info("pov run summary",
		zap.Int("total", len(files)),
		zap.Int("crashed", crashed),
		zap.Int("timed_out", timedOut),
		zap.Int("failed", failed))
	if failed > 0 {
		return 1
	}
	return 0
}

// collectInputs returns path itself, or the regular files directly inside it
// in name order.
func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,          // inject config
			logger.NewLogger,           // inject logger
			telemetry.NewTelemetry,     // inject telemetry
			telemetry.NewTracerFactory, // inject telemetry tracer factory
			funcindex.NewFromConfig,    // inject function index
			database.NewDBConnection,   // inject db connection
			database.NewRedisClient,    // inject redis client
			mq.NewRabbitMQ,             // inject rabbitmq service
			crash.NewCrashManager,      // inject crash manager
		),
		pov.Module, // inject target, pov service and verdict sinks
		fx.Invoke(
			startRunner,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	app.Run()
}
