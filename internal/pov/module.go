package pov

import (
	"b3pov/config"
	"b3pov/internal/funcindex"
	"b3pov/internal/target"
	"b3pov/pkg/telemetry"
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ProjectParams struct {
	fx.In

	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle

	// Everything else the service needs is built before the workspace, so a
	// failing backend aborts startup without leaving a directory behind.
	Sinks         []Sink                   `group:"verdict_sinks"`
	Index         *funcindex.Index         `optional:"true"`
	TracerFactory *telemetry.TracerFactory `optional:"true"`
}

// NewProject creates the configured target. Its workspace is removed when the
// application stops or fails to start.
func NewProject(p ProjectParams) (*target.Project, error) {
	t := p.Config.Target
	project, err := target.New(target.Options{
		SourceDir:           t.SourceDir,
		BuildCommand:        t.BuildCommand,
		RunCommand:          t.RunCommand,
		HarnessFunctionName: t.HarnessFunctionName,
		HarnessSourcePath:   t.HarnessSourcePath,
		CrashKeywords:       t.CrashKeywords,
		WorkspaceRoot:       p.Config.WorkspaceRoot,
	}, p.Logger)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			project.Cleanup()
			return nil
		},
	})
	return project, nil
}

func asSink(f any) any {
	return fx.Annotate(f, fx.As(new(Sink)), fx.ResultTags(`group:"verdict_sinks"`))
}

// Module provides the target, the service and every verdict sink whose
// backend is configured.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewProject, fx.As(new(target.Target))),
		NewService,
		NewRedisRecorder,
		asSink(NewCrashSink),
		asSink(func(r *RedisRecorder) *RedisRecorder { return r }),
		asSink(NewVerdictPublisher),
	),
)
