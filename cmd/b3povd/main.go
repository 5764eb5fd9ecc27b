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
	"b3pov/pkg/watchdog"
	"context"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// prebuild builds the target as soon as the daemon starts so the first PoV
// does not pay for it. A failure is logged; every submission reports it too.
func prebuild(lc fx.Lifecycle, service *pov.Service, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := service.Build(ctx); err != nil {
					logger.Error("target build failed", zap.Error(err))
					return
				}
				logger.Info("target ready")
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,           // inject config
			logger.NewLogger,            // inject logger
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			funcindex.NewFromConfig,     // inject function index
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			mq.NewRabbitMQ,              // inject rabbitmq service
			crash.NewCrashManager,       // inject crash manager
			watchdog.NewWatchDogFactory, // inject watchdog factory
		),
		pov.Module, // inject target, pov service and verdict sinks
		fx.Invoke(
			prebuild,
			pov.StartQueueConsumer,
			pov.StartInbox,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			zlogger := fxevent.ZapLogger{Logger: log}
			zlogger.UseLogLevel(zap.DebugLevel)
			return &zlogger
		}),
	)
	app.Run()
}
