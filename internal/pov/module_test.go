package pov

import (
	"os"
	"path/filepath"
	"testing"

	"b3pov/config"
	"b3pov/internal/crash"
	"b3pov/pkg/mq"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func moduleConfig(t *testing.T) *config.AppConfig {
	cfg := testConfig()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.CrashDir = filepath.Join(t.TempDir(), "crashes")
	cfg.Target.SourceDir = t.TempDir()
	cfg.Target.RunCommand = "true"
	return cfg
}

func moduleOptions(cfg *config.AppConfig) fx.Option {
	return fx.Options(
		fx.NopLogger,
		fx.Supply(cfg, zap.NewNop()),
		fx.Provide(
			crash.NewCrashManager,
			func() *redis.Client { return nil },
			func() mq.RabbitMQ { return nil },
		),
		Module,
		fx.Invoke(func(*Service) {}),
	)
}

func TestModuleRemovesWorkspaceOnStop(t *testing.T) {
	cfg := moduleConfig(t)
	app := fxtest.New(t, moduleOptions(cfg))
	app.RequireStart()

	entries, err := os.ReadDir(cfg.WorkspaceRoot)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	app.RequireStop()
	entries, err = os.ReadDir(cfg.WorkspaceRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestModuleLeavesNoWorkspaceWhenABackendFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := moduleConfig(t)
	cfg.CrashDir = filepath.Join(blocker, "crashes")

	app := fx.New(moduleOptions(cfg))
	require.Error(t, app.Err())
	assert.Contains(t, app.Err().Error(), "failed to create crash folder")

	entries, err := os.ReadDir(cfg.WorkspaceRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
