package crash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"b3pov/config"
	"b3pov/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*CrashManager, *fxtest.Lifecycle) {
	t.Helper()
	lc := fxtest.NewLifecycle(t)
	c, err := NewCrashManager(CrashManagerParams{
		Config:    &config.AppConfig{CrashDir: filepath.Join(t.TempDir(), "crashes")},
		Logger:    zap.NewNop(),
		Lifecycle: lc,
	})
	require.NoError(t, err)
	return c, lc
}

func writePov(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pov.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreDeduplicatesByContent(t *testing.T) {
	c, _ := newTestManager(t)

	crash := Crash{ProjectID: "proj", VerdictID: "v1", Harness: "fuzz_me", Sanitizer: "address", PovFile: writePov(t, "AAAA")}
	first, err := c.Store(context.Background(), crash)
	require.NoError(t, err)

	crash.VerdictID = "v2"
	crash.PovFile = writePov(t, "AAAA")
	second, err := c.Store(context.Background(), crash)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// md5("AAAA")
	assert.Equal(t, "098890dde069e9abad63f19a0d9e1f32", filepath.Base(first))
	assert.Equal(t, filepath.Join(c.crashFolder, "proj", "fuzz_me", "address"), filepath.Dir(first))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))
}

func TestStoreRecordsBug(t *testing.T) {
	c, _ := newTestManager(t)
	var recorded []*database.Bug
	c.addBugs = func(ctx context.Context, bugs []*database.Bug) error {
		recorded = append(recorded, bugs...)
		return nil
	}

	path, err := c.Store(context.Background(), Crash{
		ProjectID: "proj", VerdictID: "v1", Harness: "fuzz_me", Sanitizer: "memory",
		PovFile: writePov(t, "boom"), ExitCode: 1, Labels: []string{"memory"},
	})
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	assert.Equal(t, path, recorded[0].POC)
	assert.Equal(t, "v1", recorded[0].VerdictID)
	assert.Equal(t, "memory", recorded[0].Sanitizer)
	assert.Equal(t, database.Labels{"memory"}, recorded[0].Labels)
}

func TestStoreReportsBugFailure(t *testing.T) {
	c, _ := newTestManager(t)
	c.addBugs = func(context.Context, []*database.Bug) error { return errors.New("db down") }

	path, err := c.Store(context.Background(), Crash{ProjectID: "p", Harness: "h", Sanitizer: "address", PovFile: writePov(t, "x")})
	require.Error(t, err)
	assert.FileExists(t, path)
}

func TestStoreMissingPov(t *testing.T) {
	c, _ := newTestManager(t)
	_, err := c.Store(context.Background(), Crash{PovFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestStoreSanitizesPathSegments(t *testing.T) {
	c, _ := newTestManager(t)

	path, err := c.Store(context.Background(), Crash{ProjectID: "../../etc", Harness: "a/b", Sanitizer: "", PovFile: writePov(t, "x")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.crashFolder, "etc", "b", "unknown"), filepath.Dir(path))
}

func TestEnqueueDrainsOnStop(t *testing.T) {
	c, lc := newTestManager(t)
	lc.RequireStart()

	pov := writePov(t, "queued")
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Enqueue(context.Background(), Crash{ProjectID: "p", Harness: "h", Sanitizer: "address", PovFile: pov}))
	}
	// the worker must not depend on the original file
	require.NoError(t, os.Remove(pov))
	lc.RequireStop()

	entries, err := os.ReadDir(filepath.Join(c.crashFolder, "p", "h", "address"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.ErrorIs(t, c.Enqueue(context.Background(), Crash{Data: []byte("late")}), ErrStopped)
}
