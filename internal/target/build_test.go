package target

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestBuildRunsOnce(t *testing.T) {
	src := t.TempDir()
	p := newTestProject(t, Options{
		SourceDir:    src,
		BuildCommand: "echo built >> build.log",
		RunCommand:   "true",
	})

	require.NoError(t, p.Build(context.Background()))
	require.NoError(t, p.Build(context.Background()))

	assert.True(t, p.Built())
	assert.Equal(t, 1, countLines(t, filepath.Join(src, "build.log")))
}

func TestBuildConcurrentCallersShareOneRun(t *testing.T) {
	src := t.TempDir()
	p := newTestProject(t, Options{
		SourceDir:    src,
		BuildCommand: "sleep 0.2; echo built >> build.log",
		RunCommand:   "true",
	})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Build(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, countLines(t, filepath.Join(src, "build.log")))
}

func TestBuildEmptyCommandIsPrebuilt(t *testing.T) {
	p := newTestProject(t, Options{BuildCommand: "   ", RunCommand: "true"})

	require.NoError(t, p.Build(context.Background()))
	assert.True(t, p.Built())
}

func TestBuildFailureKeepsBothStreams(t *testing.T) {
	src := t.TempDir()
	p := newTestProject(t, Options{
		SourceDir:    src,
		BuildCommand: "echo attempt >> build.log; echo compiling; echo 'fatal: missing header' >&2; exit 3",
		RunCommand:   "true",
	})

	err := p.Build(context.Background())
	require.Error(t, err)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, 3, buildErr.ExitCode)
	assert.Contains(t, string(buildErr.Stdout), "compiling")
	assert.Contains(t, string(buildErr.Stderr), "fatal: missing header")
	assert.Contains(t, err.Error(), "STDOUT:\ncompiling")
	assert.Contains(t, err.Error(), "STDERR:\nfatal: missing header")
	assert.False(t, p.Built())

	// the failure is memoized; the command is not retried
	assert.Same(t, err, p.Build(context.Background()))
	assert.Equal(t, 1, countLines(t, filepath.Join(src, "build.log")))
}

func TestBuildRunsInSourceDir(t *testing.T) {
	src := t.TempDir()
	p := newTestProject(t, Options{SourceDir: src, BuildCommand: "pwd > where", RunCommand: "true"})

	require.NoError(t, p.Build(context.Background()))

	data, err := os.ReadFile(filepath.Join(src, "where"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBuildCancelledContext(t *testing.T) {
	p := newTestProject(t, Options{BuildCommand: "sleep 5", RunCommand: "true"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, p.Built())
}
