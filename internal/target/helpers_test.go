package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProject(t *testing.T, opts Options) *Project {
	t.Helper()
	if opts.SourceDir == "" {
		opts.SourceDir = t.TempDir()
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = t.TempDir()
	}
	p, err := New(opts, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(p.Cleanup)
	return p
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}
