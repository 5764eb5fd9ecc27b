package target

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is a scoped scratch directory owned by a single Project.
type Workspace struct {
	dir string
}

// NewWorkspace creates root when missing and a fresh directory below it whose
// name carries the pid, so concurrent processes never share one.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}

	name := fmt.Sprintf("b3pov-work-%d-%s", os.Getpid(), uuid.New().String())
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	return &Workspace{dir: abs}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Stage writes data into the workspace under a uuid-based name and returns
// its path. suffix is appended verbatim.
func (w *Workspace) Stage(data []byte, suffix string) (string, error) {
	path := filepath.Join(w.dir, "pov-"+uuid.New().String()+suffix)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to stage pov: %w", err)
	}
	return path, nil
}

// Cleanup removes the workspace. Errors are ignored and repeated calls are
// no-ops.
func (w *Workspace) Cleanup() {
	if w == nil || w.dir == "" {
		return
	}
	_ = os.RemoveAll(w.dir)
}
