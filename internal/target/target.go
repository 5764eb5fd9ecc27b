package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const DefaultHarnessFunctionName = "LLVMFuzzerTestOneInput"

// Target is the set of operations the discovery pipeline needs from a
// locally built program.
type Target interface {
	Build(ctx context.Context) error
	RunPov(ctx context.Context, harness, dataFile, sanitizer string, timeout time.Duration) (*RunResult, error)
	ResolveHarnessSource(harness string, index FunctionIndex) (string, error)
	RunInWorkspace(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error)
	Workspace() *Workspace
	Cleanup()
}

type Options struct {
	SourceDir           string
	BuildCommand        string // empty means the target is pre-built
	RunCommand          string
	HarnessFunctionName string
	HarnessSourcePath   string
	CrashKeywords       []string
	WorkspaceRoot       string
}

// Project is a local target rooted at a source directory. It owns a workspace
// that lives until Cleanup.
type Project struct {
	sourceDir           string
	buildCommand        string
	runCommand          string
	harnessFunctionName string
	harnessSourcePath   string

	classifier *Classifier
	workspace  *Workspace
	logger     *zap.Logger

	buildOnce sync.Once
	buildErr  error
	built     atomic.Bool
}

var _ Target = (*Project)(nil)

// New resolves the source directory and creates the workspace eagerly. The
// build is deferred until Build is called.
func New(opts Options, logger *zap.Logger) (*Project, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source dir: %w", err)
	}
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("source dir %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source dir %s is not a directory", sourceDir)
	}

	harnessFunction := strings.TrimSpace(opts.HarnessFunctionName)
	if harnessFunction == "" {
		harnessFunction = DefaultHarnessFunctionName
	}

	workspaceRoot := opts.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = filepath.Join(os.TempDir(), "b3pov")
	}
	workspace, err := NewWorkspace(workspaceRoot)
	if err != nil {
		return nil, err
	}

	p := &Project{
		sourceDir:           sourceDir,
		buildCommand:        strings.TrimSpace(opts.BuildCommand),
		runCommand:          strings.TrimSpace(opts.RunCommand),
		harnessFunctionName: harnessFunction,
		harnessSourcePath:   strings.TrimSpace(opts.HarnessSourcePath),
		classifier:          NewClassifier(opts.CrashKeywords),
		workspace:           workspace,
		logger:              logger.Named("target"),
	}

	p.logger.Debug("target initialized",
		zap.String("source_dir", p.sourceDir),
		zap.String("workspace", workspace.Dir()),
		zap.String("harness_function", p.harnessFunctionName))
	return p, nil
}

func (p *Project) SourceDir() string           { return p.sourceDir }
func (p *Project) HarnessFunctionName() string { return p.harnessFunctionName }
func (p *Project) Classifier() *Classifier     { return p.classifier }
func (p *Project) Workspace() *Workspace       { return p.workspace }

// Cleanup removes the workspace. Callers must run it on every exit path.
func (p *Project) Cleanup() {
	p.logger.Debug("removing workspace", zap.String("workspace", p.workspace.Dir()))
	p.workspace.Cleanup()
}
