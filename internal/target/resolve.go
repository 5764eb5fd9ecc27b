package target

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FunctionInfo is the part of a function-index entry needed to locate source.
type FunctionInfo struct {
	Funcname            string `json:"funcname"`
	TargetContainerPath string `json:"target_container_path"`
	Filename            string `json:"filename,omitempty"`
	StartLine           int    `json:"start_line,omitempty"`
	EndLine             int    `json:"end_line,omitempty"`
}

// FunctionIndex maps function names to source locations. It is provided by
// the caller and only read here.
type FunctionIndex interface {
	FindByFuncname(name string) []string
	Get(key string) (*FunctionInfo, error)
}

// ResolveHarnessSource returns the absolute path of the file defining the
// harness entry point.
//
// An explicit harness source path wins when it exists. Otherwise the index is
// asked for the harness function name, then the harness name, and the first
// key returned is used. Its container path is tried under the source dir as
// given, without a leading "src" segment, as a bare file name, and finally by
// searching the tree for that file name. The tree search returns the first
// hit in lexical walk order; which duplicate wins is not part of the contract.
func (p *Project) ResolveHarnessSource(harness string, index FunctionIndex) (string, error) {
	var attempted []string

	if p.harnessSourcePath != "" {
		attempted = append(attempted, p.harnessSourcePath)
		if isFile(p.harnessSourcePath) {
			return filepath.Abs(p.harnessSourcePath)
		}
		p.logger.Warn("explicit harness source does not exist, falling back to function index",
			zap.String("path", p.harnessSourcePath))
	}

	if index == nil {
		return "", &ResolutionError{Harness: harness, Reason: "no function index available", Attempted: attempted}
	}

	key, err := p.harnessFunctionKey(harness, index, attempted)
	if err != nil {
		return "", err
	}

	info, err := index.Get(key)
	if err != nil || info == nil || info.TargetContainerPath == "" {
		reason := "function index entry " + key + " has no container path"
		if err != nil {
			reason = "function index lookup for " + key + " failed: " + err.Error()
		}
		return "", &ResolutionError{Harness: harness, Reason: reason, Attempted: attempted}
	}

	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(filepath.ToSlash(info.TargetContainerPath), "/")))
	if rel == "." {
		return "", &ResolutionError{Harness: harness, Reason: "function index entry " + key + " has no container path", Attempted: attempted}
	}

	candidates := []string{filepath.Join(p.sourceDir, rel)}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 && parts[0] == "src" {
		candidates = append(candidates, filepath.Join(append([]string{p.sourceDir}, parts[1:]...)...))
	}
	base := filepath.Base(rel)
	candidates = append(candidates, filepath.Join(p.sourceDir, base))

	for _, candidate := range candidates {
		attempted = append(attempted, candidate)
		if isFile(candidate) {
			p.logger.Debug("harness source resolved", zap.String("harness", harness), zap.String("path", candidate))
			return candidate, nil
		}
	}

	attempted = append(attempted, filepath.Join(p.sourceDir, "**", base))
	if found := findByName(p.sourceDir, base); found != "" {
		p.logger.Debug("harness source found by name search", zap.String("harness", harness), zap.String("path", found))
		return found, nil
	}

	return "", &ResolutionError{Harness: harness, Reason: "no candidate path exists", Attempted: attempted}
}

// harnessFunctionKey asks the index for the harness function, then the
// harness name. A miss reports them after the paths already attempted.
func (p *Project) harnessFunctionKey(harness string, index FunctionIndex, attempted []string) (string, error) {
	tried := append([]string(nil), attempted...)
	for _, name := range []string{p.harnessFunctionName, harness} {
		if name == "" {
			continue
		}
		tried = append(tried, "function:"+name)
		if candidates := index.FindByFuncname(name); len(candidates) > 0 {
			return candidates[0], nil
		}
	}
	return "", &ResolutionError{
		Harness:   harness,
		Reason:    "could not resolve harness function key",
		Attempted: tried,
	}
}

// findByName walks root and returns the first regular file called name.
// Unreadable directories are skipped.
func findByName(root, name string) string {
	var found string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
