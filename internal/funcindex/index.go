package funcindex

import (
	"b3pov/config"
	"b3pov/internal/target"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Index is an in-memory function index loaded from a JSON file that maps
// index keys to function entries.
type Index struct {
	entries map[string]*target.FunctionInfo
	byName  map[string][]string // funcname -> sorted keys
}

var _ target.FunctionIndex = (*Index)(nil)

// Load reads a JSON function index from path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read function index: %w", err)
	}
	return Parse(data)
}

// Parse builds an Index from the JSON encoding of the index.
func Parse(data []byte) (*Index, error) {
	entries := make(map[string]*target.FunctionInfo)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse function index: %w", err)
	}
	return New(entries), nil
}

func New(entries map[string]*target.FunctionInfo) *Index {
	idx := &Index{
		entries: make(map[string]*target.FunctionInfo, len(entries)),
		byName:  make(map[string][]string),
	}
	for key, info := range entries {
		if info == nil {
			continue
		}
		idx.entries[key] = info
		idx.byName[info.Funcname] = append(idx.byName[info.Funcname], key)
	}
	for _, keys := range idx.byName {
		sort.Strings(keys)
	}
	return idx
}

// FindByFuncname returns the keys of every entry named name, in sorted order.
func (i *Index) FindByFuncname(name string) []string {
	return append([]string(nil), i.byName[name]...)
}

func (i *Index) Get(key string) (*target.FunctionInfo, error) {
	info, ok := i.entries[key]
	if !ok {
		return nil, fmt.Errorf("function index has no entry %q", key)
	}
	return info, nil
}

func (i *Index) Len() int {
	return len(i.entries)
}

// NewFromConfig loads the index named by FUNCTION_INDEX. A missing setting
// yields a nil index; harness resolution then reports it as unavailable.
func NewFromConfig(appConfig *config.AppConfig, logger *zap.Logger) (*Index, error) {
	if appConfig.FunctionIndexPath == "" {
		logger.Debug("no function index configured")
		return nil, nil
	}
	idx, err := Load(appConfig.FunctionIndexPath)
	if err != nil {
		return nil, err
	}
	logger.Info("function index loaded",
		zap.String("path", appConfig.FunctionIndexPath),
		zap.Int("entries", idx.Len()))
	return idx, nil
}
