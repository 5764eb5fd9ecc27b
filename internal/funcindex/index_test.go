package funcindex

import (
	"os"
	"path/filepath"
	"testing"

	"b3pov/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleIndex = `{
  "src/png.c:42:png_read": {"funcname": "png_read", "target_container_path": "/src/libpng/png.c", "start_line": 42, "end_line": 90},
  "fuzz/b.c:1:LLVMFuzzerTestOneInput": {"funcname": "LLVMFuzzerTestOneInput", "target_container_path": "/src/fuzz/b.c"},
  "fuzz/a.c:1:LLVMFuzzerTestOneInput": {"funcname": "LLVMFuzzerTestOneInput", "target_container_path": "/src/fuzz/a.c", "filename": "a.c"}
}`

func TestParse(t *testing.T) {
	idx, err := Parse([]byte(sampleIndex))
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{
		"fuzz/a.c:1:LLVMFuzzerTestOneInput",
		"fuzz/b.c:1:LLVMFuzzerTestOneInput",
	}, idx.FindByFuncname("LLVMFuzzerTestOneInput"))
	assert.Empty(t, idx.FindByFuncname("missing"))

	info, err := idx.Get("src/png.c:42:png_read")
	require.NoError(t, err)
	assert.Equal(t, "/src/libpng/png.c", info.TargetContainerPath)
	assert.Equal(t, 42, info.StartLine)
	assert.Equal(t, 90, info.EndLine)

	_, err = idx.Get("nope")
	assert.Error(t, err)
}

func TestFindByFuncnameReturnsCopy(t *testing.T) {
	idx, err := Parse([]byte(sampleIndex))
	require.NoError(t, err)

	keys := idx.FindByFuncname("png_read")
	keys[0] = "mutated"
	assert.Equal(t, []string{"src/png.c:42:png_read"}, idx.FindByFuncname("png_read"))
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	idx, err := NewFromConfig(&config.AppConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, idx)

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleIndex), 0o644))

	idx, err = NewFromConfig(&config.AppConfig{FunctionIndexPath: path}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	_, err = NewFromConfig(&config.AppConfig{FunctionIndexPath: filepath.Join(t.TempDir(), "missing.json")}, zap.NewNop())
	assert.Error(t, err)
}
