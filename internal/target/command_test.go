package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCommandAllPlaceholders(t *testing.T) {
	template := "{source_dir}/out/{harness} -runs=1 {input} # {input_path} {harness_name} {sanitizer}"
	got := FormatCommand(template, PlaceholderValues{
		Input:     "/tmp/pov.bin",
		Harness:   "fuzz_png",
		Sanitizer: "address",
		SourceDir: "/src/libpng",
	})

	assert.Equal(t, "/src/libpng/out/fuzz_png -runs=1 /tmp/pov.bin # /tmp/pov.bin fuzz_png address", got)
	assert.NotContains(t, got, "{")
	assert.NotContains(t, got, "}")
}

func TestFormatCommandLeavesUnknownPlaceholders(t *testing.T) {
	got := FormatCommand("./run {input} {timeout} {}", PlaceholderValues{Input: "a b"})
	assert.Equal(t, "./run a b {timeout} {}", got)
}

func TestFormatCommandDoesNotRecurse(t *testing.T) {
	// substituted values are never scanned for placeholders again
	got := FormatCommand("./run {input}", PlaceholderValues{Input: "{harness}", Harness: "h"})
	assert.Equal(t, "./run {harness}", got)
}
