package target

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildEnv(t *testing.T) {
	got := childEnv([]string{
		"PATH=/usr/bin",
		"OTEL_EXPORTER_OTLP_ENDPOINT=collector:4317",
		"OTLP_TOKEN=x",
		"PWD=/somewhere/else",
		"ASAN_OPTIONS=detect_leaks=0",
	})
	assert.Equal(t, []string{"PATH=/usr/bin", "ASAN_OPTIONS=detect_leaks=0"}, got)
}

func TestRunProcessHidesTelemetryEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "b3pov")
	t.Setenv("ASAN_OPTIONS", "abort_on_error=1")

	out, err := runProcess(context.Background(), t.TempDir(), shellPath, "-c", "env")
	require.NoError(t, err)

	env := string(out.stdout)
	assert.NotContains(t, env, "OTEL_SERVICE_NAME")
	assert.Contains(t, env, "ASAN_OPTIONS=abort_on_error=1")
}

func TestRunWithTimeoutDefaultsNonPositive(t *testing.T) {
	out, err := runWithTimeout(context.Background(), 0, t.TempDir(), "echo hi", shellPath, "-c", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", strings.TrimSpace(string(out.stdout)))
	assert.Equal(t, 0, out.exitCode)
}

func TestRunProcessBackgroundChildHoldingPipes(t *testing.T) {
	// the shell exits at once while its child keeps stdout open
	start := time.Now()
	out, err := runProcess(context.Background(), t.TempDir(), shellPath, "-c", "sleep 5 & echo done")
	require.NoError(t, err)
	assert.Equal(t, 0, out.exitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}
