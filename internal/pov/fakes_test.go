package pov

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"b3pov/config"
	"b3pov/internal/target"
	"b3pov/pkg/telemetry"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type fakeTarget struct {
	workspace *target.Workspace

	buildErr error
	result   *target.RunResult
	runErr   error

	mu           sync.Mutex
	builds       int
	runs         int
	gotHarness   string
	gotSanitizer string
	gotInput     string
	gotTimeout   time.Duration
	inputContent []byte
}

var _ target.Target = (*fakeTarget)(nil)

func newFakeTarget(t *testing.T) *fakeTarget {
	t.Helper()
	ws, err := target.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(ws.Cleanup)
	return &fakeTarget{
		workspace: ws,
		result: &target.RunResult{
			ExitCode:            0,
			Stdout:              []byte("ok"),
			Command:             "./prog in",
			TriggeredSanitizers: []string{},
		},
	}
}

func (f *fakeTarget) Build(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	return f.buildErr
}

func (f *fakeTarget) RunPov(ctx context.Context, harness, dataFile, sanitizer string, timeout time.Duration) (*target.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.gotHarness = harness
	f.gotSanitizer = sanitizer
	f.gotInput = dataFile
	f.gotTimeout = timeout
	f.inputContent, _ = os.ReadFile(dataFile)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.result, nil
}

func (f *fakeTarget) ResolveHarnessSource(harness string, index target.FunctionIndex) (string, error) {
	if index == nil {
		return "", &target.ResolutionError{Harness: harness, Reason: "no function index available"}
	}
	return "/src/" + harness + ".c", nil
}

func (f *fakeTarget) RunInWorkspace(ctx context.Context, command string, timeout time.Duration) (*target.CommandResult, error) {
	return nil, errors.New("not supported")
}

func (f *fakeTarget) Workspace() *target.Workspace { return f.workspace }
func (f *fakeTarget) Cleanup()                     { f.workspace.Cleanup() }

type recordingSink struct {
	name string
	err  error

	mu       sync.Mutex
	verdicts []*Verdict
	inputs   [][]byte
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(ctx context.Context, v *Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, v)
	data, _ := os.ReadFile(v.InputFile())
	s.inputs = append(s.inputs, data)
	return s.err
}

func (s *recordingSink) recorded() []*Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Verdict(nil), s.verdicts...)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		PovTimeout: time.Minute,
		Target: config.TargetConfig{
			ProjectID:   "proj",
			HarnessName: "fuzz_me",
			Sanitizer:   "address",
		},
	}
}

func newTestService(t *testing.T, tgt target.Target, sinks ...Sink) *Service {
	t.Helper()
	return NewService(ServiceParams{
		Config: testConfig(),
		Logger: zap.NewNop(),
		Target: tgt,
		Sinks:  sinks,
	})
}

var targetTimeout = target.TimeoutError{Command: "./prog in", Timeout: time.Second}

var tgtClean = target.RunResult{ExitCode: 0, Command: "./prog in", TriggeredSanitizers: []string{}}

// spanRecorder is a telemetry.Tracer that remembers spawned spans and their
// attributes.
type spanRecorder struct {
	name     string
	attrs    *telemetry.SpanAttributes
	children []*spanRecorder
	ended    bool
}

func (r *spanRecorder) Start() {}
func (r *spanRecorder) WithAttributes(attributes *telemetry.SpanAttributes) telemetry.Tracer {
	if r.attrs == nil {
		r.attrs = telemetry.EmptySpanAttributes()
	}
	r.attrs.Merge(attributes)
	return r
}
func (r *spanRecorder) AddEvent(name string, attributes telemetry.EventAttributes) {}
func (r *spanRecorder) SetStatus(code codes.Code, message string)                  {}
func (r *spanRecorder) End()                                                       { r.ended = true }

func (r *spanRecorder) Spawn(spanName string) telemetry.Tracer {
	child := &spanRecorder{name: spanName}
	r.children = append(r.children, child)
	return child
}

func (r *spanRecorder) attr(key string) string {
	if r.attrs == nil {
		return ""
	}
	for _, kv := range r.attrs.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}
