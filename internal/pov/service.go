package pov

import (
	"b3pov/config"
	"b3pov/internal/funcindex"
	"b3pov/internal/target"
	"b3pov/pkg/telemetry"
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid pov request")

// TraceSource returns a trace exported by another component for a project,
// or "" when there is none.
type TraceSource interface {
	TraceContext(ctx context.Context, projectID string) string
}

// Service builds the target on first use, runs PoVs against it and fans the
// verdicts out to the registered sinks.
type Service struct {
	logger        *zap.Logger
	target        target.Target
	index         target.FunctionIndex
	tracerFactory *telemetry.TracerFactory
	traceSource   TraceSource
	sinks         []Sink

	projectID string
	harness   string
	sanitizer string
	timeout   time.Duration
}

type ServiceParams struct {
	fx.In

	Config        *config.AppConfig
	Logger        *zap.Logger
	Target        target.Target
	Index         *funcindex.Index         `optional:"true"`
	TracerFactory *telemetry.TracerFactory `optional:"true"`
	Recorder      *RedisRecorder           `optional:"true"`
	Sinks         []Sink                   `group:"verdict_sinks"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		logger:        p.Logger.Named("pov"),
		target:        p.Target,
		tracerFactory: p.TracerFactory,
		projectID:     p.Config.Target.ProjectID,
		harness:       p.Config.Target.HarnessName,
		sanitizer:     p.Config.Target.Sanitizer,
		timeout:       p.Config.PovTimeout,
	}
	if p.Index != nil {
		s.index = p.Index
	}
	if p.Recorder != nil {
		s.traceSource = p.Recorder
	}
	for _, sink := range p.Sinks {
		if isNil(sink) {
			continue // skip disabled backends
		}
		s.sinks = append(s.sinks, sink)
		s.logger.Debug("verdict sink registered", zap.String("sink", sink.Name()))
	}
	return s
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

// Submit runs one PoV. Crashes and timeouts are reported in the verdict; an
// error means no verdict could be produced, for example because the target
// failed to build.
func (s *Service) Submit(ctx context.Context, req Request) (*Verdict, error) {
	harness := firstNonEmpty(req.Harness, s.harness)
	if harness == "" {
		return nil, fmt.Errorf("%w: no harness given and HARNESS_NAME is not set", ErrInvalidRequest)
	}
	sanitizer := firstNonEmpty(req.Sanitizer, s.sanitizer)
	if req.PovPath == "" && len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: request carries neither pov_path nor data", ErrInvalidRequest)
	}
	timeout := s.timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	tracer := s.newTracer(ctx, "pov submission", telemetry.NewSpanAttributes(telemetry.Testing).
		WithTargetHarness(harness).
		WithSanitizer(sanitizer))
	tracer.Start()
	defer tracer.End()
	ctx = telemetry.WithTracer(ctx, tracer)

	if err := s.target.Build(ctx); err != nil {
		tracer.SetStatus(codes.Error, "build failed")
		return nil, fmt.Errorf("failed to build target: %w", err)
	}

	input := req.PovPath
	if len(req.Data) > 0 {
		staged, err := s.target.Workspace().Stage(req.Data, ".bin")
		if err != nil {
			tracer.SetStatus(codes.Error, "staging failed")
			return nil, err
		}
		defer os.Remove(staged)
		input = staged
	}

	verdict := &Verdict{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		ProjectID: s.projectID,
		Harness:   harness,
		Sanitizer: sanitizer,
		PovPath:   req.PovPath,
		CreatedAt: time.Now().UTC(),
		inputFile: input,
	}

	start := time.Now()
	result, err := s.target.RunPov(ctx, harness, input, sanitizer, timeout)
	verdict.DurationMs = time.Since(start).Milliseconds()

	var timeoutErr *target.TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		verdict.Command = timeoutErr.Command
		verdict.ExitCode = -1
		verdict.TriggeredSanitizers = []string{}
		verdict.TimedOut = true
		verdict.Stdout = clip(timeoutErr.Stdout)
		verdict.Stderr = clip(timeoutErr.Stderr)
	case err != nil:
		tracer.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to run pov: %w", err)
	default:
		verdict.Command = result.Command
		verdict.ExitCode = result.ExitCode
		verdict.TriggeredSanitizers = result.TriggeredSanitizers
		verdict.Crashed = result.Crashed()
		verdict.Stdout = clip(result.Stdout)
		verdict.Stderr = clip(result.Stderr)
	}

	tracer.WithAttributes(telemetry.EmptySpanAttributes().
		WithPovOutcome(verdict.ExitCode, verdict.Crashed).
		WithExtraAttribute("pov.timed_out", verdict.TimedOut))
	tracer.SetStatus(codes.Ok, "pov verdict produced")

	s.logger.Info("pov verdict",
		zap.String("verdict_id", verdict.ID),
		zap.String("harness", harness),
		zap.String("input", input),
		zap.Int("exit_code", verdict.ExitCode),
		zap.Bool("crashed", verdict.Crashed),
		zap.Bool("timed_out", verdict.TimedOut),
		zap.Strings("triggered_sanitizers", verdict.TriggeredSanitizers))

	s.dispatch(ctx, verdict)
	return verdict, nil
}

// dispatch hands the verdict to every sink. A failing sink does not stop the
// others.
func (s *Service) dispatch(ctx context.Context, v *Verdict) {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, v); err != nil {
			s.logger.Error("failed to record verdict",
				zap.String("sink", sink.Name()),
				zap.String("verdict_id", v.ID),
				zap.Error(err))
		}
	}
}

// ResolveHarness locates the source file of harness, or of the configured
// harness when harness is empty.
func (s *Service) ResolveHarness(ctx context.Context, harness string) (string, error) {
	harness = firstNonEmpty(harness, s.harness)

	tracer := s.newTracer(ctx, "resolve harness source",
		telemetry.NewSpanAttributes(telemetry.Resolving).WithTargetHarness(harness))
	tracer.Start()
	defer tracer.End()

	path, err := s.target.ResolveHarnessSource(harness, s.index)
	if err != nil {
		tracer.SetStatus(codes.Error, err.Error())
		return "", err
	}

	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithCodeFile(path))
	tracer.SetStatus(codes.Ok, "harness source resolved")
	s.logger.Info("harness source resolved", zap.String("harness", harness), zap.String("code_file", path))
	return path, nil
}

// Build builds the target ahead of the first submission.
func (s *Service) Build(ctx context.Context) error {
	return s.target.Build(ctx)
}

// newTracer continues the tracer found in ctx, or the trace exported for the
// project by another component.
func (s *Service) newTracer(ctx context.Context, spanName string, attrs *telemetry.SpanAttributes) telemetry.Tracer {
	attrs.WithExtraAttribute("pov.project_id", s.projectID)

	if parent, ok := ctx.Value(telemetry.TracerKey{}).(telemetry.Tracer); ok && parent != nil {
		return parent.Spawn(spanName).WithAttributes(attrs)
	}
	exported := ""
	if s.traceSource != nil {
		exported = s.traceSource.TraceContext(ctx, s.projectID)
	}
	return s.tracerFactory.NewTracerSpawnedFrom(ctx, exported, spanName).WithAttributes(attrs)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
