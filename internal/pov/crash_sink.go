package pov

import (
	"b3pov/internal/crash"
	"context"
)

// CrashSink forwards crashing verdicts to the crash store.
type CrashSink struct {
	manager *crash.CrashManager
}

func NewCrashSink(manager *crash.CrashManager) *CrashSink {
	if manager == nil {
		return nil
	}
	return &CrashSink{manager: manager}
}

func (s *CrashSink) Name() string { return "crash-store" }

func (s *CrashSink) Record(ctx context.Context, v *Verdict) error {
	if !v.Crashed {
		return nil
	}
	return s.manager.Enqueue(ctx, crash.Crash{
		ProjectID: v.ProjectID,
		VerdictID: v.ID,
		Harness:   v.Harness,
		Sanitizer: firstNonEmpty(v.Sanitizer, firstLabel(v.TriggeredSanitizers)),
		PovFile:   v.InputFile(),
		ExitCode:  v.ExitCode,
		Labels:    v.TriggeredSanitizers,
	})
}

func firstLabel(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
