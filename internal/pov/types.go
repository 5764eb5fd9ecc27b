package pov

import (
	"context"
	"time"
)

// Request asks for one PoV to be run against the target. Exactly one of
// PovPath and Data names the input.
type Request struct {
	ID             string `json:"id,omitempty"`
	Harness        string `json:"harness,omitempty"`   // defaults to the configured harness
	Sanitizer      string `json:"sanitizer,omitempty"` // defaults to the configured sanitizer
	PovPath        string `json:"pov_path,omitempty"`
	Data           []byte `json:"data,omitempty"` // base64 in JSON
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Verdict is the recorded outcome of a Request.
type Verdict struct {
	ID                  string    `json:"id"`
	RequestID           string    `json:"request_id,omitempty"`
	ProjectID           string    `json:"project_id"`
	Harness             string    `json:"harness"`
	Sanitizer           string    `json:"sanitizer"`
	PovPath             string    `json:"pov_path,omitempty"`
	Command             string    `json:"command"`
	ExitCode            int       `json:"exit_code"`
	TriggeredSanitizers []string  `json:"triggered_sanitizers"`
	Crashed             bool      `json:"crashed"`
	TimedOut            bool      `json:"timed_out"`
	DurationMs          int64     `json:"duration_ms"`
	Stdout              string    `json:"stdout,omitempty"`
	Stderr              string    `json:"stderr,omitempty"`
	CreatedAt           time.Time `json:"created_at"`

	// path of the input that produced the verdict, valid until Submit returns
	inputFile string
}

// InputFile is the file the target was run against. Inline payloads are
// removed once Submit returns.
func (v *Verdict) InputFile() string { return v.inputFile }

// Sink receives every verdict produced by the service.
type Sink interface {
	Name() string
	Record(ctx context.Context, v *Verdict) error
}
