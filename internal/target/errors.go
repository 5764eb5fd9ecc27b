package target

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfiguration marks a target that cannot run at all, such as an
	// empty run command.
	ErrConfiguration = errors.New("invalid target configuration")

	// ErrRunTimeout is matched by every *TimeoutError.
	ErrRunTimeout = errors.New("pov run timed out")
)

// BuildError is returned when the build command exits non-zero. Both output
// streams are kept verbatim.
type BuildError struct {
	Command  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("target build failed (exit code %d).\nSTDOUT:\n%s\nSTDERR:\n%s",
		e.ExitCode, decode(e.Stdout), decode(e.Stderr))
}

// TimeoutError reports a process killed after exceeding its deadline, along
// with whatever it printed before that.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Stdout  []byte
	Stderr  []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q exceeded timeout of %s", e.Command, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrRunTimeout }

// ResolutionError lists every path form tried while looking for a harness
// source file.
type ResolutionError struct {
	Harness   string
	Reason    string
	Attempted []string
}

func (e *ResolutionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "could not resolve harness source for harness '%s'", e.Harness)
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if len(e.Attempted) > 0 {
		sb.WriteString(" (tried: ")
		sb.WriteString(strings.Join(e.Attempted, ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

// decode turns process output into text, replacing invalid UTF-8.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
