package pov

import "strings"

const maxOutputBytes = 64 * 1024

// clip keeps the tail of process output, where sanitizer reports end up.
func clip(b []byte) string {
	if len(b) > maxOutputBytes {
		b = b[len(b)-maxOutputBytes:]
		return "...[truncated]\n" + strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
