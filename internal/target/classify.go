package target

import (
	"strings"
)

const (
	LabelProcessExit = "process-exit"
	LabelCrashMarker = "crash-marker"
)

// DefaultCrashKeywords are matched case-insensitively against run output.
var DefaultCrashKeywords = []string{
	"AddressSanitizer",
	"MemorySanitizer",
	"UndefinedBehaviorSanitizer",
	"ThreadSanitizer",
	"LeakSanitizer",
	"runtime error:",
	"Segmentation fault",
	"stack-overflow",
	"heap-buffer-overflow",
	"use-after-free",
}

// Classifier turns a finished run into a verdict. A non-zero exit always wins
// over keyword scanning; keywords catch sanitizers that report and exit 0.
type Classifier struct {
	keywords []string // lower-cased
}

// NewClassifier drops blank keywords. An empty list selects
// DefaultCrashKeywords.
func NewClassifier(keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultCrashKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		normalized = append(normalized, strings.ToLower(kw))
	}
	return &Classifier{keywords: normalized}
}

func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// Classify returns the triggered sanitizer labels, at most one. An empty,
// non-nil slice means the run was clean.
func (c *Classifier) Classify(exitCode int, stdout, stderr []byte, sanitizer string) []string {
	if exitCode != 0 {
		return []string{labelOr(sanitizer, LabelProcessExit)}
	}

	if c.matchesKeyword(stdout, stderr) {
		return []string{labelOr(sanitizer, LabelCrashMarker)}
	}

	return []string{}
}

func (c *Classifier) matchesKeyword(stdout, stderr []byte) bool {
	if len(c.keywords) == 0 {
		return false
	}
	blob := make([]byte, 0, len(stdout)+len(stderr))
	blob = append(blob, stdout...)
	blob = append(blob, stderr...)
	text := strings.ToLower(decode(blob))

	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func labelOr(sanitizer, fallback string) string {
	if sanitizer != "" {
		return sanitizer
	}
	return fallback
}
