package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name      string
		exitCode  int
		stdout    string
		stderr    string
		sanitizer string
		want      []string
	}{
		{"non-zero exit with sanitizer", 1, "", "", "address", []string{"address"}},
		{"non-zero exit without sanitizer", 139, "", "", "", []string{LabelProcessExit}},
		{"signal exit", -11, "", "", "", []string{LabelProcessExit}},
		{"exit code wins over keywords", 2, "", "AddressSanitizer: heap-buffer-overflow", "", []string{LabelProcessExit}},
		{"keyword on stderr", 0, "", "==1==ERROR: AddressSanitizer: heap-buffer-overflow", "address", []string{"address"}},
		{"keyword on stdout", 0, "Segmentation fault (core dumped)", "", "", []string{LabelCrashMarker}},
		{"keyword case-insensitive", 0, "", "RUNTIME ERROR: signed integer overflow", "undefined", []string{"undefined"}},
		{"clean run", 0, "all good", "", "address", []string{}},
		{"empty output", 0, "", "", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.exitCode, []byte(tt.stdout), []byte(tt.stderr), tt.sanitizer)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyInvalidUTF8(t *testing.T) {
	c := NewClassifier([]string{"use-after-free"})
	stderr := append([]byte{0xff, 0xfe, 0x00}, []byte("heap-USE-AFTER-FREE on address")...)

	assert.Equal(t, []string{LabelCrashMarker}, c.Classify(0, nil, stderr, ""))
	assert.Equal(t, []string{}, c.Classify(0, []byte{0xc3, 0x28}, []byte{0xa0, 0xa1}, ""))
}

func TestClassifyKeywordSpanningStreamsBoundary(t *testing.T) {
	// stdout and stderr are scanned as one concatenated blob
	c := NewClassifier([]string{"stack-overflow"})
	assert.Equal(t, []string{"address"}, c.Classify(0, []byte("stack-"), []byte("overflow"), "address"))
}

func TestNewClassifierKeywords(t *testing.T) {
	t.Run("defaults when empty", func(t *testing.T) {
		c := NewClassifier([]string{})
		assert.Len(t, c.Keywords(), len(DefaultCrashKeywords))
		assert.Contains(t, c.Keywords(), "addresssanitizer")
	})

	t.Run("blank keywords never match everything", func(t *testing.T) {
		c := NewClassifier([]string{"", "   ", "BOOM"})
		assert.Equal(t, []string{"boom"}, c.Keywords())
		assert.Equal(t, []string{}, c.Classify(0, []byte("nothing here"), nil, ""))
		assert.Equal(t, []string{LabelCrashMarker}, c.Classify(0, []byte("boom!"), nil, ""))
	})

	t.Run("custom list replaces defaults", func(t *testing.T) {
		c := NewClassifier([]string{"panic:"})
		assert.Equal(t, []string{}, c.Classify(0, nil, []byte("AddressSanitizer"), ""))
	})
}
