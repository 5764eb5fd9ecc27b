package target

import "strings"

// PlaceholderValues are substituted into the run command template.
type PlaceholderValues struct {
	Input     string // {input}, {input_path}
	Harness   string // {harness}, {harness_name}
	Sanitizer string // {sanitizer}
	SourceDir string // {source_dir}
}

// FormatCommand substitutes the recognized placeholders literally. Values are
// not quoted and unknown placeholders are left untouched.
func FormatCommand(template string, v PlaceholderValues) string {
	return strings.NewReplacer(
		"{input}", v.Input,
		"{input_path}", v.Input,
		"{harness}", v.Harness,
		"{harness_name}", v.Harness,
		"{sanitizer}", v.Sanitizer,
		"{source_dir}", v.SourceDir,
	).Replace(template)
}
