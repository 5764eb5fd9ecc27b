package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

type ActionCategory int

const (
	Building ActionCategory = iota
	Resolving
	Testing
)

func (a ActionCategory) String() string {
	switch a {
	case Building:
		return "building"
	case Resolving:
		return "resolving"
	case Testing:
		return "testing"
	default:
		return "unknown"
	}
}

type SpanAttributes struct {
	ActionCategory string

	CodeFile      optional[string] // crs.code.file
	TargetHarness optional[string] // crs.target.harness
	Sanitizer     optional[string] // crs.target.sanitizer
	povCrashed    optional[bool]   // pov.crashed
	povExitCode   optional[int]    // pov.exit_code

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// EmptySpanAttributes carries no action category; Merge fills it later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge copies values that are set in other and unset in o.
// ActionCategory is always taken from other when present.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	mergeOptional(&o.CodeFile, &other.CodeFile)
	mergeOptional(&o.TargetHarness, &other.TargetHarness)
	mergeOptional(&o.Sanitizer, &other.Sanitizer)
	mergeOptional(&o.povCrashed, &other.povCrashed)
	mergeOptional(&o.povExitCode, &other.povExitCode)

	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithCodeFile(val string) *SpanAttributes {
	o.CodeFile.Set(val)
	return o
}

func (o *SpanAttributes) WithTargetHarness(val string) *SpanAttributes {
	o.TargetHarness.Set(val)
	return o
}

func (o *SpanAttributes) WithSanitizer(val string) *SpanAttributes {
	o.Sanitizer.Set(val)
	return o
}

func (o *SpanAttributes) WithPovOutcome(exitCode int, crashed bool) *SpanAttributes {
	o.povExitCode.Set(exitCode)
	o.povCrashed.Set(crashed)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("crs.action.category", o.ActionCategory))
	if o.CodeFile.set {
		attrs = append(attrs, attribute.String("crs.code.file", o.CodeFile.val))
	}
	if o.TargetHarness.set {
		attrs = append(attrs, attribute.String("crs.target.harness", o.TargetHarness.val))
	}
	if o.Sanitizer.set {
		attrs = append(attrs, attribute.String("crs.target.sanitizer", o.Sanitizer.val))
	}
	if o.povCrashed.set {
		attrs = append(attrs, attribute.Bool("pov.crashed", o.povCrashed.val))
	}
	if o.povExitCode.set {
		attrs = append(attrs, attribute.Int("pov.exit_code", o.povExitCode.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
