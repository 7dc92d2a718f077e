package operator

import (
	"fmt"

	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// Kind selects the bucketization an operator performs.
type Kind string

const (
	KindLocf        Kind = "locf"
	KindInterpolate Kind = "interpolate"
)

// Config describes one operator instance. It is fixed at construction time.
type Config struct {
	Name             string        `json:"name"`
	Kind             Kind          `json:"kind"`
	StartColumn      string        `json:"start_column"`
	EndColumn        string        `json:"end_column"`
	ValueColumn      string        `json:"value_column,omitempty"`       // locf
	StartValueColumn string        `json:"start_value_column,omitempty"` // interpolate
	EndValueColumn   string        `json:"end_value_column,omitempty"`   // interpolate
	BinSize          string        `json:"bin_size"`                     // Duration string like "15m", "1h"
	Location         string        `json:"location,omitempty"`           // IANA zone for local midnight, default UTC
	Passthrough      []string      `json:"passthrough,omitempty"`
	Output           OutputColumns `json:"output,omitempty"`
}

// OutputColumns names the generated output columns. Empty names take the
// defaults bin, value, split_delta and after_value.
type OutputColumns struct {
	Bin        string `json:"bin,omitempty"`
	Value      string `json:"value,omitempty"`
	SplitDelta string `json:"split_delta,omitempty"`
	AfterValue string `json:"after_value,omitempty"`
}

func (o OutputColumns) withDefaults() OutputColumns {
	if o.Bin == "" {
		o.Bin = "bin"
	}
	if o.Value == "" {
		o.Value = "value"
	}
	if o.SplitDelta == "" {
		o.SplitDelta = "split_delta"
	}
	if o.AfterValue == "" {
		o.AfterValue = "after_value"
	}
	return o
}

// ConfigError reports an invalid operator configuration.
type ConfigError struct {
	Operator string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("operator %q: %s: %s", e.Operator, e.Field, e.Reason)
}

func (c Config) errorf(field, format string, args ...interface{}) error {
	return &ConfigError{Operator: c.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// generated returns the names of the columns the operator generates.
func (c Config) generated() []string {
	out := c.Output.withDefaults()
	if c.Kind == KindInterpolate {
		return []string{out.Bin, out.SplitDelta, out.AfterValue}
	}
	return []string{out.Bin, out.Value}
}

// Validate checks the configuration and returns the bin grid it describes.
func (c Config) Validate() (timeline.Grid, error) {
	if c.Name == "" {
		return timeline.Grid{}, c.errorf("name", "must not be empty")
	}

	required := map[string]string{
		"start_column": c.StartColumn,
		"end_column":   c.EndColumn,
	}
	switch c.Kind {
	case KindLocf:
		required["value_column"] = c.ValueColumn
	case KindInterpolate:
		required["start_value_column"] = c.StartValueColumn
		required["end_value_column"] = c.EndValueColumn
	default:
		return timeline.Grid{}, c.errorf("kind", "must be %q or %q, got %q", KindLocf, KindInterpolate, c.Kind)
	}
	for _, field := range []string{"start_column", "end_column", "value_column", "start_value_column", "end_value_column"} {
		if v, ok := required[field]; ok && v == "" {
			return timeline.Grid{}, c.errorf(field, "must not be empty")
		}
	}

	grid, err := timeline.ParseGridSpec(timeline.GridSpec{Size: c.BinSize, Location: c.Location})
	if err != nil {
		return timeline.Grid{}, c.errorf("bin_size", "%v", err)
	}

	names := make(map[string]bool)
	for _, name := range append(append([]string{}, c.Passthrough...), c.generated()...) {
		if names[name] {
			return timeline.Grid{}, c.errorf("output", "column %q produced twice", name)
		}
		names[name] = true
	}

	return grid, nil
}
