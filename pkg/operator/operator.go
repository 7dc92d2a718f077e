// Package operator turns input rows into resampled output rows using the
// bucketizers in package timeline.
package operator

import (
	"iter"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// Operator converts one input row into a lazily produced sequence of output
// rows. Implementations hold only read-only configuration and may be used
// concurrently on different rows.
type Operator interface {
	Name() string
	Kind() Kind
	Config() Config
	// Columns returns the generated output column names.
	Columns() OutputColumns
	// OutputSchema validates the input schema and returns the output schema:
	// passthrough columns followed by the generated columns.
	OutputSchema(input *arrow.Schema) (*arrow.Schema, error)
	// Apply reads the row and returns its output sequence. All row-level
	// errors are reported here, before any output is produced.
	Apply(row table.Row) (iter.Seq[table.Output], error)
}

// New builds the operator described by cfg.
func New(cfg Config) (Operator, error) {
	grid, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	b := base{cfg: cfg, grid: grid, out: cfg.Output.withDefaults()}
	switch cfg.Kind {
	case KindInterpolate:
		return &Interpolate{base: b}, nil
	default:
		return &Locf{base: b}, nil
	}
}

type base struct {
	cfg  Config
	grid timeline.Grid
	out  OutputColumns
}

func (b *base) Name() string {
	return b.cfg.Name
}

// Config returns the configuration the operator was built from.
func (b *base) Config() Config {
	return b.cfg
}

func (b *base) Columns() OutputColumns {
	return b.out
}

// Grid returns the bin grid.
func (b *base) Grid() timeline.Grid {
	return b.grid
}

func (b *base) interval(row table.Row) (timeline.Interval, error) {
	start, err := row.Timestamp(b.cfg.StartColumn)
	if err != nil {
		return timeline.Interval{}, err
	}
	end, err := row.Timestamp(b.cfg.EndColumn)
	if err != nil {
		return timeline.Interval{}, err
	}
	return timeline.NewInterval(start, end)
}

func (b *base) inputField(input *arrow.Schema, name string) (arrow.Field, error) {
	idx := input.FieldIndices(name)
	switch len(idx) {
	case 0:
		return arrow.Field{}, &table.SchemaError{Column: name, Reason: "not found"}
	case 1:
		return input.Field(idx[0]), nil
	default:
		return arrow.Field{}, &table.SchemaError{Column: name, Reason: "ambiguous, appears more than once"}
	}
}

// schemaPrefix checks the interval columns and returns the passthrough fields.
func (b *base) schemaPrefix(input *arrow.Schema) ([]arrow.Field, error) {
	for _, name := range []string{b.cfg.StartColumn, b.cfg.EndColumn} {
		f, err := b.inputField(input, name)
		if err != nil {
			return nil, err
		}
		if f.Type.ID() != arrow.TIMESTAMP {
			return nil, &table.SchemaError{Column: name, Reason: "expected timestamp, got " + f.Type.String()}
		}
	}

	fields := make([]arrow.Field, 0, len(b.cfg.Passthrough)+3)
	for _, name := range b.cfg.Passthrough {
		f, err := b.inputField(input, name)
		if err != nil {
			return nil, err
		}
		if !table.Passable(f.Type) {
			return nil, &table.SchemaError{Column: name, Reason: "cannot pass through " + f.Type.String()}
		}
		f.Nullable = true
		fields = append(fields, f)
	}
	return fields, nil
}

func (b *base) binField() arrow.Field {
	return arrow.Field{Name: b.out.Bin, Type: arrow.FixedWidthTypes.Timestamp_ns}
}

func (b *base) writePassthrough(w table.RowWriter, row table.Row) error {
	for _, name := range b.cfg.Passthrough {
		if err := table.Copy(w, row, name); err != nil {
			return err
		}
	}
	return nil
}

// valueType resolves the runtime type of a value column and checks it
// against the kinds an operator supports.
func valueType(op string, row table.Row, column string, supported ...timeline.Kind) (arrow.DataType, error) {
	dt, err := row.Type(column)
	if err != nil {
		return nil, err
	}
	if err := checkKind(op, column, dt, supported...); err != nil {
		return nil, err
	}
	return dt, nil
}

func checkKind(op, column string, dt arrow.DataType, supported ...timeline.Kind) error {
	kind := table.KindOf(dt)
	for _, k := range supported {
		if kind == k && kind != timeline.KindInvalid {
			return nil
		}
	}
	return &timeline.TypeError{Operator: op, Column: column, Type: dt.String()}
}
