package operator

import (
	"iter"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

var numericKinds = []timeline.Kind{timeline.KindInt, timeline.KindFloat}

// Interpolate spreads the change between a start and an end reading across
// the bins an interval touches.
type Interpolate struct {
	base
}

func (o *Interpolate) Kind() Kind {
	return KindInterpolate
}

func (o *Interpolate) OutputSchema(input *arrow.Schema) (*arrow.Schema, error) {
	fields, err := o.schemaPrefix(input)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{o.cfg.StartValueColumn, o.cfg.EndValueColumn} {
		f, err := o.inputField(input, name)
		if err != nil {
			return nil, err
		}
		if err := checkKind(string(KindInterpolate), name, f.Type, numericKinds...); err != nil {
			return nil, err
		}
	}

	fields = append(fields,
		o.binField(),
		arrow.Field{Name: o.out.SplitDelta, Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: o.out.AfterValue, Type: arrow.PrimitiveTypes.Float64},
	)
	return arrow.NewSchema(fields, nil), nil
}

func (o *Interpolate) Apply(row table.Row) (iter.Seq[table.Output], error) {
	iv, err := o.interval(row)
	if err != nil {
		return nil, err
	}
	startValue, err := o.numeric(row, o.cfg.StartValueColumn)
	if err != nil {
		return nil, err
	}
	endValue, err := o.numeric(row, o.cfg.EndValueColumn)
	if err != nil {
		return nil, err
	}

	seq, err := timeline.Interpolate(iv, startValue, endValue, o.grid)
	if err != nil {
		return nil, err
	}

	return func(yield func(table.Output) bool) {
		for rec := range seq {
			if !yield(interpolatedOutput{op: o, row: row, rec: rec}) {
				return
			}
		}
	}, nil
}

func (o *Interpolate) numeric(row table.Row, column string) (float64, error) {
	if _, err := valueType(string(KindInterpolate), row, column, numericKinds...); err != nil {
		return 0, err
	}
	v, err := row.Value(column)
	if err != nil {
		return 0, err
	}
	f, _ := v.Numeric()
	return f, nil
}

type interpolatedOutput struct {
	op  *Interpolate
	row table.Row
	rec timeline.InterpolatedRecord
}

func (i interpolatedOutput) WriteTo(w table.RowWriter) error {
	if err := i.op.writePassthrough(w, i.row); err != nil {
		return err
	}
	if err := w.SetTimestamp(i.op.out.Bin, i.rec.Bin); err != nil {
		return err
	}
	if err := w.SetFloat(i.op.out.SplitDelta, i.rec.SplitDelta); err != nil {
		return err
	}
	return w.SetFloat(i.op.out.AfterValue, i.rec.AfterValue)
}

