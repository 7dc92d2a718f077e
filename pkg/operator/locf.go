package operator

import (
	"iter"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

var locfKinds = []timeline.Kind{timeline.KindBool, timeline.KindInt, timeline.KindFloat, timeline.KindText}

// Locf carries the value of each input interval forward into the bins it
// covers for more than half their width. The output value column has the same
// Arrow type as the input value column.
type Locf struct {
	base
}

func (o *Locf) Kind() Kind {
	return KindLocf
}

func (o *Locf) OutputSchema(input *arrow.Schema) (*arrow.Schema, error) {
	fields, err := o.schemaPrefix(input)
	if err != nil {
		return nil, err
	}

	vf, err := o.inputField(input, o.cfg.ValueColumn)
	if err != nil {
		return nil, err
	}
	if err := checkKind(string(KindLocf), o.cfg.ValueColumn, vf.Type, locfKinds...); err != nil {
		return nil, err
	}

	fields = append(fields, o.binField(), arrow.Field{Name: o.out.Value, Type: vf.Type})
	return arrow.NewSchema(fields, nil), nil
}

func (o *Locf) Apply(row table.Row) (iter.Seq[table.Output], error) {
	iv, err := o.interval(row)
	if err != nil {
		return nil, err
	}
	if _, err := valueType(string(KindLocf), row, o.cfg.ValueColumn, locfKinds...); err != nil {
		return nil, err
	}
	value, err := row.Value(o.cfg.ValueColumn)
	if err != nil {
		return nil, err
	}

	return func(yield func(table.Output) bool) {
		for rec := range timeline.Locf(iv, value, o.grid) {
			if !yield(locfOutput{op: o, row: row, rec: rec}) {
				return
			}
		}
	}, nil
}

type locfOutput struct {
	op  *Locf
	row table.Row
	rec timeline.LocfRecord[timeline.Value]
}

func (l locfOutput) WriteTo(w table.RowWriter) error {
	if err := l.op.writePassthrough(w, l.row); err != nil {
		return err
	}
	if err := w.SetTimestamp(l.op.out.Bin, l.rec.Bin); err != nil {
		return err
	}
	return w.SetValue(l.op.out.Value, l.rec.Value)
}

