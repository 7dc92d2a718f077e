package engine

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// Summarize aggregates a numeric output column per bin across all rows of the
// output batches. Null values are ignored.
func Summarize(recs []arrow.Record, binColumn, valueColumn string, aggType timeline.AggregationType, percentile float64) ([]timeline.BinAggregate, error) {
	var values []timeline.BinValue
	for _, rec := range recs {
		vs, err := BinValues(rec, binColumn, valueColumn)
		if err != nil {
			return nil, err
		}
		values = append(values, vs...)
	}
	return timeline.AggregateBins(values, aggType, percentile), nil
}

// BinValues reads the non-null (bin, value) pairs of a numeric output column.
func BinValues(rec arrow.Record, binColumn, valueColumn string) ([]timeline.BinValue, error) {
	rows := table.NewRecordRows(rec)
	values := make([]timeline.BinValue, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		row := rows.At(i)
		if i == 0 {
			dt, err := row.Type(valueColumn)
			if err != nil {
				return nil, err
			}
			if k := table.KindOf(dt); k != timeline.KindInt && k != timeline.KindFloat {
				return nil, &timeline.TypeError{Operator: "summarize", Column: valueColumn, Type: dt.String()}
			}
		}

		null, err := row.IsNull(valueColumn)
		if err != nil {
			return nil, err
		}
		if null {
			continue
		}
		bin, err := row.Timestamp(binColumn)
		if err != nil {
			return nil, err
		}
		v, err := row.Value(valueColumn)
		if err != nil {
			return nil, err
		}
		f, _ := v.Numeric()
		values = append(values, timeline.BinValue{Bin: bin, Value: f})
	}
	return values, nil
}
