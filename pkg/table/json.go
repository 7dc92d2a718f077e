package table

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// JSONRow is one row as decoded from a JSON object. Numbers should be decoded
// with json.Decoder.UseNumber so integers and floats can be told apart.
type JSONRow map[string]interface{}

// RecordFromJSON converts JSON rows into an Arrow record. Columns listed in
// timestampColumns must hold RFC 3339 strings and become nanosecond
// timestamps; other columns are inferred as bool, int64 (all numbers
// integral), float64 or string. Columns are ordered by name.
func RecordFromJSON(mem memory.Allocator, rows []JSONRow, timestampColumns []string) (arrow.Record, error) {
	seen := make(map[string]bool)
	var names []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		dt, err := inferJSONType(rows, name, slices.Contains(timestampColumns, name))
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for r, row := range rows {
		for i, name := range names {
			if err := appendJSON(b.Field(i), row[name]); err != nil {
				return nil, schemaErrorf(name, "row %d: %v", r, err)
			}
		}
	}
	return b.NewRecord(), nil
}

func inferJSONType(rows []JSONRow, name string, timestamp bool) (arrow.DataType, error) {
	if timestamp {
		return arrow.FixedWidthTypes.Timestamp_ns, nil
	}

	var dt arrow.DataType
	merge := func(next arrow.DataType) error {
		switch {
		case dt == nil:
			dt = next
		case arrow.TypeEqual(dt, next):
		case dt.ID() == arrow.INT64 && next.ID() == arrow.FLOAT64:
			dt = next
		case dt.ID() == arrow.FLOAT64 && next.ID() == arrow.INT64:
		default:
			return schemaErrorf(name, "mixed types %s and %s", dt, next)
		}
		return nil
	}

	for _, row := range rows {
		var next arrow.DataType
		switch v := row[name].(type) {
		case nil:
			continue
		case bool:
			next = arrow.FixedWidthTypes.Boolean
		case json.Number:
			if _, err := v.Int64(); err == nil {
				next = arrow.PrimitiveTypes.Int64
			} else {
				next = arrow.PrimitiveTypes.Float64
			}
		case float64:
			next = arrow.PrimitiveTypes.Float64
		case string:
			next = arrow.BinaryTypes.String
		default:
			return nil, schemaErrorf(name, "unsupported JSON value %T", v)
		}
		if err := merge(next); err != nil {
			return nil, err
		}
	}

	if dt == nil {
		dt = arrow.BinaryTypes.String
	}
	return dt, nil
}

func appendJSON(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch fb := b.(type) {
	case *array.TimestampBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected RFC 3339 string, got %T", v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		ts, err := arrow.TimestampFromTime(t, arrow.Nanosecond)
		if err != nil {
			return err
		}
		fb.Append(ts)
	case *array.BooleanBuilder:
		fb.Append(v.(bool))
	case *array.Int64Builder:
		n, err := v.(json.Number).Int64()
		if err != nil {
			return err
		}
		fb.Append(n)
	case *array.Float64Builder:
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return err
			}
			fb.Append(f)
		case float64:
			fb.Append(n)
		}
	case *array.StringBuilder:
		fb.Append(v.(string))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

// RecordToJSON converts an Arrow record into JSON rows. Timestamps are
// rendered as RFC 3339 strings in UTC.
func RecordToJSON(rec arrow.Record) ([]JSONRow, error) {
	rows := NewRecordRows(rec)
	fields := rec.Schema().Fields()

	out := make([]JSONRow, rows.Len())
	for i := range out {
		row := rows.At(i)
		obj := make(JSONRow, len(fields))
		for _, f := range fields {
			null, err := row.IsNull(f.Name)
			if err != nil {
				return nil, err
			}
			if null {
				obj[f.Name] = nil
				continue
			}
			if f.Type.ID() == arrow.TIMESTAMP {
				t, err := row.Timestamp(f.Name)
				if err != nil {
					return nil, err
				}
				obj[f.Name] = t.UTC().Format(time.RFC3339Nano)
				continue
			}
			v, err := row.Value(f.Name)
			if err != nil {
				return nil, err
			}
			obj[f.Name] = v.Interface()
		}
		out[i] = obj
	}
	return out, nil
}
