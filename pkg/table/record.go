package table

import (
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// RecordRows exposes the rows of an Arrow record. The record must stay alive
// while rows obtained from it are used.
type RecordRows struct {
	rec   arrow.Record
	index map[string]int
	dup   map[string]bool
}

// NewRecordRows indexes the columns of rec by name.
func NewRecordRows(rec arrow.Record) *RecordRows {
	rs := &RecordRows{
		rec:   rec,
		index: make(map[string]int, rec.NumCols()),
		dup:   make(map[string]bool),
	}
	for i, f := range rec.Schema().Fields() {
		if _, ok := rs.index[f.Name]; ok {
			rs.dup[f.Name] = true
			continue
		}
		rs.index[f.Name] = i
	}
	return rs
}

// Len returns the number of rows.
func (rs *RecordRows) Len() int {
	return int(rs.rec.NumRows())
}

// At returns row i.
func (rs *RecordRows) At(i int) Row {
	return recordRow{rows: rs, i: i}
}

func (rs *RecordRows) column(name string) (arrow.Array, error) {
	if rs.dup[name] {
		return nil, schemaErrorf(name, "ambiguous, appears more than once")
	}
	j, ok := rs.index[name]
	if !ok {
		return nil, schemaErrorf(name, "not found")
	}
	return rs.rec.Column(j), nil
}

type recordRow struct {
	rows *RecordRows
	i    int
}

func (r recordRow) Type(name string) (arrow.DataType, error) {
	col, err := r.rows.column(name)
	if err != nil {
		return nil, err
	}
	return col.DataType(), nil
}

func (r recordRow) IsNull(name string) (bool, error) {
	col, err := r.rows.column(name)
	if err != nil {
		return false, err
	}
	return col.IsNull(r.i), nil
}

func (r recordRow) Timestamp(name string) (time.Time, error) {
	col, err := r.rows.column(name)
	if err != nil {
		return time.Time{}, err
	}
	ts, ok := col.(*array.Timestamp)
	if !ok {
		return time.Time{}, schemaErrorf(name, "expected timestamp, got %s", col.DataType())
	}
	if ts.IsNull(r.i) {
		return time.Time{}, schemaErrorf(name, "null at row %d", r.i)
	}
	unit := ts.DataType().(*arrow.TimestampType).Unit
	return ts.Value(r.i).ToTime(unit), nil
}

func (r recordRow) Value(name string) (timeline.Value, error) {
	col, err := r.rows.column(name)
	if err != nil {
		return timeline.Value{}, err
	}
	if col.IsNull(r.i) {
		return timeline.Value{}, schemaErrorf(name, "null at row %d", r.i)
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return timeline.BoolValue(arr.Value(r.i)), nil
	case *array.Int32:
		return timeline.IntValue(int64(arr.Value(r.i))), nil
	case *array.Int64:
		return timeline.IntValue(arr.Value(r.i)), nil
	case *array.Float64:
		return timeline.FloatValue(arr.Value(r.i)), nil
	case *array.String:
		return timeline.TextValue(arr.Value(r.i)), nil
	case *array.LargeString:
		return timeline.TextValue(arr.Value(r.i)), nil
	default:
		return timeline.Value{}, schemaErrorf(name, "expected bool, integer, float64 or string, got %s", col.DataType())
	}
}

// RecordWriter builds an Arrow record one finalized row at a time. Finalized
// rows are held back until Commit so that all output of one input row can be
// dropped with Rollback if a later output of the same row fails.
type RecordWriter struct {
	b       *array.RecordBuilder
	index   map[string]int
	pending []func()
	staged  []func()
	written []bool
	nstaged int
	rows    int
}

// NewRecordWriter returns a writer for schema. Every field must be a
// timestamp, bool, int32, int64, float64 or string column.
func NewRecordWriter(mem memory.Allocator, schema *arrow.Schema) (*RecordWriter, error) {
	index := make(map[string]int, schema.NumFields())
	for i, f := range schema.Fields() {
		if !Passable(f.Type) {
			return nil, schemaErrorf(f.Name, "unsupported output type %s", f.Type)
		}
		if _, ok := index[f.Name]; ok {
			return nil, schemaErrorf(f.Name, "duplicate output column")
		}
		index[f.Name] = i
	}

	return &RecordWriter{
		b:       array.NewRecordBuilder(mem, schema),
		index:   index,
		written: make([]bool, schema.NumFields()),
	}, nil
}

// Schema returns the output schema.
func (w *RecordWriter) Schema() *arrow.Schema {
	return w.b.Schema()
}

// Rows returns the number of committed rows not yet taken by NewRecord.
func (w *RecordWriter) Rows() int {
	return w.rows
}

func (w *RecordWriter) slot(name string) (int, arrow.DataType, error) {
	j, ok := w.index[name]
	if !ok {
		return 0, nil, schemaErrorf(name, "not in output schema")
	}
	if w.written[j] {
		return 0, nil, schemaErrorf(name, "written twice in one row")
	}
	return j, w.b.Schema().Field(j).Type, nil
}

func (w *RecordWriter) stage(j int, fn func()) {
	w.written[j] = true
	w.pending = append(w.pending, fn)
}

func (w *RecordWriter) SetTimestamp(name string, t time.Time) error {
	j, dt, err := w.slot(name)
	if err != nil {
		return err
	}
	tsType, ok := dt.(*arrow.TimestampType)
	if !ok {
		return schemaErrorf(name, "cannot write timestamp into %s", dt)
	}
	v, err := arrow.TimestampFromTime(t, tsType.Unit)
	if err != nil {
		return schemaErrorf(name, "timestamp %s out of range: %v", t, err)
	}

	fb := w.b.Field(j).(*array.TimestampBuilder)
	w.stage(j, func() { fb.Append(v) })
	return nil
}

func (w *RecordWriter) SetFloat(name string, f float64) error {
	return w.SetValue(name, timeline.FloatValue(f))
}

func (w *RecordWriter) SetValue(name string, v timeline.Value) error {
	j, dt, err := w.slot(name)
	if err != nil {
		return err
	}
	if KindOf(dt) != v.Kind() {
		return schemaErrorf(name, "cannot write %s value into %s", v.Kind(), dt)
	}

	switch fb := w.b.Field(j).(type) {
	case *array.BooleanBuilder:
		w.stage(j, func() { fb.Append(v.Bool()) })
	case *array.Int32Builder:
		if v.Int() < math.MinInt32 || v.Int() > math.MaxInt32 {
			return schemaErrorf(name, "value %d overflows int32", v.Int())
		}
		w.stage(j, func() { fb.Append(int32(v.Int())) })
	case *array.Int64Builder:
		w.stage(j, func() { fb.Append(v.Int()) })
	case *array.Float64Builder:
		w.stage(j, func() { fb.Append(v.Float()) })
	case *array.StringBuilder:
		w.stage(j, func() { fb.Append(v.Text()) })
	case *array.LargeStringBuilder:
		w.stage(j, func() { fb.Append(v.Text()) })
	default:
		return schemaErrorf(name, "no builder for %s", dt)
	}
	return nil
}

func (w *RecordWriter) SetNull(name string) error {
	j, _, err := w.slot(name)
	if err != nil {
		return err
	}
	fb := w.b.Field(j)
	w.stage(j, func() { fb.AppendNull() })
	return nil
}

// Finalize seals the row being written. Every column must have been written
// exactly once; otherwise the row is discarded and a SchemaError returned.
func (w *RecordWriter) Finalize() error {
	for j, ok := range w.written {
		if !ok {
			name := w.b.Schema().Field(j).Name
			w.Discard()
			return schemaErrorf(name, "not written before finalize")
		}
	}
	w.staged = append(w.staged, w.pending...)
	w.nstaged++
	w.reset()
	return nil
}

// Discard drops the row being written.
func (w *RecordWriter) Discard() {
	w.reset()
}

func (w *RecordWriter) reset() {
	w.pending = w.pending[:0]
	for j := range w.written {
		w.written[j] = false
	}
}

// Commit appends every finalized row to the record under construction.
func (w *RecordWriter) Commit() {
	for _, fn := range w.staged {
		fn()
	}
	w.rows += w.nstaged
	w.Rollback()
}

// Rollback drops finalized rows that were not committed.
func (w *RecordWriter) Rollback() {
	w.Discard()
	clear(w.staged)
	w.staged = w.staged[:0]
	w.nstaged = 0
}

// NewRecord returns the committed rows and starts a new record. Uncommitted
// rows are dropped.
func (w *RecordWriter) NewRecord() arrow.Record {
	w.Rollback()
	w.rows = 0
	return w.b.NewRecord()
}

// Release releases the underlying builders.
func (w *RecordWriter) Release() {
	w.Rollback()
	w.b.Release()
}
