package table

import (
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

func buildInput(t *testing.T, mem memory.Allocator) arrow.Record {
	t.Helper()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "start", Type: arrow.FixedWidthTypes.Timestamp_ms},
		{Name: "flag", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "count", Type: arrow.PrimitiveTypes.Int32},
		{Name: "total", Type: arrow.PrimitiveTypes.Int64},
		{Name: "level", Type: arrow.PrimitiveTypes.Float64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "raw", Type: arrow.BinaryTypes.Binary},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	start := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(start.UnixMilli()))
	b.Field(1).(*array.BooleanBuilder).AppendNull()
	b.Field(2).(*array.Int32Builder).Append(-7)
	b.Field(3).(*array.Int64Builder).Append(1 << 40)
	b.Field(4).(*array.Float64Builder).Append(2.5)
	b.Field(5).(*array.StringBuilder).Append("door")
	b.Field(6).(*array.BinaryBuilder).Append([]byte{1})

	return b.NewRecord()
}

func TestRecordRowReads(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	rec := buildInput(t, mem)
	defer rec.Release()

	row := NewRecordRows(rec).At(0)

	ts, err := row.Timestamp("start")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)))

	v, err := row.Value("count")
	require.NoError(t, err)
	assert.Equal(t, timeline.IntValue(-7), v)

	v, err = row.Value("total")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), v.Int())

	v, err = row.Value("level")
	require.NoError(t, err)
	assert.Equal(t, timeline.FloatValue(2.5), v)

	v, err = row.Value("name")
	require.NoError(t, err)
	assert.Equal(t, "door", v.Text())

	null, err := row.IsNull("flag")
	require.NoError(t, err)
	assert.True(t, null)
}

func TestRecordRowSchemaErrors(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	rec := buildInput(t, mem)
	defer rec.Release()

	row := NewRecordRows(rec).At(0)
	var schemaErr *SchemaError

	_, err := row.Timestamp("missing")
	require.True(t, errors.As(err, &schemaErr), "missing column: %v", err)
	assert.Equal(t, "missing", schemaErr.Column)

	_, err = row.Timestamp("name")
	assert.True(t, errors.As(err, &schemaErr), "mistyped timestamp: %v", err)

	_, err = row.Value("raw")
	assert.True(t, errors.As(err, &schemaErr), "unsupported value: %v", err)

	_, err = row.Value("flag")
	assert.True(t, errors.As(err, &schemaErr), "null value: %v", err)
}

func TestRecordRowsDuplicateColumn(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(1)
	b.Field(1).(*array.Int64Builder).Append(2)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := NewRecordRows(rec).At(0).Value("v")
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func outputSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "bin", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "value", Type: arrow.PrimitiveTypes.Int32},
		{Name: "note", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func TestRecordWriterCommitAndRollback(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	w, err := NewRecordWriter(mem, outputSchema())
	require.NoError(t, err)
	defer w.Release()

	bin := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	// Row committed.
	require.NoError(t, w.SetTimestamp("bin", bin))
	require.NoError(t, w.SetValue("value", timeline.IntValue(3)))
	require.NoError(t, w.SetValue("note", timeline.TextValue("a")))
	require.NoError(t, w.Finalize())
	w.Commit()

	// Row finalized then rolled back.
	require.NoError(t, w.SetTimestamp("bin", bin.Add(time.Hour)))
	require.NoError(t, w.SetValue("value", timeline.IntValue(4)))
	require.NoError(t, w.SetNull("note"))
	require.NoError(t, w.Finalize())
	w.Rollback()

	// Row with a nullable column left unset is rejected.
	require.NoError(t, w.SetTimestamp("bin", bin))
	require.NoError(t, w.SetValue("value", timeline.IntValue(5)))
	var schemaErr *SchemaError
	require.True(t, errors.As(w.Finalize(), &schemaErr))
	assert.Equal(t, "note", schemaErr.Column)

	assert.Equal(t, 1, w.Rows())

	rec := w.NewRecord()
	defer rec.Release()

	require.Equal(t, int64(1), rec.NumRows())
	assert.Equal(t, int32(3), rec.Column(1).(*array.Int32).Value(0))
	got := rec.Column(0).(*array.Timestamp).Value(0).ToTime(arrow.Microsecond)
	assert.True(t, got.Equal(bin))
}

func TestRecordWriterRejectsBadWrites(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	w, err := NewRecordWriter(mem, outputSchema())
	require.NoError(t, err)
	defer w.Release()

	var schemaErr *SchemaError
	assert.True(t, errors.As(w.SetValue("value", timeline.FloatValue(1)), &schemaErr), "float into int32")
	assert.True(t, errors.As(w.SetValue("value", timeline.IntValue(1<<40)), &schemaErr), "int32 overflow")
	assert.True(t, errors.As(w.SetTimestamp("value", time.Now()), &schemaErr), "timestamp into int32")
	assert.True(t, errors.As(w.SetValue("nope", timeline.IntValue(1)), &schemaErr), "unknown column")

	require.NoError(t, w.SetValue("value", timeline.IntValue(1)))
	assert.True(t, errors.As(w.SetValue("value", timeline.IntValue(2)), &schemaErr), "double write")
	w.Discard()
}

func TestNewRecordWriterRejectsUnsupportedType(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "raw", Type: arrow.BinaryTypes.Binary}}, nil)
	_, err := NewRecordWriter(memory.DefaultAllocator, schema)
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

type fakeWriter struct {
	values map[string]interface{}
}

func (f *fakeWriter) SetTimestamp(name string, t time.Time) error {
	f.values[name] = t
	return nil
}

func (f *fakeWriter) SetFloat(name string, v float64) error {
	f.values[name] = v
	return nil
}

func (f *fakeWriter) SetValue(name string, v timeline.Value) error {
	f.values[name] = v
	return nil
}

func (f *fakeWriter) SetNull(name string) error {
	f.values[name] = nil
	return nil
}

func (f *fakeWriter) Finalize() error { return nil }

func (f *fakeWriter) Discard() {}

func TestCopy(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	rec := buildInput(t, mem)
	defer rec.Release()
	row := NewRecordRows(rec).At(0)

	w := &fakeWriter{values: map[string]interface{}{}}
	for _, name := range []string{"start", "flag", "count", "name"} {
		require.NoError(t, Copy(w, row, name))
	}

	assert.IsType(t, time.Time{}, w.values["start"])
	assert.Nil(t, w.values["flag"])
	assert.Equal(t, timeline.IntValue(-7), w.values["count"])
	assert.Equal(t, timeline.TextValue("door"), w.values["name"])
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, timeline.KindBool, KindOf(arrow.FixedWidthTypes.Boolean))
	assert.Equal(t, timeline.KindInt, KindOf(arrow.PrimitiveTypes.Int32))
	assert.Equal(t, timeline.KindInt, KindOf(arrow.PrimitiveTypes.Int64))
	assert.Equal(t, timeline.KindFloat, KindOf(arrow.PrimitiveTypes.Float64))
	assert.Equal(t, timeline.KindText, KindOf(arrow.BinaryTypes.String))
	assert.Equal(t, timeline.KindInvalid, KindOf(arrow.PrimitiveTypes.Float32))
	assert.Equal(t, timeline.KindInvalid, KindOf(arrow.FixedWidthTypes.Timestamp_ns))
	assert.True(t, Passable(arrow.FixedWidthTypes.Timestamp_ns))
	assert.False(t, Passable(arrow.BinaryTypes.Binary))
}
