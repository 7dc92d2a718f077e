// Package table is the row contract between resampling operators and the host
// engine, with an implementation over Apache Arrow record batches.
package table

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// SchemaError reports a column that is missing, ambiguous, null or of a type
// different from the one requested.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %q: %s", e.Column, e.Reason)
}

func schemaErrorf(column, format string, args ...interface{}) error {
	return &SchemaError{Column: column, Reason: fmt.Sprintf(format, args...)}
}

// Row is a read-only view of one input row.
type Row interface {
	// Type returns the declared type of a column.
	Type(name string) (arrow.DataType, error)
	IsNull(name string) (bool, error)
	Timestamp(name string) (time.Time, error)
	// Value reads a bool, integer, float64 or string column.
	Value(name string) (timeline.Value, error)
}

// RowWriter accumulates one output row. Nothing becomes visible until Finalize
// succeeds; Discard drops a partially written row.
type RowWriter interface {
	SetTimestamp(name string, t time.Time) error
	SetFloat(name string, f float64) error
	SetValue(name string, v timeline.Value) error
	SetNull(name string) error
	Finalize() error
	Discard()
}

// Output is one record emitted by an operator.
type Output interface {
	WriteTo(w RowWriter) error
}

// KindOf maps an Arrow type to the value variant it carries.
func KindOf(dt arrow.DataType) timeline.Kind {
	switch dt.ID() {
	case arrow.BOOL:
		return timeline.KindBool
	case arrow.INT32, arrow.INT64:
		return timeline.KindInt
	case arrow.FLOAT64:
		return timeline.KindFloat
	case arrow.STRING, arrow.LARGE_STRING:
		return timeline.KindText
	default:
		return timeline.KindInvalid
	}
}

// Passable reports whether a column of this type can be copied from an input
// row onto output rows.
func Passable(dt arrow.DataType) bool {
	return dt.ID() == arrow.TIMESTAMP || KindOf(dt) != timeline.KindInvalid
}

// Copy copies column name from row into w, preserving nulls.
func Copy(w RowWriter, row Row, name string) error {
	null, err := row.IsNull(name)
	if err != nil {
		return err
	}
	if null {
		return w.SetNull(name)
	}

	dt, err := row.Type(name)
	if err != nil {
		return err
	}
	if dt.ID() == arrow.TIMESTAMP {
		t, err := row.Timestamp(name)
		if err != nil {
			return err
		}
		return w.SetTimestamp(name, t)
	}

	v, err := row.Value(name)
	if err != nil {
		return err
	}
	return w.SetValue(name, v)
}
