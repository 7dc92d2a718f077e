package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/hashicorp/go-multierror"

	"github.com/leowmjw/go-timeline-resample/pkg/operator"
	"github.com/leowmjw/go-timeline-resample/pkg/table"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

// FailurePolicy decides what happens to a row whose operator call fails.
type FailurePolicy string

const (
	// PolicyFail aborts the run with the row's error.
	PolicyFail FailurePolicy = "fail"
	// PolicySkip logs the failure and continues with the next row.
	PolicySkip FailurePolicy = "skip"
	// PolicyDeadLetter hands the failed row to a DeadLetterSink and continues.
	PolicyDeadLetter FailurePolicy = "dead-letter"
)

// ParseFailurePolicy validates a policy name. The empty string means PolicyFail.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case "":
		return PolicyFail, nil
	case PolicyFail, PolicySkip, PolicyDeadLetter:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// RowFailure describes one input row the operator rejected.
type RowFailure struct {
	Batch int
	Index int
	// Record is the input batch holding the row. It is only valid for the
	// duration of a DeadLetter call and is nil in a Report.
	Record arrow.Record
	Err    error
}

func (f RowFailure) Error() string {
	return fmt.Sprintf("batch %d row %d: %v", f.Batch, f.Index, f.Err)
}

func (f RowFailure) Unwrap() error {
	return f.Err
}

// Reason classifies the failure for metrics and logs.
func (f RowFailure) Reason() string {
	return failureReason(f.Err)
}

func failureReason(err error) string {
	var (
		schemaErr *table.SchemaError
		typeErr   *timeline.TypeError
		domainErr *timeline.DomainError
		cfgErr    *operator.ConfigError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &typeErr):
		return "type"
	case errors.As(err, &domainErr):
		return "domain"
	case errors.As(err, &cfgErr):
		return "config"
	default:
		return "other"
	}
}

// DeadLetterSink receives rows rejected under PolicyDeadLetter. With more than
// one worker it is called concurrently.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, f RowFailure) error
}

// DeadLetterFunc adapts a function to DeadLetterSink.
type DeadLetterFunc func(ctx context.Context, f RowFailure) error

func (fn DeadLetterFunc) DeadLetter(ctx context.Context, f RowFailure) error {
	return fn(ctx, f)
}

type deadLetterEntry struct {
	Batch  int           `json:"batch"`
	Row    int           `json:"row"`
	Reason string        `json:"reason"`
	Error  string        `json:"error"`
	Input  table.JSONRow `json:"input,omitempty"`
}

type jsonDeadLetter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONDeadLetter returns a sink writing one JSON object per failed row,
// including the row's input columns.
func NewJSONDeadLetter(w io.Writer) DeadLetterSink {
	return &jsonDeadLetter{enc: json.NewEncoder(w)}
}

func (s *jsonDeadLetter) DeadLetter(_ context.Context, f RowFailure) error {
	entry := deadLetterEntry{
		Batch:  f.Batch,
		Row:    f.Index,
		Reason: f.Reason(),
		Error:  f.Err.Error(),
	}
	if f.Record != nil {
		slice := f.Record.NewSlice(int64(f.Index), int64(f.Index)+1)
		rows, err := table.RecordToJSON(slice)
		slice.Release()
		if err != nil {
			return fmt.Errorf("failed to render dead letter row: %w", err)
		}
		if len(rows) == 1 {
			entry.Input = rows[0]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(entry)
}

// Report summarizes a run.
type Report struct {
	Batches  int
	RowsIn   int64
	RowsOut  int64
	Failures []RowFailure
}

func (r *Report) add(res batchResult) {
	r.Batches++
	r.RowsIn += res.rowsIn
	if res.out != nil {
		r.RowsOut += res.out.NumRows()
	}
	r.Failures = append(r.Failures, res.failures...)
}

// Err joins all row failures of the run, or returns nil if there were none.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, f)
	}
	return result.ErrorOrNil()
}
