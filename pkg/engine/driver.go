// Package engine drives an operator over Arrow record batches: it feeds every
// input row to the operator, collects the emitted rows into output batches and
// applies a failure policy to rejected rows.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/leowmjw/go-timeline-resample/pkg/operator"
	"github.com/leowmjw/go-timeline-resample/pkg/table"
)

// Config configures a Driver.
type Config struct {
	// Workers is the number of batches processed concurrently. Output
	// batches are always delivered in input order. Values below 1 mean 1.
	Workers    int
	Policy     FailurePolicy
	DeadLetter DeadLetterSink
	Allocator  memory.Allocator
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Driver runs one operator over record batches.
type Driver struct {
	op      operator.Operator
	policy  FailurePolicy
	dlq     DeadLetterSink
	workers int
	mem     memory.Allocator
	metrics *Metrics
	logger  *slog.Logger
}

func NewDriver(op operator.Operator, cfg Config) (*Driver, error) {
	policy, err := ParseFailurePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	if policy == PolicyDeadLetter && cfg.DeadLetter == nil {
		return nil, fmt.Errorf("failure policy %q requires a dead letter sink", policy)
	}

	d := &Driver{
		op:      op,
		policy:  policy,
		dlq:     cfg.DeadLetter,
		workers: max(cfg.Workers, 1),
		mem:     cfg.Allocator,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if d.mem == nil {
		d.mem = memory.DefaultAllocator
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("operator", op.Name())
	return d, nil
}

// Operator returns the operator the driver runs.
func (d *Driver) Operator() operator.Operator {
	return d.op
}

// Process resamples one input batch. It returns the output batch and the rows
// rejected under the skip and dead-letter policies. Under PolicyFail the first
// rejected row aborts the batch. An error in the input schema always aborts.
func (d *Driver) Process(ctx context.Context, batch int, rec arrow.Record) (arrow.Record, []RowFailure, error) {
	start := time.Now()
	defer func() {
		d.metrics.batchDuration.WithLabelValues(d.op.Name()).Observe(time.Since(start).Seconds())
	}()

	schema, err := d.op.OutputSchema(rec.Schema())
	if err != nil {
		return nil, nil, fmt.Errorf("batch %d: %w", batch, err)
	}
	w, err := table.NewRecordWriter(d.mem, schema)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %d: %w", batch, err)
	}
	defer w.Release()

	var failures []RowFailure
	rows := table.NewRecordRows(rec)
	for i := 0; i < rows.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d.metrics.rowsIn.WithLabelValues(d.op.Name()).Inc()

		n, err := d.applyRow(w, rows.At(i))
		if err == nil {
			w.Commit()
			d.metrics.rowsOut.WithLabelValues(d.op.Name()).Add(float64(n))
			continue
		}
		w.Rollback()

		f := RowFailure{Batch: batch, Index: i, Record: rec, Err: err}
		if err := d.handleFailure(ctx, f); err != nil {
			return nil, nil, err
		}
		f.Record = nil
		failures = append(failures, f)
	}

	return w.NewRecord(), failures, nil
}

func (d *Driver) applyRow(w *table.RecordWriter, row table.Row) (int, error) {
	seq, err := d.op.Apply(row)
	if err != nil {
		return 0, err
	}
	n := 0
	for out := range seq {
		if err := out.WriteTo(w); err != nil {
			w.Discard()
			return n, err
		}
		if err := w.Finalize(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (d *Driver) handleFailure(ctx context.Context, f RowFailure) error {
	d.metrics.failures.WithLabelValues(d.op.Name(), f.Reason(), string(d.policy)).Inc()

	switch d.policy {
	case PolicySkip:
		d.logger.Warn("Skipping row", "batch", f.Batch, "row", f.Index, "reason", f.Reason(), "error", f.Err)
		return nil
	case PolicyDeadLetter:
		d.logger.Debug("Dead-lettering row", "batch", f.Batch, "row", f.Index, "reason", f.Reason(), "error", f.Err)
		if err := d.dlq.DeadLetter(ctx, f); err != nil {
			return fmt.Errorf("failed to dead-letter %v: %w", f, err)
		}
		return nil
	default:
		return f
	}
}

type batchResult struct {
	out      arrow.Record
	failures []RowFailure
	rowsIn   int64
	err      error
}

// Run reads every batch from rdr, resamples it and passes the output batches
// to sink in input order. The driver releases each output batch after sink
// returns; sinks that keep a batch must retain it. The report covers every
// batch delivered to sink, also when Run fails.
func (d *Driver) Run(ctx context.Context, rdr array.RecordReader, sink func(arrow.Record) error) (*Report, error) {
	report := &Report{}
	g, gctx := errgroup.WithContext(ctx)

	// Each queued channel carries the result of one batch. The queue bounds
	// the number of batches in flight.
	pending := make(chan chan batchResult, d.workers)

	g.Go(func() error {
		defer close(pending)
		batch := 0
		for rdr.Next() {
			rec := rdr.Record()
			rec.Retain()

			ch := make(chan batchResult, 1)
			select {
			case pending <- ch:
			case <-gctx.Done():
				rec.Release()
				return gctx.Err()
			}

			idx := batch
			batch++
			g.Go(func() error {
				defer rec.Release()
				out, failures, err := d.Process(gctx, idx, rec)
				ch <- batchResult{out: out, failures: failures, rowsIn: rec.NumRows(), err: err}
				return nil
			})
		}
		return rdr.Err()
	})

	g.Go(func() error {
		for ch := range pending {
			res := <-ch
			if res.err != nil {
				return res.err
			}
			report.add(res)
			err := sink(res.out)
			res.out.Release()
			if err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	for ch := range pending {
		if res := <-ch; res.out != nil {
			res.out.Release()
		}
	}
	if err != nil {
		return report, err
	}

	d.logger.Debug("Run complete", "batches", report.Batches, "rows_in", report.RowsIn, "rows_out", report.RowsOut, "failures", len(report.Failures))
	return report, nil
}

// ProcessRecord splits rec into batches of at most batchSize rows, runs them on
// the driver's workers and returns the output batches in input order. A
// batchSize below 1 processes rec as one batch. Callers release the outputs.
func (d *Driver) ProcessRecord(ctx context.Context, rec arrow.Record, batchSize int) ([]arrow.Record, *Report, error) {
	batches := SplitRecord(rec, batchSize)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	rdr, err := array.NewRecordReader(rec.Schema(), batches)
	if err != nil {
		return nil, nil, err
	}
	defer rdr.Release()

	var outs []arrow.Record
	report, err := d.Run(ctx, rdr, func(r arrow.Record) error {
		r.Retain()
		outs = append(outs, r)
		return nil
	})
	if err != nil {
		for _, r := range outs {
			r.Release()
		}
		return nil, report, err
	}
	return outs, report, nil
}

// SplitRecord slices rec into consecutive records of at most size rows. The
// slices share rec's buffers and must be released.
func SplitRecord(rec arrow.Record, size int) []arrow.Record {
	n := rec.NumRows()
	if size < 1 || int64(size) >= n {
		rec.Retain()
		return []arrow.Record{rec}
	}
	batches := make([]arrow.Record, 0, (n+int64(size)-1)/int64(size))
	for i := int64(0); i < n; i += int64(size) {
		batches = append(batches, rec.NewSlice(i, min(i+int64(size), n)))
	}
	return batches
}
