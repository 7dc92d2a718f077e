package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/spf13/cobra"

	"github.com/leowmjw/go-timeline-resample/pkg/engine"
	"github.com/leowmjw/go-timeline-resample/pkg/operator"
	"github.com/leowmjw/go-timeline-resample/pkg/timeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one operator over a CSV file",
	Long:  "Read intervals from a CSV file with a header row, resample them with the named operator and write the output rows as CSV.",
	RunE:  runRun,
}

// Run flags
var (
	runOperator   string
	runInput      string
	runOutput     string
	runPolicy     string
	runWorkers    int
	runChunk      int
	runDeadLetter string
	runAggregate  string
	runColumn     string
	runPercentile float64
	runSummary    string
	runStrict     bool
)

func init() {
	runCmd.Flags().StringVar(&runOperator, "operator", "", "Name of the operator to run (required)")
	runCmd.Flags().StringVar(&runInput, "input", "-", "Input CSV file, - for stdin")
	runCmd.Flags().StringVar(&runOutput, "output", "-", "Output CSV file, - for stdout")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Failure policy override: fail, skip or dead-letter")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Batches processed concurrently (default from config)")
	runCmd.Flags().IntVar(&runChunk, "chunk", 4096, "Rows per input batch")
	runCmd.Flags().StringVar(&runDeadLetter, "dead-letter", "", "File receiving rejected rows as JSON lines (default stderr)")
	runCmd.Flags().StringVar(&runAggregate, "aggregate", "", "Also aggregate a numeric output column per bin (sum, avg, min, max, count, ...)")
	runCmd.Flags().StringVar(&runColumn, "column", "", "Output column to aggregate (default split_delta or value)")
	runCmd.Flags().Float64Var(&runPercentile, "percentile", 50, "Percentile for --aggregate percentile")
	runCmd.Flags().StringVar(&runSummary, "summary", "", "File receiving the aggregates as JSON (default stderr)")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Exit with an error when any row was rejected under the skip or dead-letter policy")
	_ = runCmd.MarkFlagRequired("operator")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opCfg, ok := cfg.Operator(runOperator)
	if !ok {
		return fmt.Errorf("operator %q not found in %s", runOperator, configPath)
	}
	op, err := operator.New(opCfg)
	if err != nil {
		return err
	}

	var aggType timeline.AggregationType
	if runAggregate != "" {
		if aggType, err = timeline.ParseAggregationType(runAggregate); err != nil {
			return err
		}
	}

	driverCfg := engine.Config{
		Workers: cfg.Driver.Workers,
		Policy:  cfg.Driver.Policy,
		Logger:  logger,
	}
	if runPolicy != "" {
		driverCfg.Policy = engine.FailurePolicy(runPolicy)
	}
	if cmd.Flags().Changed("workers") {
		driverCfg.Workers = runWorkers
	}
	if driverCfg.Policy == engine.PolicyDeadLetter {
		dlq, closeDLQ, err := openOutput(runDeadLetter, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeDLQ()
		driverCfg.DeadLetter = engine.NewJSONDeadLetter(dlq)
	}

	d, err := engine.NewDriver(op, driverCfg)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(runInput, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(runOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	rdr := csv.NewInferringReader(in,
		csv.WithHeader(true),
		csv.WithChunk(runChunk),
		csv.WithNullReader(true, ""),
		csv.WithColumnTypes(map[string]arrow.DataType{
			opCfg.StartColumn: arrow.FixedWidthTypes.Timestamp_ns,
			opCfg.EndColumn:   arrow.FixedWidthTypes.Timestamp_ns,
		}),
	)
	defer rdr.Release()

	measure := runColumn
	if measure == "" {
		measure = op.Columns().Value
		if op.Kind() == operator.KindInterpolate {
			measure = op.Columns().SplitDelta
		}
	}

	logger.Info("Running operator", "operator", op.Name(), "kind", op.Kind(), "input", runInput, "output", runOutput, "policy", driverCfg.Policy)

	var (
		w      *csv.Writer
		values []timeline.BinValue
	)
	report, err := d.Run(cmd.Context(), rdr, func(rec arrow.Record) error {
		if w == nil {
			w = csv.NewWriter(out, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if aggType != "" {
			vs, err := engine.BinValues(rec, op.Columns().Bin, measure)
			if err != nil {
				return err
			}
			values = append(values, vs...)
		}
		return nil
	})
	if w != nil {
		if flushErr := w.Flush(); flushErr != nil && err == nil {
			err = fmt.Errorf("failed to write output: %w", flushErr)
		}
	}
	if err != nil {
		return err
	}

	logger.Info("Run complete",
		"batches", report.Batches,
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"failures", len(report.Failures),
	)

	if aggType != "" {
		if err := writeSummary(cmd, timeline.AggregateBins(values, aggType, runPercentile)); err != nil {
			return err
		}
	}

	if rejected := report.Err(); rejected != nil {
		logger.Warn("Rows rejected", "policy", driverCfg.Policy, "error", rejected)
		if runStrict {
			return fmt.Errorf("%d rows rejected: %w", len(report.Failures), rejected)
		}
	}
	return nil
}

func writeSummary(cmd *cobra.Command, aggregates []timeline.BinAggregate) error {
	summary, closeSummary, err := openOutput(runSummary, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSummary()

	enc := json.NewEncoder(summary)
	enc.SetIndent("", "  ")
	return enc.Encode(aggregates)
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return fallback, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
