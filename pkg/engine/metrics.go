package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	rowsIn        *prometheus.CounterVec
	rowsOut       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// NewMetrics registers the driver metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		rowsIn: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resample_input_rows_total",
			Help: "Input rows handed to an operator.",
		}, []string{"operator"}),
		rowsOut: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resample_output_rows_total",
			Help: "Output rows emitted by an operator.",
		}, []string{"operator"}),
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resample_row_failures_total",
			Help: "Input rows rejected by an operator, by failure reason and policy.",
		}, []string{"operator", "reason", "policy"}),
		batchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resample_batch_duration_seconds",
			Help:    "Time spent resampling one input batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operator"}),
	}
}
