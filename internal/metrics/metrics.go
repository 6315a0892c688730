package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpSlice     = "slice"
	OpAggregate = "aggregate"
	OpInsert    = "insert"
	OpStats     = "stats"
	OpExport    = "export"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cubico_operations_total",
		Help: "Total cube operations by kind and outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cubico_operation_duration_seconds",
		Help:    "Duration of cube operations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"operation"})

	resultRecords = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cubico_result_records",
		Help:    "Number of records in slice and aggregate results",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"operation"})

	cubeRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cubico_cube_records",
		Help: "Records held by the live cube",
	})

	cubeDimensions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cubico_cube_dimensions",
		Help: "Dimensions registered in the live cube",
	})
)

// Observe records the outcome and latency of one operation started at
// start.
func Observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveResult records the size of a query result.
func ObserveResult(operation string, records int) {
	resultRecords.WithLabelValues(operation).Observe(float64(records))
}

// SetCubeSize publishes the live cube's shape.
func SetCubeSize(records, dimensions int) {
	cubeRecords.Set(float64(records))
	cubeDimensions.Set(float64(dimensions))
}
