// Package metrics holds the prometheus collectors for the coordination engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts engine operations by outcome kind ("ok" on success)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrobulk_operations_total",
		Help: "Engine operations by operation and result kind",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrobulk_operation_duration_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"operation"})

	stockUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrobulk_stock_units_total",
		Help: "Stock units reserved or restored by individual orders",
	}, []string{"direction"})

	// StockRestoreFailures counts cancellations that could not give stock back.
	// Any increase needs operator reconciliation.
	StockRestoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrobulk_stock_restore_failures_total",
		Help: "Cancelled orders whose stock restore failed",
	})
)

// Observe records one finished operation. kind is empty on success.
func Observe(operation string, start time.Time, kind string) {
	if kind == "" {
		kind = "ok"
	}
	operationsTotal.WithLabelValues(operation, kind).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func StockReserved(units int) { stockUnits.WithLabelValues("reserved").Add(float64(units)) }

func StockRestored(units int) { stockUnits.WithLabelValues("restored").Add(float64(units)) }
