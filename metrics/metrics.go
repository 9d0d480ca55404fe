// Package metrics holds the Prometheus collectors for the hour bank. They
// register on the default registry and are exported by the API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// EntryMutations counts committed entry mutations by operation and record type.
var EntryMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "ledger",
	Name:      "entry_mutations_total",
	Help:      "Committed entry mutations by operation (append, edit, delete) and record type.",
}, []string{"op", "record_type"})

// BulkOperations counts applied bulk operations.
var BulkOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "ledger",
	Name:      "bulk_operations_total",
	Help:      "Applied bulk operations by kind and record type.",
}, []string{"kind", "record_type"})

// ─── Reconciliation ─────────────────────────────────────────────────────────

var ReconciliationWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "reconciliation",
	Name:      "writes_total",
	Help:      "Rows written or removed by the reconciliation engine, by kind.",
}, []string{"kind"})

var ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "reconciliation",
	Name:      "failures_total",
	Help:      "Reconciliation runs that failed and rolled back their mutation.",
})

var ReconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "hourbank",
	Subsystem: "reconciliation",
	Name:      "duration_seconds",
	Help:      "Time spent reconciling one collaborator.",
	Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
})

// CeilingForfeitedDays counts days dropped by verify-and-convert at the ceiling.
var CeilingForfeitedDays = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "reconciliation",
	Name:      "ceiling_forfeited_days_total",
	Help:      "Days forfeited because the balance ceiling was reached.",
})

// SweepRuns counts scheduler sweeps by result (ok, error).
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hourbank",
	Subsystem: "scheduler",
	Name:      "sweeps_total",
	Help:      "Reconciliation sweeps by result.",
}, []string{"result"})

// ─── Reports ────────────────────────────────────────────────────────────────

var ReportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "hourbank",
	Subsystem: "report",
	Name:      "build_duration_seconds",
	Help:      "Time spent building the all-collaborator balance report.",
	Buckets:   prometheus.DefBuckets,
})
