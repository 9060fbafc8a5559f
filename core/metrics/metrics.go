// Package metrics defines the observability ports implemented by the
// Prometheus and InfluxDB sinks under infra/metrics.
package metrics

import (
	"time"

	"github.com/prtline/sortation/core/model"
)

// DispatchResult represents one answered routing request to be recorded.
type DispatchResult struct {
	SorterID    int
	Barcode     string
	Destination model.Destination
	Gate        model.Destination
	Fallback    bool
	Latency     time.Duration
	Time        time.Time
}

// AnomalyKind labels a recovered protocol violation.
type AnomalyKind string

const (
	AnomalyDuplicate    AnomalyKind = "duplicate_transaction"
	AnomalyLateResponse AnomalyKind = "late_response"
	AnomalyStaleReport  AnomalyKind = "stale_report"
	AnomalyTimeout      AnomalyKind = "transaction_timeout"
	AnomalyUnknownCart  AnomalyKind = "unknown_cart"
)

// Sink records sortation events for observability purposes.
type Sink interface {
	RecordDispatch(res DispatchResult) error
	RecordAnomaly(kind AnomalyKind) error
	RecordReportState(state model.ReconciledState) error
	SetOpenTransactions(n int) error
}

// NopSink discards all metrics.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchResult) error           { return nil }
func (NopSink) RecordAnomaly(AnomalyKind) error               { return nil }
func (NopSink) RecordReportState(model.ReconciledState) error { return nil }
func (NopSink) SetOpenTransactions(int) error                 { return nil }
