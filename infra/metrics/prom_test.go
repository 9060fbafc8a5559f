package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/prtline/sortation/core/metrics"
	"github.com/prtline/sortation/core/model"
)

func TestPromSink_RecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	res := coremetrics.DispatchResult{
		SorterID:    1,
		Barcode:     "0008",
		Destination: 3,
		Gate:        1,
		Fallback:    false,
		Latency:     150 * time.Millisecond,
		Time:        time.Now(),
	}
	if err := sink.RecordDispatch(res); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP sortation_dispatches_total Total number of answered routing requests
# TYPE sortation_dispatches_total counter
sortation_dispatches_total{fallback="false",sorter_id="1"} 1
`
	if err := testutil.CollectAndCompare(sink.dispatches, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	if c := testutil.CollectAndCount(sink.latency); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSink_RecordAnomalyAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)

	if err := sink.RecordAnomaly(coremetrics.AnomalyDuplicate); err != nil {
		t.Fatalf("anomaly error: %v", err)
	}
	if err := sink.RecordAnomaly(coremetrics.AnomalyDuplicate); err != nil {
		t.Fatalf("anomaly error: %v", err)
	}
	expected := `
# HELP sortation_anomalies_total Recovered protocol violations by kind
# TYPE sortation_anomalies_total counter
sortation_anomalies_total{kind="duplicate_transaction"} 2
`
	if err := testutil.CollectAndCompare(sink.anomalies, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected anomaly metric: %v", err)
	}

	if err := sink.RecordReportState(model.StateDiverted); err != nil {
		t.Fatalf("state error: %v", err)
	}
	expectedStates := `
# HELP sortation_report_states_total Reconciled states resulting from outcome reports
# TYPE sortation_report_states_total counter
sortation_report_states_total{state="in_circulation_diverted"} 1
`
	if err := testutil.CollectAndCompare(sink.reports, strings.NewReader(expectedStates)); err != nil {
		t.Errorf("unexpected state metric: %v", err)
	}

	if err := sink.SetOpenTransactions(7); err != nil {
		t.Fatalf("gauge error: %v", err)
	}
	expectedOpen := `
# HELP sortation_open_transactions Number of dispatch transactions currently open
# TYPE sortation_open_transactions gauge
sortation_open_transactions 7
`
	if err := testutil.CollectAndCompare(sink.open, strings.NewReader(expectedOpen)); err != nil {
		t.Errorf("unexpected gauge: %v", err)
	}
}

func TestPromSink_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second register should reuse collectors: %v", err)
	}
}
