package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/prtline/sortation/core/metrics"
	"github.com/prtline/sortation/core/model"
)

// PromSink records sortation events in Prometheus metrics.
type PromSink struct {
	dispatches *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
	reports    *prometheus.CounterVec
	open       prometheus.Gauge
	latency    *prometheus.HistogramVec
}

// NewPromSink registers sortation metrics on the default Prometheus
// registerer. The Prometheus server should be started separately.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sortation_dispatches_total",
		Help: "Total number of answered routing requests",
	}, []string{"sorter_id", "fallback"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sortation_anomalies_total",
		Help: "Recovered protocol violations by kind",
	}, []string{"kind"})
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sortation_report_states_total",
		Help: "Reconciled states resulting from outcome reports",
	}, []string{"state"})
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sortation_open_transactions",
		Help: "Number of dispatch transactions currently open",
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sortation_dispatch_latency_seconds",
		Help:    "Time between request arrival and response",
		Buckets: prometheus.DefBuckets,
	}, []string{"sorter_id"})

	s := &PromSink{dispatches: dispatches, anomalies: anomalies, reports: reports, open: open, latency: latency}
	collectors := []prometheus.Collector{dispatches, anomalies, reports, open, latency}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				s.dispatches = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				s.anomalies = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				s.reports = are.ExistingCollector.(*prometheus.CounterVec)
			case 3:
				s.open = are.ExistingCollector.(prometheus.Gauge)
			case 4:
				s.latency = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}
	return s, nil
}

// RecordDispatch increments the dispatch counter and observes latency.
func (s *PromSink) RecordDispatch(res coremetrics.DispatchResult) error {
	sorter := strconv.Itoa(res.SorterID)
	s.dispatches.WithLabelValues(sorter, strconv.FormatBool(res.Fallback)).Inc()
	s.latency.WithLabelValues(sorter).Observe(res.Latency.Seconds())
	return nil
}

// RecordAnomaly increments the anomaly counter for the given kind.
func (s *PromSink) RecordAnomaly(kind coremetrics.AnomalyKind) error {
	s.anomalies.WithLabelValues(string(kind)).Inc()
	return nil
}

// RecordReportState increments the state counter for a folded report.
func (s *PromSink) RecordReportState(state model.ReconciledState) error {
	s.reports.WithLabelValues(state.String()).Inc()
	return nil
}

// SetOpenTransactions sets the open-transaction gauge.
func (s *PromSink) SetOpenTransactions(n int) error {
	s.open.Set(float64(n))
	return nil
}
