package metrics

import (
	"errors"

	coremetrics "github.com/prtline/sortation/core/metrics"
	"github.com/prtline/sortation/core/model"
)

// MultiSink fans every record out to all configured sinks.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordDispatch(res coremetrics.DispatchResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordDispatch(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordAnomaly(kind coremetrics.AnomalyKind) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordAnomaly(kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordReportState(state model.ReconciledState) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordReportState(state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) SetOpenTransactions(n int) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.SetOpenTransactions(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
