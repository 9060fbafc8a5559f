// Package audit persists the immutable trail of sorter traffic: every
// request, response, report and removal, plus the anomalies the engine
// recovered from (duplicates, orphans, stale reports, fallback dispatches).
package audit

import (
	"context"
	"time"

	"github.com/prtline/sortation/core/model"
)

// Kind classifies an audit record.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindReport   Kind = "report"
	KindRemoval  Kind = "removal"
	KindAnomaly  Kind = "anomaly"
)

// Record captures one sortation event. Position and Event carry the
// human-readable activity labels consumed by the operator UI.
type Record struct {
	ID          string             `json:"id"`
	Kind        Kind               `json:"kind"`
	Timestamp   time.Time          `json:"timestamp"`
	SorterID    int                `json:"sorter_id,omitempty"`
	Transaction int                `json:"transaction_id,omitempty"`
	Barcode     string             `json:"barcode,omitempty"`
	Destination model.Destination  `json:"destination,omitempty"`
	Flags       *model.ReportFlags `json:"flags,omitempty"`
	Area        int                `json:"area,omitempty"`
	Position    string             `json:"position,omitempty"`
	Event       string             `json:"event,omitempty"`
	Detail      string             `json:"detail,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start   time.Time
	End     time.Time
	Barcode string
	Kind    Kind
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                  { return nil }

func (r Record) matches(q Query) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Barcode != "" && r.Barcode != q.Barcode {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}
