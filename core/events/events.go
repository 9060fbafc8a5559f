// Package events defines the internal events the engine publishes on the
// event bus for logging and monitoring consumers.
package events

import (
	"time"

	"github.com/prtline/sortation/core/model"
)

// RequestEvent is published for every routing request received.
type RequestEvent struct {
	SorterID      int
	TransactionID int
	Barcode       string
	Time          time.Time
}

// ResponseEvent is published when a routing request has been answered.
type ResponseEvent struct {
	ResponseID    string
	SorterID      int
	TransactionID int
	Barcode       string
	Destination   model.Destination
	Gate          model.Destination
	Fallback      bool
	Time          time.Time
}

// DuplicateEvent is published when a request re-uses an open transaction key.
type DuplicateEvent struct {
	SorterID      int
	TransactionID int
	Barcode       string
	Time          time.Time
}

// LateResponseEvent is published when a response arrives for a transaction
// that already timed out.
type LateResponseEvent struct {
	SorterID      int
	TransactionID int
	Barcode       string
	Time          time.Time
}

// TimeoutEvent is published for every transaction expired by the sweep.
type TimeoutEvent struct {
	SorterID      int
	TransactionID int
	Time          time.Time
}

// ReportEvent is published when an outcome report has been folded.
type ReportEvent struct {
	SorterID int
	Barcode  string
	Flags    model.ReportFlags
	State    model.ReconciledState
	Time     time.Time
}

// StaleReportEvent is published when a report is discarded as stale.
type StaleReportEvent struct {
	SorterID int
	Barcode  string
	Time     time.Time
}

// RemovalEvent is published when a cart is extracted from circulation.
type RemovalEvent struct {
	Barcode string
	Area    int
	Time    time.Time
}
