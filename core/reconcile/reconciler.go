// Package reconcile folds asynchronous outcome reports and removal events
// into one authoritative state per cart. Reports carry no ordering guarantee
// from field hardware, so application is timestamp-ordered per barcode with
// stale writes rejected.
package reconcile

import (
	"errors"
	"sync"
	"time"

	"github.com/prtline/sortation/core/model"
)

// ErrStaleReport signals a report older than the last one applied for the
// barcode. It is discarded, never fatal.
var ErrStaleReport = errors.New("reconcile: stale report")

type cartState struct {
	mu          sync.Mutex
	state       model.ReconciledState
	lastApplied time.Time
	removed     bool
}

// Reconciler owns the per-cart state table. Entries are guarded
// independently so reports for distinct barcodes never contend.
type Reconciler struct {
	mu    sync.RWMutex
	carts map[string]*cartState
}

// New creates an empty Reconciler.
func New() *Reconciler {
	return &Reconciler{carts: make(map[string]*cartState)}
}

// entryFor returns the state entry for barcode, creating it on first
// sighting. Field hardware may report a barcode before the registry has ever
// seen it; that is a valid Unknown-state cart, not an error.
func (r *Reconciler) entryFor(barcode string) *cartState {
	r.mu.RLock()
	e := r.carts[barcode]
	r.mu.RUnlock()
	if e != nil {
		return e
	}
	r.mu.Lock()
	e = r.carts[barcode]
	if e == nil {
		e = &cartState{state: model.StateUnknown}
		r.carts[barcode] = e
	}
	r.mu.Unlock()
	return e
}

// fold applies the precedence policy. An all-clear report (cart simply left
// this sorter's view) leaves the state unchanged: absence of flags from one
// sorter does not imply absence from the system.
func fold(prev model.ReconciledState, f model.ReportFlags) model.ReconciledState {
	switch {
	case f.Lost:
		return model.StateLost
	case f.Diverted:
		return model.StateDiverted
	case f.Active && f.Good:
		return model.StateGood
	default:
		return prev
	}
}

// ApplyReport folds one outcome report into the cart's state and returns the
// resulting state. Reports older than the last applied one for the barcode
// return ErrStaleReport with the state untouched. While the removal latch is
// set the report is absorbed without effect.
func (r *Reconciler) ApplyReport(barcode string, flags model.ReportFlags, ts time.Time) (model.ReconciledState, error) {
	e := r.entryFor(barcode)
	e.mu.Lock()
	defer e.mu.Unlock()
	if ts.Before(e.lastApplied) {
		return e.state, ErrStaleReport
	}
	if e.removed {
		return e.state, nil
	}
	e.state = fold(e.state, flags)
	e.lastApplied = ts
	return e.state, nil
}

// ApplyRemoval forces the cart to Removed regardless of prior state and
// suppresses report-driven transitions until the cart is reintroduced.
func (r *Reconciler) ApplyRemoval(barcode string, ts time.Time) model.ReconciledState {
	e := r.entryFor(barcode)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = model.StateRemoved
	e.removed = true
	if ts.After(e.lastApplied) {
		e.lastApplied = ts
	}
	return e.state
}

// Reintroduce clears the removal latch after a new dispatch request for the
// barcode has been answered. The state resets to Unknown and a fresh
// timestamp epoch opens so the next report applies regardless of age.
func (r *Reconciler) Reintroduce(barcode string) {
	r.mu.RLock()
	e := r.carts[barcode]
	r.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.removed {
		e.state = model.StateUnknown
		e.removed = false
		e.lastApplied = time.Time{}
	}
	e.mu.Unlock()
}

// State returns the reconciled state for barcode. Never-seen barcodes are
// Unknown.
func (r *Reconciler) State(barcode string) model.ReconciledState {
	r.mu.RLock()
	e := r.carts[barcode]
	r.mu.RUnlock()
	if e == nil {
		return model.StateUnknown
	}
	e.mu.Lock()
	s := e.state
	e.mu.Unlock()
	return s
}
