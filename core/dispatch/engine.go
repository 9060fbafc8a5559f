// Package dispatch implements the sorter dispatch and reconciliation engine:
// it answers routing requests from field sorters, correlates the exchange by
// (sorterID, transactionID), and feeds outcome reports and removals into the
// per-cart reconciled state.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prtline/sortation/core/audit"
	"github.com/prtline/sortation/core/correlator"
	"github.com/prtline/sortation/core/events"
	"github.com/prtline/sortation/core/logger"
	"github.com/prtline/sortation/core/metrics"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/reconcile"
	"github.com/prtline/sortation/core/registry"
	"github.com/prtline/sortation/internal/eventbus"
)

// Response is the answer sent back to a sorter.
type Response struct {
	ID            string            `json:"id"`
	SorterID      int               `json:"sorter_id"`
	TransactionID int               `json:"transaction_id"`
	Barcode       string            `json:"barcode"`
	// Destination is the physical station the cart is headed to.
	Destination model.Destination `json:"destination"`
	// Gate is what the asking sorter actually acts on.
	Gate     model.Destination `json:"gate"`
	Fallback bool              `json:"fallback"`
	Time     time.Time         `json:"time"`
}

// Engine wires the registry, correlator and reconciler behind the transport
// surface. One Engine serves all sorters concurrently.
type Engine struct {
	cfg      Config
	registry *registry.Registry
	routes   registry.RouteTable
	corr     *correlator.Correlator
	rec      *reconcile.Reconciler
	store    audit.Store
	bus      eventbus.EventBus
	sink     metrics.Sink
	log      logger.Logger
}

// NewEngine creates an Engine. store, bus and sink may be nil-equivalents
// (NopStore, NopSink); reg and rec must be provided.
func NewEngine(cfg Config, reg *registry.Registry, rec *reconcile.Reconciler, store audit.Store, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger) (*Engine, error) {
	if reg == nil || rec == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = audit.NopStore{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	e := &Engine{
		cfg:      cfg,
		registry: reg,
		routes:   cfg.RouteTable(),
		corr:     correlator.New(cfg.TimeoutFor),
		rec:      rec,
		store:    store,
		bus:      bus,
		sink:     sink,
		log:      log,
	}
	return e, nil
}

// Registry returns the cart registry the engine dispatches from.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Reconciler returns the per-cart state table.
func (e *Engine) Reconciler() *reconcile.Reconciler { return e.rec }

// OpenTransactions returns the number of currently open exchanges.
func (e *Engine) OpenTransactions() int { return e.corr.OpenCount() }

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// HandleRequest resolves a routing request and answers with the gate the
// sorter must open. Unknown and unreadable barcodes are answered with the
// configured fallback destination; the sorter is never left waiting on a
// manual assignment.
func (e *Engine) HandleRequest(ctx context.Context, sorterID, transactionID int, rawBarcode string, at time.Time) (Response, error) {
	start := time.Now()
	barcode := model.NormalizeBarcode(rawBarcode)
	e.publish(events.RequestEvent{SorterID: sorterID, TransactionID: transactionID, Barcode: barcode, Time: at})
	if err := e.store.Append(ctx, audit.Record{
		ID:          uuid.NewString(),
		Kind:        audit.KindRequest,
		Timestamp:   at,
		SorterID:    sorterID,
		Transaction: transactionID,
		Barcode:     barcode,
		Position:    model.SorterPosition(sorterID),
		Event:       "Request",
	}); err != nil {
		return Response{}, fmt.Errorf("append request record: %w", err)
	}

	if err := e.corr.Open(sorterID, transactionID, at); err != nil {
		e.publish(events.DuplicateEvent{SorterID: sorterID, TransactionID: transactionID, Barcode: barcode, Time: at})
		e.recordAnomaly(ctx, metrics.AnomalyDuplicate, sorterID, barcode,
			fmt.Sprintf("transaction %d already open", transactionID))
		return Response{}, err
	}

	fallback := false
	dest := e.cfg.FallbackDestination
	if !model.ValidBarcode(barcode) {
		fallback = true
		e.log.Warnf("unreadable barcode %q from sorter %d, using fallback destination %d", rawBarcode, sorterID, dest)
	} else if d, err := e.registry.Resolve(barcode); err == nil {
		dest = d
	} else {
		fallback = true
		e.recordAnomaly(ctx, metrics.AnomalyUnknownCart, sorterID, barcode,
			fmt.Sprintf("no assignment, fallback destination %d", dest))
	}

	now := time.Now()
	if err := e.corr.Answer(sorterID, transactionID, now); err != nil {
		e.publish(events.LateResponseEvent{SorterID: sorterID, TransactionID: transactionID, Barcode: barcode, Time: now})
		e.recordAnomaly(ctx, metrics.AnomalyLateResponse, sorterID, barcode,
			fmt.Sprintf("transaction %d expired before response", transactionID))
		return Response{}, err
	}

	resp := Response{
		ID:            uuid.NewString(),
		SorterID:      sorterID,
		TransactionID: transactionID,
		Barcode:       barcode,
		Destination:   dest,
		Gate:          e.routes.Gate(sorterID, dest),
		Fallback:      fallback,
		Time:          now,
	}
	// An answered request for a removed cart reintroduces it.
	e.rec.Reintroduce(barcode)

	if err := e.store.Append(ctx, audit.Record{
		ID:          resp.ID,
		Kind:        audit.KindResponse,
		Timestamp:   now,
		SorterID:    sorterID,
		Transaction: transactionID,
		Barcode:     barcode,
		Destination: dest,
		Position:    model.DestinationPosition(dest),
		Event:       "Response",
	}); err != nil {
		return Response{}, fmt.Errorf("append response record: %w", err)
	}

	e.publish(events.ResponseEvent{
		ResponseID:    resp.ID,
		SorterID:      sorterID,
		TransactionID: transactionID,
		Barcode:       barcode,
		Destination:   dest,
		Gate:          resp.Gate,
		Fallback:      fallback,
		Time:          now,
	})
	if err := e.sink.RecordDispatch(metrics.DispatchResult{
		SorterID:    sorterID,
		Barcode:     barcode,
		Destination: dest,
		Gate:        resp.Gate,
		Fallback:    fallback,
		Latency:     time.Since(start),
		Time:        now,
	}); err != nil {
		e.log.Warnf("record dispatch: %v", err)
	}
	if err := e.sink.SetOpenTransactions(e.corr.OpenCount()); err != nil {
		e.log.Warnf("record open transactions: %v", err)
	}
	return resp, nil
}

// HandleReport folds one outcome report into the cart's reconciled state.
// Stale reports are discarded and audited, never fatal.
func (e *Engine) HandleReport(ctx context.Context, sorterID int, rawBarcode string, flags model.ReportFlags, at time.Time) (model.ReconciledState, error) {
	barcode := model.NormalizeBarcode(rawBarcode)
	if barcode == "" {
		// Scanner misread with an empty field; nothing to reconcile.
		return model.StateUnknown, nil
	}
	state, err := e.rec.ApplyReport(barcode, flags, at)
	if err != nil {
		e.publish(events.StaleReportEvent{SorterID: sorterID, Barcode: barcode, Time: at})
		e.recordAnomaly(ctx, metrics.AnomalyStaleReport, sorterID, barcode, "report older than last applied")
		return state, err
	}
	if aerr := e.store.Append(ctx, audit.Record{
		ID:        uuid.NewString(),
		Kind:      audit.KindReport,
		Timestamp: at,
		SorterID:  sorterID,
		Barcode:   barcode,
		Flags:     &flags,
		Position:  model.SorterPosition(sorterID),
		Event:     flags.Event(),
	}); aerr != nil {
		return state, fmt.Errorf("append report record: %w", aerr)
	}
	e.publish(events.ReportEvent{SorterID: sorterID, Barcode: barcode, Flags: flags, State: state, Time: at})
	if merr := e.sink.RecordReportState(state); merr != nil {
		e.log.Warnf("record report state: %v", merr)
	}
	return state, nil
}

// HandleRemoval extracts a cart from circulation: the reconciled state is
// forced to Removed and the assignment is redirected to the removal area so
// the next scan routes the cart off the line.
func (e *Engine) HandleRemoval(ctx context.Context, rawBarcode string, area int, at time.Time) (model.ReconciledState, error) {
	barcode := model.NormalizeBarcode(rawBarcode)
	state := e.rec.ApplyRemoval(barcode, at)
	e.registry.Assign(barcode, model.Destination(area))
	if err := e.store.Append(ctx, audit.Record{
		ID:        uuid.NewString(),
		Kind:      audit.KindRemoval,
		Timestamp: at,
		Barcode:   barcode,
		Area:      area,
		Position:  model.AreaPosition(area),
		Event:     "Removed",
	}); err != nil {
		return state, fmt.Errorf("append removal record: %w", err)
	}
	e.publish(events.RemovalEvent{Barcode: barcode, Area: area, Time: at})
	return state, nil
}

// recordAnomaly audits a recovered protocol violation. Audit failures here
// are logged and swallowed: anomalies must not halt dispatch throughput.
func (e *Engine) recordAnomaly(ctx context.Context, kind metrics.AnomalyKind, sorterID int, barcode, detail string) {
	if err := e.sink.RecordAnomaly(kind); err != nil {
		e.log.Warnf("record anomaly: %v", err)
	}
	if err := e.store.Append(ctx, audit.Record{
		ID:        uuid.NewString(),
		Kind:      audit.KindAnomaly,
		Timestamp: time.Now(),
		SorterID:  sorterID,
		Barcode:   barcode,
		Event:     string(kind),
		Detail:    detail,
	}); err != nil {
		e.log.Errorf("append anomaly record: %v", err)
	}
}

// Run drives the background timeout sweep until the context is canceled.
// Expired transactions are audited; the sorter has long since taken its own
// fallback action by the time the sweep sees them.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.SweepIntervalSeconds * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			for _, k := range e.corr.Sweep(now) {
				e.publish(events.TimeoutEvent{SorterID: k.SorterID, TransactionID: k.TransactionID, Time: now})
				e.recordAnomaly(ctx, metrics.AnomalyTimeout, k.SorterID, "",
					fmt.Sprintf("transaction %d expired without response", k.TransactionID))
			}
			if err := e.sink.SetOpenTransactions(e.corr.OpenCount()); err != nil {
				e.log.Warnf("record open transactions: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
