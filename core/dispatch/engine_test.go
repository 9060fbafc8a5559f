package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prtline/sortation/core/audit"
	"github.com/prtline/sortation/core/correlator"
	"github.com/prtline/sortation/core/events"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/reconcile"
	"github.com/prtline/sortation/core/registry"
	"github.com/prtline/sortation/infra/logger"
	"github.com/prtline/sortation/internal/eventbus"
)

type memStore struct {
	mu   sync.Mutex
	recs []audit.Record
	fail bool
}

func (s *memStore) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []audit.Record
	for _, r := range s.recs {
		if q.Kind == "" || r.Kind == q.Kind {
			res = append(res, r)
		}
	}
	return res, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) kinds() map[audit.Kind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[audit.Kind]int)
	for _, r := range s.recs {
		counts[r.Kind]++
	}
	return counts
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memStore, *eventbus.Bus) {
	t.Helper()
	reg := registry.New()
	store := &memStore{}
	bus := eventbus.New()
	eng, err := NewEngine(cfg, reg, reconcile.New(), store, bus, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, store, bus
}

func TestHandleRequestAssigned(t *testing.T) {
	eng, store, _ := newTestEngine(t, Config{})
	eng.Registry().Assign("0008", 1)

	resp, err := eng.HandleRequest(context.Background(), 1, 42, "8\r00", time.Now())
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp.Barcode != "0008" {
		t.Errorf("barcode = %q, want normalized 0008", resp.Barcode)
	}
	if resp.Destination != 1 {
		t.Errorf("destination = %d", resp.Destination)
	}
	if resp.Gate != 3 {
		t.Errorf("gate = %d, want 3 for destination 1 at sorter 1", resp.Gate)
	}
	if resp.Fallback {
		t.Error("assigned cart answered as fallback")
	}
	counts := store.kinds()
	if counts[audit.KindRequest] != 1 || counts[audit.KindResponse] != 1 {
		t.Errorf("audit records = %v", counts)
	}
	if eng.OpenTransactions() != 0 {
		t.Errorf("transaction left open after answer")
	}
}

func TestHandleRequestGatePerSorter(t *testing.T) {
	eng, _, _ := newTestEngine(t, Config{})
	eng.Registry().Assign("0001", 2)

	r1, err := eng.HandleRequest(context.Background(), 1, 1, "0001", time.Now())
	if err != nil {
		t.Fatalf("sorter 1: %v", err)
	}
	r2, err := eng.HandleRequest(context.Background(), 2, 1, "0001", time.Now())
	if err != nil {
		t.Fatalf("sorter 2: %v", err)
	}
	if r1.Gate != 2 || r2.Gate != 1 {
		t.Errorf("gates = %d/%d, want 2 at sorter 1 and 1 at sorter 2 for destination 2", r1.Gate, r2.Gate)
	}
}

func TestHandleRequestUnknownCartFallback(t *testing.T) {
	eng, store, _ := newTestEngine(t, Config{FallbackDestination: 4})

	resp, err := eng.HandleRequest(context.Background(), 1, 7, "0099", time.Now())
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if !resp.Fallback {
		t.Error("unknown cart not flagged as fallback")
	}
	if resp.Destination != 4 {
		t.Errorf("destination = %d, want configured fallback 4", resp.Destination)
	}
	if store.kinds()[audit.KindAnomaly] != 1 {
		t.Error("unknown cart anomaly not audited")
	}
}

func TestHandleRequestUnreadableBarcode(t *testing.T) {
	eng, _, _ := newTestEngine(t, Config{})

	resp, err := eng.HandleRequest(context.Background(), 2, 3, "no-read", time.Now())
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if !resp.Fallback {
		t.Error("unreadable barcode not flagged as fallback")
	}
	if resp.Destination != model.DestStraightThrough {
		t.Errorf("destination = %d, want straight-through default", resp.Destination)
	}
	if resp.Gate != model.DestStraightThrough {
		t.Errorf("gate = %d, want straight-through", resp.Gate)
	}
}

func TestHandleRequestDuplicateTransaction(t *testing.T) {
	eng, store, bus := newTestEngine(t, Config{TimeoutSeconds: 60})
	eng.Registry().Assign("0001", 1)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	// A transaction is deleted once answered, so a replay of the same
	// transaction only collides while the first is still pending. Seed an
	// unanswered open directly.
	now := time.Now()
	if err := eng.corr.Open(1, 5, now); err != nil {
		t.Fatalf("seed open: %v", err)
	}
	_, err := eng.HandleRequest(context.Background(), 1, 5, "0001", now)
	if !errors.Is(err, correlator.ErrDuplicateTransaction) {
		t.Fatalf("err = %v, want ErrDuplicateTransaction", err)
	}
	if !sawEvent(sub, func(ev eventbus.Event) bool {
		_, ok := ev.(events.DuplicateEvent)
		return ok
	}) {
		t.Error("DuplicateEvent not published")
	}
	if store.kinds()[audit.KindAnomaly] != 1 {
		t.Error("duplicate anomaly not audited")
	}
}

func TestHandleRequestReintroducesRemovedCart(t *testing.T) {
	eng, _, _ := newTestEngine(t, Config{})
	eng.Registry().Assign("0003", 2)

	if _, err := eng.HandleRemoval(context.Background(), "0003", 5, time.Now()); err != nil {
		t.Fatalf("HandleRemoval: %v", err)
	}
	if got := eng.Reconciler().State("0003"); got != model.StateRemoved {
		t.Fatalf("state after removal = %v", got)
	}

	if _, err := eng.HandleRequest(context.Background(), 1, 9, "0003", time.Now()); err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if got := eng.Reconciler().State("0003"); got != model.StateUnknown {
		t.Errorf("state after reintroduction = %v, want unknown", got)
	}
}

func TestHandleRequestAuditFailure(t *testing.T) {
	eng, store, _ := newTestEngine(t, Config{})
	store.fail = true

	_, err := eng.HandleRequest(context.Background(), 1, 1, "0001", time.Now())
	if err == nil {
		t.Fatal("expected error when audit store is unavailable")
	}
}

func TestHandleReport(t *testing.T) {
	eng, store, bus := newTestEngine(t, Config{})
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	now := time.Now()
	state, err := eng.HandleReport(context.Background(), 1, "0042", model.ReportFlags{Active: true, Good: true}, now)
	if err != nil {
		t.Fatalf("HandleReport: %v", err)
	}
	if state != model.StateGood {
		t.Errorf("state = %v", state)
	}
	recs, _ := store.Query(context.Background(), audit.Query{Kind: audit.KindReport})
	if len(recs) != 1 {
		t.Fatalf("report records = %d", len(recs))
	}
	if recs[0].Event != "Active" {
		t.Errorf("event = %q", recs[0].Event)
	}
	if !sawEvent(sub, func(ev eventbus.Event) bool {
		re, ok := ev.(events.ReportEvent)
		return ok && re.State == model.StateGood
	}) {
		t.Error("ReportEvent not published")
	}

	// Older report is discarded as stale.
	_, err = eng.HandleReport(context.Background(), 1, "0042", model.ReportFlags{Lost: true}, now.Add(-time.Second))
	if !errors.Is(err, reconcile.ErrStaleReport) {
		t.Fatalf("err = %v, want ErrStaleReport", err)
	}
	if eng.Reconciler().State("0042") != model.StateGood {
		t.Error("stale report mutated state")
	}
	if store.kinds()[audit.KindAnomaly] != 1 {
		t.Error("stale report anomaly not audited")
	}
}

func TestHandleReportEmptyBarcode(t *testing.T) {
	eng, store, _ := newTestEngine(t, Config{})
	state, err := eng.HandleReport(context.Background(), 1, "\x00", model.ReportFlags{Lost: true}, time.Now())
	if err != nil {
		t.Fatalf("HandleReport: %v", err)
	}
	if state != model.StateUnknown {
		t.Errorf("state = %v", state)
	}
	if len(store.kinds()) != 0 {
		t.Error("empty barcode produced audit records")
	}
}

func TestHandleRemoval(t *testing.T) {
	eng, store, _ := newTestEngine(t, Config{})
	eng.Registry().Assign("0010", 2)

	state, err := eng.HandleRemoval(context.Background(), "0010", 6, time.Now())
	if err != nil {
		t.Fatalf("HandleRemoval: %v", err)
	}
	if state != model.StateRemoved {
		t.Errorf("state = %v", state)
	}
	dest, err := eng.Registry().Resolve("0010")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dest != 6 {
		t.Errorf("assignment = %d, want removal area 6", dest)
	}
	recs, _ := store.Query(context.Background(), audit.Query{Kind: audit.KindRemoval})
	if len(recs) != 1 || recs[0].Position != "Area_6" {
		t.Errorf("removal record: %+v", recs)
	}

	// Reports after removal are absorbed without changing state.
	if _, err := eng.HandleReport(context.Background(), 1, "0010", model.ReportFlags{Active: true, Good: true}, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("report after removal: %v", err)
	}
	if eng.Reconciler().State("0010") != model.StateRemoved {
		t.Error("report overrode removal latch")
	}
}

func TestRunSweepPublishesTimeouts(t *testing.T) {
	eng, store, bus := newTestEngine(t, Config{TimeoutSeconds: 0.01, SweepIntervalSeconds: 0.02})
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	if err := eng.corr.Open(1, 99, time.Now()); err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	var got bool
	for !got {
		select {
		case ev := <-sub:
			if te, ok := ev.(events.TimeoutEvent); ok {
				if te.SorterID != 1 || te.TransactionID != 99 {
					t.Errorf("timeout event: %+v", te)
				}
				got = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for TimeoutEvent")
		}
	}
	cancel()
	<-done

	if store.kinds()[audit.KindAnomaly] == 0 {
		t.Error("timeout anomaly not audited")
	}
}

func TestNewEngineNilGuards(t *testing.T) {
	if _, err := NewEngine(Config{}, nil, reconcile.New(), nil, nil, nil, logger.NopLogger{}); err == nil {
		t.Error("nil registry accepted")
	}
	if _, err := NewEngine(Config{}, registry.New(), nil, nil, nil, nil, logger.NopLogger{}); err == nil {
		t.Error("nil reconciler accepted")
	}
	if _, err := NewEngine(Config{}, registry.New(), reconcile.New(), nil, nil, nil, nil); err == nil {
		t.Error("nil logger accepted")
	}
}

func sawEvent(sub <-chan eventbus.Event, match func(eventbus.Event) bool) bool {
	for {
		select {
		case ev := <-sub:
			if match(ev) {
				return true
			}
		default:
			return false
		}
	}
}
