package carts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prtline/sortation/core/audit"
	"github.com/prtline/sortation/core/dispatch"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/reconcile"
	"github.com/prtline/sortation/core/registry"
	"github.com/prtline/sortation/core/status"
	"github.com/prtline/sortation/infra/logger"
)

func newMonitor(t *testing.T) (*status.Monitor, *registry.Registry, *reconcile.Reconciler) {
	t.Helper()
	reg := registry.New()
	rec := reconcile.New()
	return status.NewMonitor(rec, reg, status.NewProjector()), reg, rec
}

func TestStatusHandler_List(t *testing.T) {
	mon, reg, rec := newMonitor(t)
	reg.Assign("0001", 2)
	if _, err := rec.ApplyReport("0001", model.ReportFlags{Active: true, Good: true}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	h := NewStatusHandler(mon, "")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/carts/status", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []status.CartView
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Barcode != "0001" || out[0].Status != "Active" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestStatusHandler_SingleBarcode(t *testing.T) {
	mon, _, _ := newMonitor(t)
	h := NewStatusHandler(mon, "")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/carts/status?barcode=0042", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out struct {
		Barcode string `json:"barcode"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Barcode != "0042" || out.Status != "Inactive" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestStatusHandler_Auth(t *testing.T) {
	mon, _, _ := newMonitor(t)
	h := NewStatusHandler(mon, "secret")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/carts/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/carts/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("with token: status %d", rr.Code)
	}
}

func TestAssignHandler(t *testing.T) {
	_, reg, _ := newMonitor(t)
	h := NewAssignHandler(reg, nil, "")

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"barcode":"7","destination":3}`)
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/carts/assign", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	dest, err := reg.Resolve("0007")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dest != 3 {
		t.Fatalf("destination %d", dest)
	}
}

func TestAssignHandler_Rejects(t *testing.T) {
	_, reg, _ := newMonitor(t)
	h := NewAssignHandler(reg, nil, "")

	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"bad barcode", `{"barcode":"xx","destination":1}`, http.StatusBadRequest},
		{"negative destination", `{"barcode":"0001","destination":-1}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/carts/assign", strings.NewReader(c.body)))
		if rr.Code != c.code {
			t.Errorf("%s: status %d, want %d", c.name, rr.Code, c.code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/carts/assign", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status %d", rr.Code)
	}
}

func TestRemoveHandler(t *testing.T) {
	reg := registry.New()
	rec := reconcile.New()
	reg.Assign("0010", 2)
	eng, err := dispatch.NewEngine(dispatch.Config{}, reg, rec, nil, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	h := NewRemoveHandler(eng, nil, "")

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"barcode":"0010","area":6}`)
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/carts/remove", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if rec.State("0010") != model.StateRemoved {
		t.Fatalf("state %v", rec.State("0010"))
	}
	dest, err := reg.Resolve("0010")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dest != 6 {
		t.Fatalf("assignment %d, want removal area", dest)
	}
}

func TestLogHandler(t *testing.T) {
	store := &memLogStore{}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.recs = []audit.Record{
		{ID: "1", Kind: audit.KindRequest, Timestamp: base, Barcode: "0001"},
		{ID: "2", Kind: audit.KindReport, Timestamp: base.Add(time.Hour), Barcode: "0002"},
	}
	h := NewLogHandler(store, "")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/carts/logs?kind=report&start=2026-03-01T10:30:00Z", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []audit.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "2" {
		t.Fatalf("unexpected output %#v", out)
	}
	if !store.query.Start.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("start filter not parsed: %v", store.query.Start)
	}
}

type memLogStore struct {
	recs  []audit.Record
	query audit.Query
}

func (s *memLogStore) Append(_ context.Context, rec audit.Record) error {
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memLogStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.query = q
	var res []audit.Record
	for _, r := range s.recs {
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

func (s *memLogStore) Close() error { return nil }
