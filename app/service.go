// Package app wires the engine, transport, stores and operator surfaces
// from the configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prtline/sortation/api/carts"
	"github.com/prtline/sortation/config"
	"github.com/prtline/sortation/core/audit"
	"github.com/prtline/sortation/core/dispatch"
	"github.com/prtline/sortation/core/events"
	coremetrics "github.com/prtline/sortation/core/metrics"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/reconcile"
	"github.com/prtline/sortation/core/registry"
	"github.com/prtline/sortation/core/status"
	"github.com/prtline/sortation/infra/logger"
	"github.com/prtline/sortation/infra/metrics"
	"github.com/prtline/sortation/infra/mqtt"
	"github.com/prtline/sortation/infra/store"
	"github.com/prtline/sortation/internal/eventbus"
)

// Service orchestrates the sortation engine and its collaborators.
type Service struct {
	Engine   *dispatch.Engine
	Monitor  *status.Monitor
	listener *mqtt.Listener
	repo     registry.Repository
	auditor  audit.Store
	bus      eventbus.EventBus
	log      logger.Logger
	cfg      *config.Config
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	auditor, err := newAuditStore(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	reg := registry.New()
	var repo registry.Repository
	if cfg.Store.Backend == "postgres" {
		pg, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("registry store: %w", err)
		}
		repo = pg
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		assignments, err := pg.LoadAssignments(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("load assignments: %w", err)
		}
		reg.Load(assignments)
	} else {
		reg.Load(cfg.Assignments)
	}

	bus := eventbus.New()
	rec := reconcile.New()
	engine, err := dispatch.NewEngine(cfg.Dispatch, reg, rec, auditor, bus, sink, logger.New("engine"))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	listener, err := mqtt.NewListener(cfg.MQTT, engine)
	if err != nil {
		return nil, fmt.Errorf("mqtt listener: %w", err)
	}

	projector := status.NewProjector(cfg.Display.States()...)
	mon := status.NewMonitor(rec, reg, projector)

	return &Service{
		Engine:   engine,
		Monitor:  mon,
		listener: listener,
		repo:     repo,
		auditor:  auditor,
		bus:      bus,
		log:      logg,
		cfg:      cfg,
	}, nil
}

func newAuditStore(cfg config.AuditConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Path)
	case "jsonl":
		return audit.NewJSONLStore(cfg.Path)
	default:
		return audit.NopStore{}, nil
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Engine.Run(ctx)
	go s.listener.RunHeartbeat(ctx)
	go s.consumeEvents(ctx)
	if s.repo != nil {
		go s.pollStore(ctx)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Enabled {
		go func() {
			if err := s.serveAPI(ctx); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

func (s *Service) serveAPI(ctx context.Context) error {
	mux := http.NewServeMux()
	token := s.cfg.API.Token
	mux.Handle("/api/carts/status", carts.NewStatusHandler(s.Monitor, token))
	mux.Handle("/api/carts/assign", carts.NewAssignHandler(s.Engine.Registry(), s.repo, token))
	mux.Handle("/api/carts/remove", carts.NewRemoveHandler(s.Engine, s.repo, token))
	mux.Handle("/api/carts/logs", carts.NewLogHandler(s.auditor, token))
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// pollStore picks up operator writes from the database: refreshed
// assignments and queued removal commands.
func (s *Service) pollStore(ctx context.Context) {
	interval := time.Duration(s.cfg.Store.PollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if assignments, err := s.repo.LoadAssignments(opCtx); err != nil {
		s.log.Warnf("refresh assignments: %v", err)
	} else {
		s.Engine.Registry().Load(assignments)
	}
	removals, err := s.repo.PendingRemovals(opCtx)
	if err != nil {
		s.log.Warnf("pending removals: %v", err)
		return
	}
	for _, rm := range removals {
		if _, err := s.Engine.HandleRemoval(opCtx, rm.Barcode, rm.Area, time.Now()); err != nil {
			s.log.Errorf("removal %s: %v", rm.Barcode, err)
			continue
		}
		if err := s.repo.SaveAssignment(opCtx, rm.Barcode, model.Destination(rm.Area)); err != nil {
			s.log.Errorf("persist removal assignment %s: %v", rm.Barcode, err)
		}
		if err := s.repo.DeleteRemoval(opCtx, rm.ID); err != nil {
			s.log.Errorf("delete removal command %d: %v", rm.ID, err)
		}
	}
}

// consumeEvents structures the bus traffic into logs.
func (s *Service) consumeEvents(ctx context.Context) {
	sub := s.bus.Subscribe()
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.logEvent(ev)
		case <-ctx.Done():
			s.bus.Unsubscribe(sub)
			return
		}
	}
}

func (s *Service) logEvent(ev eventbus.Event) {
	switch e := ev.(type) {
	case events.ResponseEvent:
		s.log.Debugw("response", map[string]any{
			"sorter": e.SorterID, "txn": e.TransactionID, "barcode": e.Barcode,
			"destination": int(e.Destination), "gate": int(e.Gate), "fallback": e.Fallback,
		})
	case events.DuplicateEvent:
		s.log.Warnf("duplicate transaction sorter=%d txn=%d barcode=%s", e.SorterID, e.TransactionID, e.Barcode)
	case events.LateResponseEvent:
		s.log.Warnf("late response sorter=%d txn=%d barcode=%s", e.SorterID, e.TransactionID, e.Barcode)
	case events.TimeoutEvent:
		s.log.Warnf("transaction timeout sorter=%d txn=%d", e.SorterID, e.TransactionID)
	case events.StaleReportEvent:
		s.log.Warnf("stale report sorter=%d barcode=%s", e.SorterID, e.Barcode)
	case events.ReportEvent:
		s.log.Debugw("report", map[string]any{
			"sorter": e.SorterID, "barcode": e.Barcode, "state": e.State.String(),
		})
	case events.RemovalEvent:
		s.log.Infof("cart %s removed to area %d", e.Barcode, e.Area)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.listener.Disconnect()
	s.bus.Close()
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}
	return s.auditor.Close()
}
