// Package server wires the world, the downed-state engine, storage and the
// network layer into one process. It only handles dependency injection and
// lifecycle; no downed-state logic belongs here.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/infra/storage"
	"github.com/gqrshy/tacticalrevive/internal/network"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/platform/optimization"
	"github.com/gqrshy/tacticalrevive/internal/replication"
	"github.com/gqrshy/tacticalrevive/internal/world"
)

const (
	// ioTimeout bounds the document reads and writes done on the tick thread.
	ioTimeout      = 2 * time.Second
	shutdownWait   = 5 * time.Second
	tuningInterval = time.Minute
)

// Options configure a Server. Logger, Metrics and Tuning have defaults.
type Options struct {
	Config  config.Config
	Logger  *logger.Logger
	Metrics *metrics.Collector
	Tuning  *optimization.Config
}

// Server is the composition root of the revive process.
type Server struct {
	cfg     config.Config
	logger  *logger.Logger
	metrics *metrics.Collector
	tuning  *optimization.Config

	db        *sql.DB
	docs      *storage.SQLiteDocumentRepository
	eventRepo *storage.SQLiteEventRepository
	eventLog  *events.EventLog

	world  *world.World
	engine *engine.Engine
	mirror *replication.Mirror
	hub    *network.Hub
	router *network.Router

	spawn     downed.Position
	closeOnce sync.Once
}

var _ network.Lobby = (*Server)(nil)

// New opens storage and builds every component.
func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}
	tuning := opts.Tuning
	if tuning == nil {
		tuning = optimization.DefaultConfig()
	}
	cfg := opts.Config

	db, err := storage.InitSQLite(cfg.Server.DBPath, tuning)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		tuning:    tuning,
		db:        db,
		docs:      storage.NewSQLiteDocumentRepository(db),
		eventRepo: storage.NewSQLiteEventRepository(db),
		mirror:    replication.NewMirror(),
	}
	s.eventLog = events.NewPersistentEventLog(storage.NewEventPersister(s.eventRepo), tuning.EventPersistBuffer, log, m)

	s.hub = network.NewHub(tuning, log, m)
	s.hub.SetCatchup(s.mirror.All)

	s.world = world.New(world.Options{Glow: cfg.Revive.Glow, Logger: log})
	s.engine = engine.New(engine.Options{
		Revive:          cfg.Revive,
		Host:            s.world,
		Render:          s.world,
		Notifier:        s.hub,
		Sinks:           []replication.Sink{s.mirror, s.hub},
		EventLog:        s.eventLog,
		Metrics:         m,
		Logger:          log,
		CommandBuffer:   tuning.CommandQueueBuffer,
		InvariantChecks: cfg.Server.InvariantChecks,
	})
	s.world.SetPipeline(s.engine)
	s.router = network.NewRouter(s.engine, s, log)
	return s, nil
}

// Engine returns the engine. Its tick-thread methods must go through Do.
func (s *Server) Engine() *engine.Engine { return s.engine }

// World returns the host world. Tick thread only.
func (s *Server) World() *world.World { return s.world }

// Mirror returns the observer-side replica.
func (s *Server) Mirror() *replication.Mirror { return s.mirror }

// Step advances the engine, then the world. Tick thread only.
func (s *Server) Step() {
	s.engine.Step()
	s.world.Step()
}

// Join implements network.Lobby. A returning entity is put back online; a
// new one is spawned and its saved record, if any, is adopted.
func (s *Server) Join(id downed.EntityID) {
	if s.world.Has(id) {
		s.world.SetOnline(id, true)
	} else if err := s.world.Spawn(id, s.spawn); err != nil {
		s.logger.Error("Spawn failed", zap.String("entity", id.String()), zap.Error(err))
		return
	}
	// Still downed in memory: the live state is newer than any save.
	if s.engine.IsBleeding(id) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.engine.LoadFrom(ctx, s.docs, id); err != nil {
		s.logger.Warn("Saved record discarded", zap.String("entity", id.String()), zap.Error(err))
	}
}

// Leave implements network.Lobby.
func (s *Server) Leave(id downed.EntityID) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.engine.Save(ctx, s.docs, id); err != nil {
		s.logger.Error("Save on leave failed", zap.String("entity", id.String()), zap.Error(err))
	}
	s.world.SetOnline(id, false)
}

// Move implements network.Lobby.
func (s *Server) Move(id downed.EntityID, pos downed.Position) error {
	return s.world.Move(id, pos)
}

// Respawn implements network.Lobby. Only dead entities come back.
func (s *Server) Respawn(id downed.EntityID) error {
	info, ok := s.world.Info(id)
	if !ok {
		return world.ErrUnknownEntity
	}
	if !info.Dead {
		return nil
	}
	return s.world.Respawn(id, s.spawn)
}

// Autosave writes the record of every spawned entity. Records are captured
// on the tick thread and written from the caller's goroutine.
func (s *Server) Autosave(ctx context.Context) error {
	var batch []engine.SavedRecord
	if err := s.engine.Do(ctx, func() { batch = s.collect() }); err != nil {
		return err
	}
	return s.write(ctx, batch)
}

func (s *Server) collect() []engine.SavedRecord {
	ids := s.world.Entities()
	batch := make([]engine.SavedRecord, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, engine.SavedRecord{ID: id, Record: s.engine.Record(id)})
	}
	return batch
}

func (s *Server) write(ctx context.Context, batch []engine.SavedRecord) error {
	var errs []error
	for _, saved := range batch {
		if err := persistence.Save(ctx, s.docs, saved.ID, saved.Record); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Debug("Autosave complete", zap.Int("entities", len(batch)))
	return nil
}

// Handler returns the HTTP surface: websocket, history, status and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", network.ServeWs(s.hub, s.router))
	mux.Handle("/api/downed", network.NewStatusHandler(s.mirror))
	network.NewHistoryHandler(s.eventLog, storage.NewReconstructor(s.eventRepo), s.logger).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", s.metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", s.metrics.PrometheusHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": s.hub.ClientCount(),
			"downed":  s.mirror.Len(),
		})
	})
	return mux
}

// Run serves until ctx is done, then stops the tick loop, saves every
// entity and closes storage.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	ticker := engine.NewTicker(s.cfg.Server.TickInterval, s.Step, s.logger)
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		ticker.Start(ctx)
	}()

	go s.autosaveLoop(ctx)
	go s.tuningLoop(ctx)

	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler()}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API & WS server listening", zap.String("addr", s.cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server: listen: %w", err)
		}
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	ticker.Stop()
	<-tickDone
	// The tick loop is gone; this goroutine now owns the engine.
	if err := s.write(shutdownCtx, s.collect()); err != nil {
		s.logger.Error("Final save failed", zap.Error(err))
	}
	if err := s.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) autosaveLoop(ctx context.Context) {
	if s.cfg.Server.AutosaveInterval <= 0 {
		return
	}
	t := time.NewTicker(s.cfg.Server.AutosaveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Autosave(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Autosave failed", zap.Error(err))
			}
		}
	}
}

// tuningLoop logs buffer recommendations derived from the live metrics.
func (s *Server) tuningLoop(ctx context.Context) {
	budget := float64(s.cfg.Server.TickInterval) / float64(time.Millisecond)
	t := time.NewTicker(tuningInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rec := optimization.Analyze(s.metrics.Snapshot(), budget)
			for _, note := range rec.Notes {
				s.logger.Warn("Tuning recommendation", zap.String("note", note))
			}
		}
	}
}

// Close flushes the event log and closes the database. Safe to call twice.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.eventLog.Close()
		err = s.db.Close()
	})
	return err
}
