// Package core implements the lifecycle engine: status transitions, audit
// history, catalog-driven bulk creation, and spreadsheet-row import over a
// pluggable persistent store.
package core

import (
	"context"
	"time"

	"chantiercore/internal/infra/persistence/memory"
)

// Service exposes the transactional lifecycle operations over the configured
// store, instrumented with logging, metrics, tracing, and audit recording.
type Service struct {
	store    PersistentStore
	engine   *RulesEngine
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	archiver ImportArchiver
	nowFn    func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nowFn = selectNowFunc(store, s.clock)
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps a transactional operation with tracing, timing, logging, metrics,
// and audit recording. entityID is resolved after fn returns so freshly
// created identifiers are captured.
func (s *Service) run(ctx context.Context, operation string, fn func(tx Transaction) error, entityID func() string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, operation)
	started := s.nowFn()

	res, err := s.store.RunInTransaction(ctx, fn)

	duration := s.nowFn().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)

	id := ""
	if entityID != nil {
		id = entityID()
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "entity_id", id, "error", err)
		s.recordAuditFailure(ctx, operation, id, err, duration)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", operation, "entity_id", id, "duration_ms", float64(duration)/float64(time.Millisecond))
	s.recordAuditSuccess(ctx, operation, id, duration)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	meta, ok := operationMetadata[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.nowFn(),
	})
}

func (s *Service) recordAuditFailure(ctx context.Context, operation, entityID string, err error, duration time.Duration) {
	meta, ok := operationMetadata[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Duration:  duration,
		Timestamp: s.nowFn(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// CreateChantier persists a new chantier.
func (s *Service) CreateChantier(ctx context.Context, chantier Chantier) (Chantier, Result, error) {
	var created Chantier
	res, err := s.run(ctx, "create_chantier", func(tx Transaction) error {
		var err error
		created, err = tx.CreateChantier(chantier)
		return err
	}, func() string { return created.ID })
	return created, res, err
}

// CreateFloor persists a new floor under an existing chantier.
func (s *Service) CreateFloor(ctx context.Context, floor Floor) (Floor, Result, error) {
	var created Floor
	res, err := s.run(ctx, "create_floor", func(tx Transaction) error {
		var err error
		created, err = tx.CreateFloor(floor)
		return err
	}, func() string { return created.ID })
	return created, res, err
}

// CreateRoom persists a new room under an existing floor.
func (s *Service) CreateRoom(ctx context.Context, room Room) (Room, Result, error) {
	var created Room
	res, err := s.run(ctx, "create_room", func(tx Transaction) error {
		var err error
		created, err = tx.CreateRoom(room)
		return err
	}, func() string { return created.ID })
	return created, res, err
}

// CreateCatalogEntry persists a reusable lot/task template.
func (s *Service) CreateCatalogEntry(ctx context.Context, entry CatalogEntry) (CatalogEntry, Result, error) {
	var created CatalogEntry
	res, err := s.run(ctx, "create_catalog_entry", func(tx Transaction) error {
		var err error
		created, err = tx.CreateCatalogEntry(entry)
		return err
	}, func() string { return created.ID })
	return created, res, err
}

// ListChantiers returns all chantiers, newest first.
func (s *Service) ListChantiers(ctx context.Context) ([]Chantier, error) {
	var out []Chantier
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.ListChantiers()
		return nil
	})
	return out, err
}

// ListInterventions returns interventions matching the filter.
func (s *Service) ListInterventions(ctx context.Context, filter InterventionFilter) ([]Intervention, error) {
	var out []Intervention
	err := s.store.View(ctx, func(view TransactionView) error {
		out = view.ListInterventions(filter)
		return nil
	})
	return out, err
}

// GetIntervention returns one intervention by id.
func (s *Service) GetIntervention(ctx context.Context, id string) (Intervention, error) {
	var out Intervention
	err := s.store.View(ctx, func(view TransactionView) error {
		iv, ok := view.FindIntervention(id)
		if !ok {
			return NotFoundError{Entity: EntityIntervention, ID: id}
		}
		out = iv
		return nil
	})
	return out, err
}

// ListHistory returns the ledger entries for an intervention, oldest first.
func (s *Service) ListHistory(ctx context.Context, interventionID string) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindIntervention(interventionID); !ok {
			return NotFoundError{Entity: EntityIntervention, ID: interventionID}
		}
		out = view.ListHistory(interventionID)
		return nil
	})
	return out, err
}
