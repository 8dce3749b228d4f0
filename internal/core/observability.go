package core

import (
	"context"
	"time"

	"chantiercore/pkg/domain"
)

// Logger is the minimal structured logging surface the service emits to.
// Arguments are alternating key/value pairs in the slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time for audit timestamps and date defaulting.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface. A nil function falls
// back to the system clock in UTC.
type ClockFunc func() time.Time

// Now returns the function's time normalized to UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// MetricsRecorder observes per-operation outcomes and durations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan terminates a started span with the operation outcome.
type TraceSpan interface {
	End(err error)
}

// Tracer creates spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

// AuditStatus reports whether an audited operation committed or failed.
type AuditStatus string

// Audit entry statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures an operation outcome for compliance recording.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives one entry per completed service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// operationMetadata maps service operation names to the entity and action
// recorded in audit entries. Operations absent from the map are not audited.
var operationMetadata = map[string]struct {
	Entity EntityType
	Action Action
}{
	"create_chantier":       {Entity: EntityChantier, Action: ActionCreate},
	"create_floor":          {Entity: EntityFloor, Action: ActionCreate},
	"create_room":           {Entity: EntityRoom, Action: ActionCreate},
	"create_catalog_entry":  {Entity: EntityCatalogEntry, Action: ActionCreate},
	"change_status":         {Entity: EntityIntervention, Action: ActionUpdate},
	"edit_intervention":     {Entity: EntityIntervention, Action: ActionUpdate},
	"create_manual":         {Entity: EntityIntervention, Action: ActionCreate},
	"create_from_catalog":   {Entity: EntityIntervention, Action: ActionCreate},
	"import_rows":           {Entity: EntityIntervention, Action: ActionCreate},
	"append_history_record": {Entity: EntityHistoryRecord, Action: ActionAppend},
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger injects the logger used for operation outcomes.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects the time source used for audit timestamps and effective
// date defaulting.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder injects the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer injects the tracer wrapping each operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder injects the compliance audit sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// RulesEngineProvider is implemented by stores that expose their engine.
type RulesEngineProvider interface {
	RulesEngine() *domain.RulesEngine
}

// NowFuncProvider is implemented by stores that carry their own clock, so
// the service and the store agree on transaction timestamps.
type NowFuncProvider interface {
	NowFunc() func() time.Time
}

func extractRulesEngine(store PersistentStore) *domain.RulesEngine {
	if provider, ok := store.(RulesEngineProvider); ok {
		return provider.RulesEngine()
	}
	return nil
}

func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if provider, ok := store.(NowFuncProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return func() time.Time { return time.Now().UTC() }
}
