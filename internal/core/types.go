package core

import "chantiercore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Status             = domain.Status
	EventType          = domain.EventType
	Role               = domain.Role
	Severity           = domain.Severity
	Base               = domain.Base
	Chantier           = domain.Chantier
	Floor              = domain.Floor
	Room               = domain.Room
	CatalogEntry       = domain.CatalogEntry
	Intervention       = domain.Intervention
	HistoryRecord      = domain.HistoryRecord
	Actor              = domain.Actor
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	PersistentStore    = domain.PersistentStore
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	InterventionFilter = domain.InterventionFilter
	NotFoundError      = domain.NotFoundError
	ValidationError    = domain.ValidationError
	InvalidStatusError = domain.InvalidStatusError
	InvalidScopeError  = domain.InvalidScopeError
	StoreError         = domain.StoreError
)

const (
	EntityChantier      = domain.EntityChantier
	EntityFloor         = domain.EntityFloor
	EntityRoom          = domain.EntityRoom
	EntityCatalogEntry  = domain.EntityCatalogEntry
	EntityIntervention  = domain.EntityIntervention
	EntityHistoryRecord = domain.EntityHistoryRecord
)

const (
	StatusTodo       = domain.StatusTodo
	StatusInProgress = domain.StatusInProgress
	StatusDone       = domain.StatusDone
)

const (
	EventStatusChange = domain.EventStatusChange
	EventEdit         = domain.EventEdit
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionAppend = domain.ActionAppend
)

// NewRulesEngine re-exports the domain constructor for callers wiring the
// service without importing pkg/domain directly.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds an engine with the built-in lifecycle rules
// registered.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewStatusIntegrityRule())
	return engine
}
