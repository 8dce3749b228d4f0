// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by chantiercore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityChantier identifies a construction site record.
	EntityChantier EntityType = "chantier"
	// EntityFloor identifies a floor record.
	EntityFloor EntityType = "floor"
	// EntityRoom identifies a room record.
	EntityRoom EntityType = "room"
	// EntityCatalogEntry identifies a reusable lot/task template record.
	EntityCatalogEntry EntityType = "catalog_entry"
	// EntityIntervention identifies a tracked task instance record.
	EntityIntervention EntityType = "intervention"
	// EntityHistoryRecord identifies an audit ledger record.
	EntityHistoryRecord EntityType = "history_record"
)

// Status represents the fixed intervention lifecycle states.
type Status string

// Canonical intervention statuses. The set is fixed: any other value is
// rejected before mutation and blocked by the rules engine as a backstop.
const (
	// StatusTodo is the initial state of every intervention.
	StatusTodo Status = "a faire"
	// StatusInProgress marks work that has started.
	StatusInProgress Status = "en cours"
	StatusDone       Status = "terminé"
)

// Valid reports whether the status belongs to the fixed lifecycle set.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// EventType classifies history ledger entries.
type EventType string

// Ledger event types.
const (
	// EventStatusChange records a lifecycle transition.
	EventStatusChange EventType = "status_change"
	// EventEdit records a field correction that left the status untouched.
	EventEdit EventType = "edit"
)

// Role describes the privilege level supplied by the identity provider.
type Role string

// Known actor roles. Anything that is not admin is treated as member.
const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	// SeverityLog records an informational outcome.
	SeverityLog Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chantier represents a construction/renovation site, the root scope for
// floors, rooms, interventions, and the site-level catalog.
type Chantier struct {
	Base
	Name string `json:"name"`
	Nom  string `json:"nom"`
}

// DisplayName prefers the nom column over name when non-empty, matching the
// historical display rule.
func (c Chantier) DisplayName() string {
	if strings.TrimSpace(c.Nom) != "" {
		return c.Nom
	}
	return c.Name
}

// Floor belongs to exactly one chantier.
type Floor struct {
	Base
	Name       string `json:"name"`
	ChantierID string `json:"chantier_id"`
}

// Room belongs to exactly one floor, transitively one chantier.
type Room struct {
	Base
	Name    string `json:"name"`
	FloorID string `json:"floor_id"`
}

// CatalogEntry is a reusable (lot, task) template. ChantierID is empty for
// global entries; scoped entries are unique per (chantier, lot, task).
type CatalogEntry struct {
	Base
	ChantierID string `json:"chantier_id"`
	Lot        string `json:"lot"`
	Task       string `json:"task"`
}

// Intervention is the central tracked task instance.
//
// FloorID and RoomID are weak references; OldFloorName and OldRoomName are
// snapshots frozen at creation time so historical display survives renames
// and removals. Action is the append-only newline-joined human-readable log,
// most recent line last.
type Intervention struct {
	Base
	FloorID      string `json:"floor_id"`
	RoomID       string `json:"room_id"`
	OldFloorName string `json:"old_floor_name"`
	OldRoomName  string `json:"old_room_name"`
	Lot          string `json:"lot"`
	Task         string `json:"task"`
	Status       Status `json:"status"`
	Person       string `json:"person"`
	Action       string `json:"action"`
	UserID       string `json:"user_id"`
}

// AppendAction adds one line to the action log, or starts the log when it is
// empty. The log is never truncated or edited in place.
func (i *Intervention) AppendAction(line string) {
	if line == "" {
		return
	}
	if i.Action == "" {
		i.Action = line
		return
	}
	i.Action = i.Action + "\n" + line
}

// HistoryRecord is an immutable audit entry owned by its intervention.
// Records are inserted exactly once per lifecycle mutation and never updated,
// deleted, or reassigned. They carry no foreign-key cascade so they survive
// even if the intervention itself disappears.
type HistoryRecord struct {
	ID             string    `json:"id"`
	InterventionID string    `json:"intervention_id"`
	EventType      EventType `json:"event_type"`
	OldStatus      Status    `json:"old_status"`
	NewStatus      Status    `json:"new_status"`
	Persons        string    `json:"persons"`
	EventDate      string    `json:"event_date"`
	ActorEmail     string    `json:"actor_email"`
	ActorName      string    `json:"actor_name"`
	Note           string    `json:"note"`
	CreatedAt      time.Time `json:"created_at"`
}

// Actor is the acting identity resolved by the identity provider for each
// request. The core trusts this input as-is.
type Actor struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// DisplayName joins first and last name, falling back to the email when both
// are blank.
func (a Actor) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
	if name == "" {
		return a.Email
	}
	return name
}

// IsAdmin reports whether the actor holds the administrator role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionAppend indicates an immutable record was appended.
	ActionAppend Action = "append"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
