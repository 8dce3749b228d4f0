package domain

import "context"

// TransactionView provides read-only access to snapshot data for the
// lifecycle engine, rules, and read endpoints.
type TransactionView interface {
	ListChantiers() []Chantier
	ListInterventions(InterventionFilter) []Intervention
	ListHistory(interventionID string) []HistoryRecord
	FindChantier(id string) (Chantier, bool)
	FindFloor(id string) (Floor, bool)
	FindRoom(id string) (Room, bool)
	FindIntervention(id string) (Intervention, bool)
	FindFloorByName(chantierID, name string) (Floor, bool)
	FindRoomByName(floorID, name string) (Room, bool)
	ListRoomsByFloor(floorID string) []Room
	ListCatalogTasks(chantierID, lot string) []string
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
//
// UpdateIntervention is the locked read-modify-write: implementations hold an
// exclusive lock on the targeted row for the remainder of the transaction and
// return NotFoundError when the row is absent under lock. AppendHistory is
// insert-only; no update or delete surface exists for ledger records.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	CreateChantier(Chantier) (Chantier, error)
	CreateFloor(Floor) (Floor, error)
	CreateRoom(Room) (Room, error)
	CreateCatalogEntry(CatalogEntry) (CatalogEntry, error)
	CreateIntervention(Intervention) (Intervention, error)
	UpdateIntervention(id string, mutator func(*Intervention) error) (Intervention, error)
	AppendHistory(HistoryRecord) (HistoryRecord, error)
}

// PersistentStore is a minimal abstraction over durable backends. Every
// multi-step mutation runs inside RunInTransaction; a failure mid-transaction
// rolls all affected rows back to their pre-call values.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
