// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"chantiercore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
)

type (
	// Chantier aliases domain.Chantier for in-memory persistence operations.
	Chantier = domain.Chantier
	// Floor aliases domain.Floor.
	Floor = domain.Floor
	// Room aliases domain.Room.
	Room = domain.Room
	// CatalogEntry aliases domain.CatalogEntry.
	CatalogEntry = domain.CatalogEntry
	// Intervention aliases domain.Intervention.
	Intervention = domain.Intervention
	// HistoryRecord aliases domain.HistoryRecord.
	HistoryRecord = domain.HistoryRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	chantiers     map[string]Chantier
	floors        map[string]Floor
	rooms         map[string]Room
	catalog       map[string]CatalogEntry
	interventions map[string]Intervention
	history       map[string][]HistoryRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Chantiers     map[string]Chantier        `json:"chantiers"`
	Floors        map[string]Floor           `json:"floors"`
	Rooms         map[string]Room            `json:"rooms"`
	Catalog       map[string]CatalogEntry    `json:"catalog"`
	Interventions map[string]Intervention    `json:"interventions"`
	History       map[string][]HistoryRecord `json:"history"`
}

func newMemoryState() memoryState {
	return memoryState{
		chantiers:     make(map[string]Chantier),
		floors:        make(map[string]Floor),
		rooms:         make(map[string]Room),
		catalog:       make(map[string]CatalogEntry),
		interventions: make(map[string]Intervention),
		history:       make(map[string][]HistoryRecord),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.chantiers {
		out.chantiers[k] = v
	}
	for k, v := range s.floors {
		out.floors[k] = v
	}
	for k, v := range s.rooms {
		out.rooms[k] = v
	}
	for k, v := range s.catalog {
		out.catalog[k] = v
	}
	for k, v := range s.interventions {
		out.interventions[k] = v
	}
	for k, v := range s.history {
		records := make([]HistoryRecord, len(v))
		copy(records, v)
		out.history[k] = records
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Chantiers:     c.chantiers,
		Floors:        c.floors,
		Rooms:         c.rooms,
		Catalog:       c.catalog,
		Interventions: c.interventions,
		History:       c.history,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Chantiers {
		state.chantiers[k] = v
	}
	for k, v := range s.Floors {
		state.floors[k] = v
	}
	for k, v := range s.Rooms {
		state.rooms[k] = v
	}
	for k, v := range s.Catalog {
		state.catalog[k] = v
	}
	for k, v := range s.Interventions {
		state.interventions[k] = v
	}
	for k, v := range s.History {
		records := make([]HistoryRecord, len(v))
		copy(records, v)
		state.history[k] = records
	}
	return state
}

// Store keeps all state in process memory and applies transactions against a
// cloned copy, swapping it in on successful commit. The state mutex
// serializes transactions, which subsumes the per-row exclusive lock required
// for concurrent status changes.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc exposes the store's time provider so the service layer can share
// the same clock.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider, for tests that need a fixed clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// ListChantiers exposes chantier listing within the transaction scope.
func (tx *transaction) ListChantiers() []Chantier {
	return tx.Snapshot().ListChantiers()
}

// ListInterventions exposes filtered intervention listing within the
// transaction scope.
func (tx *transaction) ListInterventions(filter domain.InterventionFilter) []Intervention {
	return tx.Snapshot().ListInterventions(filter)
}

// ListHistory exposes ledger listing within the transaction scope.
func (tx *transaction) ListHistory(interventionID string) []HistoryRecord {
	return tx.Snapshot().ListHistory(interventionID)
}

// FindChantier exposes chantier lookup within the transaction scope.
func (tx *transaction) FindChantier(id string) (Chantier, bool) {
	c, ok := tx.state.chantiers[id]
	return c, ok
}

// FindFloor exposes floor lookup within the transaction scope.
func (tx *transaction) FindFloor(id string) (Floor, bool) {
	f, ok := tx.state.floors[id]
	return f, ok
}

// FindRoom exposes room lookup within the transaction scope.
func (tx *transaction) FindRoom(id string) (Room, bool) {
	r, ok := tx.state.rooms[id]
	return r, ok
}

// FindIntervention exposes intervention lookup within the transaction scope.
func (tx *transaction) FindIntervention(id string) (Intervention, bool) {
	iv, ok := tx.state.interventions[id]
	return iv, ok
}

// FindFloorByName exposes name-based floor resolution within the transaction
// scope, as used by spreadsheet imports.
func (tx *transaction) FindFloorByName(chantierID, name string) (Floor, bool) {
	return tx.Snapshot().FindFloorByName(chantierID, name)
}

// FindRoomByName exposes name-based room resolution within the transaction
// scope.
func (tx *transaction) FindRoomByName(floorID, name string) (Room, bool) {
	return tx.Snapshot().FindRoomByName(floorID, name)
}

// ListRoomsByFloor exposes room listing within the transaction scope.
func (tx *transaction) ListRoomsByFloor(floorID string) []Room {
	return tx.Snapshot().ListRoomsByFloor(floorID)
}

// ListCatalogTasks exposes catalog resolution within the transaction scope.
func (tx *transaction) ListCatalogTasks(chantierID, lot string) []string {
	return tx.Snapshot().ListCatalogTasks(chantierID, lot)
}

// CreateChantier stores a new chantier within the transaction.
func (tx *transaction) CreateChantier(c Chantier) (Chantier, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.chantiers[c.ID]; exists {
		return Chantier{}, domain.ValidationError{Field: "id", Reason: "chantier already exists"}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.chantiers[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityChantier, Action: domain.ActionCreate, After: c})
	return c, nil
}

// CreateFloor stores a new floor. The owning chantier must exist.
func (tx *transaction) CreateFloor(f Floor) (Floor, error) {
	if _, ok := tx.state.chantiers[f.ChantierID]; !ok {
		return Floor{}, domain.NotFoundError{Entity: domain.EntityChantier, ID: f.ChantierID}
	}
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.floors[f.ID]; exists {
		return Floor{}, domain.ValidationError{Field: "id", Reason: "floor already exists"}
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.floors[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityFloor, Action: domain.ActionCreate, After: f})
	return f, nil
}

// CreateRoom stores a new room. The owning floor must exist.
func (tx *transaction) CreateRoom(r Room) (Room, error) {
	if _, ok := tx.state.floors[r.FloorID]; !ok {
		return Room{}, domain.NotFoundError{Entity: domain.EntityFloor, ID: r.FloorID}
	}
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.rooms[r.ID]; exists {
		return Room{}, domain.ValidationError{Field: "id", Reason: "room already exists"}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.rooms[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRoom, Action: domain.ActionCreate, After: r})
	return r, nil
}

// CreateCatalogEntry stores a lot/task template. Scoped entries are unique
// per (chantier, lot, task).
func (tx *transaction) CreateCatalogEntry(e CatalogEntry) (CatalogEntry, error) {
	if e.Lot == "" {
		return CatalogEntry{}, domain.ValidationError{Field: "lot", Reason: "required"}
	}
	if e.Task == "" {
		return CatalogEntry{}, domain.ValidationError{Field: "task", Reason: "required"}
	}
	for _, existing := range tx.state.catalog {
		if existing.ChantierID == e.ChantierID && existing.Lot == e.Lot && existing.Task == e.Task {
			return CatalogEntry{}, domain.ValidationError{Field: "task", Reason: "duplicate catalog entry"}
		}
	}
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.catalog[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityCatalogEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

// CreateIntervention stores a new intervention within the transaction.
func (tx *transaction) CreateIntervention(iv Intervention) (Intervention, error) {
	if iv.ID == "" {
		iv.ID = tx.store.newID()
	}
	if _, exists := tx.state.interventions[iv.ID]; exists {
		return Intervention{}, domain.ValidationError{Field: "id", Reason: "intervention already exists"}
	}
	if iv.Status == "" {
		iv.Status = domain.StatusTodo
	}
	iv.CreatedAt = tx.now
	iv.UpdatedAt = tx.now
	tx.state.interventions[iv.ID] = iv
	tx.recordChange(Change{Entity: domain.EntityIntervention, Action: domain.ActionCreate, After: iv})
	return iv, nil
}

// UpdateIntervention mutates an intervention using the provided mutator. The
// state lock held by the enclosing transaction serializes concurrent updates
// to the same row.
func (tx *transaction) UpdateIntervention(id string, mutator func(*Intervention) error) (Intervention, error) {
	current, ok := tx.state.interventions[id]
	if !ok {
		return Intervention{}, domain.NotFoundError{Entity: domain.EntityIntervention, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Intervention{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.interventions[id] = current
	tx.recordChange(Change{Entity: domain.EntityIntervention, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// AppendHistory inserts an immutable ledger record. There is deliberately no
// update or delete counterpart.
func (tx *transaction) AppendHistory(rec HistoryRecord) (HistoryRecord, error) {
	if rec.InterventionID == "" {
		return HistoryRecord{}, domain.ValidationError{Field: "intervention_id", Reason: "required"}
	}
	if rec.ID == "" {
		rec.ID = tx.store.newID()
	}
	rec.CreatedAt = tx.now
	tx.state.history[rec.InterventionID] = append(tx.state.history[rec.InterventionID], rec)
	tx.recordChange(Change{Entity: domain.EntityHistoryRecord, Action: domain.ActionAppend, After: rec})
	return rec, nil
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListChantiers returns all chantiers, newest first.
func (v transactionView) ListChantiers() []Chantier {
	out := make([]Chantier, 0, len(v.state.chantiers))
	for _, c := range v.state.chantiers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// ListInterventions returns interventions matching every constraint of the
// filter, ordered by floor name, room name, creation time, then id.
func (v transactionView) ListInterventions(filter domain.InterventionFilter) []Intervention {
	constraints := filter.Constraints()
	out := make([]Intervention, 0)
	for _, iv := range v.state.interventions {
		if v.matches(iv, constraints) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := v.state.floors[out[i].FloorID].Name, v.state.floors[out[j].FloorID].Name
		if fi != fj {
			return fi < fj
		}
		ri, rj := v.state.rooms[out[i].RoomID].Name, v.state.rooms[out[j].RoomID].Name
		if ri != rj {
			return ri < rj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) matches(iv Intervention, constraints []domain.FilterConstraint) bool {
	for _, c := range constraints {
		switch c.Field {
		case domain.FilterChantier:
			floor, ok := v.state.floors[iv.FloorID]
			if !ok || floor.ChantierID != c.Value {
				return false
			}
		case domain.FilterFloor:
			if iv.FloorID != c.Value {
				return false
			}
		case domain.FilterRoom:
			if iv.RoomID != c.Value {
				return false
			}
		case domain.FilterLot:
			if iv.Lot != c.Value {
				return false
			}
		case domain.FilterStatus:
			if string(iv.Status) != c.Value {
				return false
			}
		}
	}
	return true
}

// ListHistory returns the ledger records for an intervention ordered by
// creation time ascending.
func (v transactionView) ListHistory(interventionID string) []HistoryRecord {
	records := v.state.history[interventionID]
	out := make([]HistoryRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindChantier retrieves a chantier by ID from the snapshot.
func (v transactionView) FindChantier(id string) (Chantier, bool) {
	c, ok := v.state.chantiers[id]
	return c, ok
}

// FindFloor retrieves a floor by ID from the snapshot.
func (v transactionView) FindFloor(id string) (Floor, bool) {
	f, ok := v.state.floors[id]
	return f, ok
}

// FindRoom retrieves a room by ID from the snapshot.
func (v transactionView) FindRoom(id string) (Room, bool) {
	r, ok := v.state.rooms[id]
	return r, ok
}

// FindIntervention retrieves an intervention by ID from the snapshot.
func (v transactionView) FindIntervention(id string) (Intervention, bool) {
	iv, ok := v.state.interventions[id]
	return iv, ok
}

// FindFloorByName resolves a floor by chantier and display name, as used by
// spreadsheet imports.
func (v transactionView) FindFloorByName(chantierID, name string) (Floor, bool) {
	for _, f := range v.state.floors {
		if f.ChantierID == chantierID && f.Name == name {
			return f, true
		}
	}
	return Floor{}, false
}

// FindRoomByName resolves a room by floor and display name.
func (v transactionView) FindRoomByName(floorID, name string) (Room, bool) {
	for _, r := range v.state.rooms {
		if r.FloorID == floorID && r.Name == name {
			return r, true
		}
	}
	return Room{}, false
}

// ListRoomsByFloor returns the rooms under a floor ordered by name.
func (v transactionView) ListRoomsByFloor(floorID string) []Room {
	out := make([]Room, 0)
	for _, r := range v.state.rooms {
		if r.FloorID == floorID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListCatalogTasks resolves the task list for a lot from the site-scoped
// catalog. Global entries (empty chantier id) apply to every site. A lot
// absent from the catalog contributes zero tasks.
func (v transactionView) ListCatalogTasks(chantierID, lot string) []string {
	out := make([]string, 0)
	for _, e := range v.state.catalog {
		if e.Lot != lot {
			continue
		}
		if e.ChantierID == chantierID || e.ChantierID == "" {
			out = append(out, e.Task)
		}
	}
	sort.Strings(out)
	return out
}
