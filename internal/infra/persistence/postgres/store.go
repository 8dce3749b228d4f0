// Package postgres provides a Postgres-backed persistent store. Unlike the
// sqlite snapshot wrapper it keeps each entity in its own relational table
// and takes a SELECT ... FOR UPDATE row lock on the target intervention for
// the locked read-modify-write path.
package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"chantiercore/pkg/domain"
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*pgTransaction)(nil)
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/chantiercore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chantiers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		nom TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS floors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		chantier_id TEXT NOT NULL REFERENCES chantiers(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		floor_id TEXT NOT NULL REFERENCES floors(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_entries (
		id TEXT PRIMARY KEY,
		chantier_id TEXT NOT NULL DEFAULT '',
		lot TEXT NOT NULL,
		task TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (chantier_id, lot, task)
	)`,
	`CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		floor_id TEXT NOT NULL,
		room_id TEXT NOT NULL,
		old_floor_name TEXT NOT NULL DEFAULT '',
		old_room_name TEXT NOT NULL DEFAULT '',
		lot TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL,
		person TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	// No foreign key on intervention_id: ledger records must survive the
	// intervention itself.
	`CREATE TABLE IF NOT EXISTS history_records (
		id TEXT PRIMARY KEY,
		intervention_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL DEFAULT '',
		persons TEXT NOT NULL DEFAULT '',
		event_date TEXT NOT NULL DEFAULT '',
		actor_email TEXT NOT NULL DEFAULT '',
		actor_name TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS history_records_intervention_idx
		ON history_records (intervention_id, created_at)`,
}

// Store persists entities in relational tables over a pgx database/sql
// connection.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and applies the schema.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		db:     db,
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// RunInTransaction executes fn inside one database transaction, evaluates
// the rules engine over the pending state, and commits only when no blocking
// violation or store failure occurred. Row locks taken by UpdateIntervention
// are held until commit or rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, domain.StoreError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &pgTransaction{ctx: ctx, tx: sqlTx, now: s.nowFn()}
	fnErr := fn(tx)
	if tx.err != nil {
		return domain.Result{}, tx.err
	}
	if fnErr != nil {
		return domain.Result{}, fnErr
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		if tx.err != nil {
			return domain.Result{}, tx.err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, domain.StoreError{Op: "commit", Err: err}
	}
	committed = true
	return result, nil
}

// View executes fn against a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.StoreError{Op: "begin view", Err: err}
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &pgTransaction{ctx: ctx, tx: sqlTx, now: s.nowFn()}
	fnErr := fn(tx)
	if tx.err != nil {
		return tx.err
	}
	return fnErr
}

// pgTransaction implements domain.Transaction over one sql.Tx. View methods
// have no error return, so the first store failure is retained and surfaced
// by the enclosing RunInTransaction or View call.
type pgTransaction struct {
	ctx     context.Context
	tx      *sql.Tx
	now     time.Time
	changes []domain.Change
	err     error
}

func (t *pgTransaction) fail(op string, err error) error {
	wrapped := domain.StoreError{Op: op, Err: err}
	if t.err == nil {
		t.err = wrapped
	}
	return wrapped
}

func (t *pgTransaction) recordChange(change domain.Change) {
	t.changes = append(t.changes, change)
}

// Snapshot returns the transaction itself: all reads already observe the
// pending state.
func (t *pgTransaction) Snapshot() domain.TransactionView { return t }

func (t *pgTransaction) exists(table, id string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateChantier inserts a new chantier row.
func (t *pgTransaction) CreateChantier(c domain.Chantier) (domain.Chantier, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = t.now
	c.UpdatedAt = t.now
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO chantiers (id, name, nom, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Nom, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Chantier{}, t.fail("insert chantier", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityChantier, Action: domain.ActionCreate, After: c})
	return c, nil
}

// CreateFloor inserts a floor after verifying the owning chantier exists.
func (t *pgTransaction) CreateFloor(f domain.Floor) (domain.Floor, error) {
	ok, err := t.exists("chantiers", f.ChantierID)
	if err != nil {
		return domain.Floor{}, t.fail("lookup chantier", err)
	}
	if !ok {
		return domain.Floor{}, domain.NotFoundError{Entity: domain.EntityChantier, ID: f.ChantierID}
	}
	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = t.now
	f.UpdatedAt = t.now
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO floors (id, name, chantier_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.Name, f.ChantierID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return domain.Floor{}, t.fail("insert floor", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityFloor, Action: domain.ActionCreate, After: f})
	return f, nil
}

// CreateRoom inserts a room after verifying the owning floor exists.
func (t *pgTransaction) CreateRoom(r domain.Room) (domain.Room, error) {
	ok, err := t.exists("floors", r.FloorID)
	if err != nil {
		return domain.Room{}, t.fail("lookup floor", err)
	}
	if !ok {
		return domain.Room{}, domain.NotFoundError{Entity: domain.EntityFloor, ID: r.FloorID}
	}
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = t.now
	r.UpdatedAt = t.now
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO rooms (id, name, floor_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Name, r.FloorID, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return domain.Room{}, t.fail("insert room", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityRoom, Action: domain.ActionCreate, After: r})
	return r, nil
}

// CreateCatalogEntry inserts a lot/task template, rejecting duplicates
// within the same scope.
func (t *pgTransaction) CreateCatalogEntry(e domain.CatalogEntry) (domain.CatalogEntry, error) {
	if e.Lot == "" {
		return domain.CatalogEntry{}, domain.ValidationError{Field: "lot", Reason: "required"}
	}
	if e.Task == "" {
		return domain.CatalogEntry{}, domain.ValidationError{Field: "task", Reason: "required"}
	}
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT 1 FROM catalog_entries WHERE chantier_id = $1 AND lot = $2 AND task = $3`,
		e.ChantierID, e.Lot, e.Task).Scan(&one)
	if err == nil {
		return domain.CatalogEntry{}, domain.ValidationError{Field: "task", Reason: "duplicate catalog entry"}
	}
	if err != sql.ErrNoRows {
		return domain.CatalogEntry{}, t.fail("lookup catalog entry", err)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	e.CreatedAt = t.now
	e.UpdatedAt = t.now
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO catalog_entries (id, chantier_id, lot, task, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ChantierID, e.Lot, e.Task, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return domain.CatalogEntry{}, t.fail("insert catalog entry", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityCatalogEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

const interventionColumns = `id, floor_id, room_id, old_floor_name, old_room_name, lot, task, status, person, action, user_id, created_at, updated_at`

// CreateIntervention inserts a new intervention row.
func (t *pgTransaction) CreateIntervention(iv domain.Intervention) (domain.Intervention, error) {
	if iv.ID == "" {
		iv.ID = newID()
	}
	if iv.Status == "" {
		iv.Status = domain.StatusTodo
	}
	iv.CreatedAt = t.now
	iv.UpdatedAt = t.now
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO interventions (`+interventionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		iv.ID, iv.FloorID, iv.RoomID, iv.OldFloorName, iv.OldRoomName,
		iv.Lot, iv.Task, string(iv.Status), iv.Person, iv.Action, iv.UserID,
		iv.CreatedAt, iv.UpdatedAt)
	if err != nil {
		return domain.Intervention{}, t.fail("insert intervention", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityIntervention, Action: domain.ActionCreate, After: iv})
	return iv, nil
}

// UpdateIntervention reads the target row under an exclusive FOR UPDATE
// lock, applies the mutator, and writes the result back. The lock is held
// until the enclosing transaction commits or rolls back.
func (t *pgTransaction) UpdateIntervention(id string, mutator func(*domain.Intervention) error) (domain.Intervention, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+interventionColumns+` FROM interventions WHERE id = $1 FOR UPDATE`, id)
	current, err := scanIntervention(row)
	if err == sql.ErrNoRows {
		return domain.Intervention{}, domain.NotFoundError{Entity: domain.EntityIntervention, ID: id}
	}
	if err != nil {
		return domain.Intervention{}, t.fail("lock intervention", err)
	}

	before := current
	if err := mutator(&current); err != nil {
		return domain.Intervention{}, err
	}
	current.ID = id
	current.UpdatedAt = t.now

	_, err = t.tx.ExecContext(t.ctx,
		`UPDATE interventions
		 SET floor_id = $1, room_id = $2, old_floor_name = $3, old_room_name = $4,
		     lot = $5, task = $6, status = $7, person = $8, action = $9,
		     user_id = $10, updated_at = $11
		 WHERE id = $12`,
		current.FloorID, current.RoomID, current.OldFloorName, current.OldRoomName,
		current.Lot, current.Task, string(current.Status), current.Person, current.Action,
		current.UserID, current.UpdatedAt, id)
	if err != nil {
		return domain.Intervention{}, t.fail("update intervention", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityIntervention, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// AppendHistory inserts an immutable ledger row. There is no update or
// delete statement anywhere in this package.
func (t *pgTransaction) AppendHistory(rec domain.HistoryRecord) (domain.HistoryRecord, error) {
	if rec.InterventionID == "" {
		return domain.HistoryRecord{}, domain.ValidationError{Field: "intervention_id", Reason: "required"}
	}
	if rec.ID == "" {
		rec.ID = newID()
	}
	rec.CreatedAt = t.now
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO history_records (id, intervention_id, event_type, old_status, new_status, persons, event_date, actor_email, actor_name, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.InterventionID, string(rec.EventType), string(rec.OldStatus), string(rec.NewStatus),
		rec.Persons, rec.EventDate, rec.ActorEmail, rec.ActorName, rec.Note, rec.CreatedAt)
	if err != nil {
		return domain.HistoryRecord{}, t.fail("insert history record", err)
	}
	t.recordChange(domain.Change{Entity: domain.EntityHistoryRecord, Action: domain.ActionAppend, After: rec})
	return rec, nil
}
