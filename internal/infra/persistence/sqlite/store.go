// Package sqlite persists the in-memory store state to an embedded SQLite
// file as JSON buckets, snapshotting after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"chantiercore/internal/infra/persistence/memory"
	"chantiercore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the memory store with a durable SQLite snapshot. The memory
// store remains the transactional engine; the SQLite table only holds the
// committed state.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "chantiercore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var buckets = []string{"chantiers", "floors", "rooms", "catalog", "interventions", "history"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	snapshot := memory.Snapshot{}
	for bucket, payload := range payloads {
		var decodeErr error
		switch bucket {
		case "chantiers":
			decodeErr = json.Unmarshal(payload, &snapshot.Chantiers)
		case "floors":
			decodeErr = json.Unmarshal(payload, &snapshot.Floors)
		case "rooms":
			decodeErr = json.Unmarshal(payload, &snapshot.Rooms)
		case "catalog":
			decodeErr = json.Unmarshal(payload, &snapshot.Catalog)
		case "interventions":
			decodeErr = json.Unmarshal(payload, &snapshot.Interventions)
		case "history":
			decodeErr = json.Unmarshal(payload, &snapshot.History)
		}
		if decodeErr != nil {
			return fmt.Errorf("decode %s: %w", bucket, decodeErr)
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case "chantiers":
			data, err = json.Marshal(snapshot.Chantiers)
		case "floors":
			data, err = json.Marshal(snapshot.Floors)
		case "rooms":
			data, err = json.Marshal(snapshot.Rooms)
		case "catalog":
			data, err = json.Marshal(snapshot.Catalog)
		case "interventions":
			data, err = json.Marshal(snapshot.Interventions)
		case "history":
			data, err = json.Marshal(snapshot.History)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within the in-memory transaction, then
// snapshots the committed state to SQLite.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, domain.StoreError{Op: "sqlite persist", Err: pErr}
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
