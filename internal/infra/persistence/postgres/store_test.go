package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"chantiercore/pkg/domain"
)

type stubConn struct {
	mu    sync.Mutex
	execs []string
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }
func (c *stubConn) Ping(context.Context) error          { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	c.execs = append(c.execs, query)
	c.mu.Unlock()
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return emptyRows{}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

type stubConnector struct {
	conn *stubConn
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return nil }

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{}
	return sql.OpenDB(stubConnector{conn: conn}), conn
}

func TestNewStoreAppliesSchema(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	conn.mu.Lock()
	execs := append([]string(nil), conn.execs...)
	conn.mu.Unlock()
	if len(execs) != len(schema) {
		t.Fatalf("expected %d schema statements, got %d", len(schema), len(execs))
	}
	tables := map[string]bool{}
	for _, stmt := range execs {
		upper := strings.ToUpper(stmt)
		for _, table := range []string{"chantiers", "floors", "rooms", "catalog_entries", "interventions", "history_records"} {
			if strings.Contains(upper, "CREATE TABLE") && strings.Contains(stmt, table) {
				tables[table] = true
			}
		}
	}
	if len(tables) != 6 {
		t.Fatalf("expected all entity tables in schema, got %v", tables)
	}
}

func TestNewStorePropagatesOpenFailure(t *testing.T) {
	sentinel := errors.New("dial refused")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, sentinel })
	defer restore()

	if _, err := NewStore("postgres://example/db", domain.NewRulesEngine()); !errors.Is(err, sentinel) {
		t.Fatalf("expected open failure, got %v", err)
	}
}

func TestHistoryTableCarriesNoForeignKey(t *testing.T) {
	for _, stmt := range schema {
		if strings.Contains(stmt, "history_records") && strings.Contains(stmt, "REFERENCES") {
			t.Fatalf("history_records must not cascade from interventions: %s", stmt)
		}
	}
}
