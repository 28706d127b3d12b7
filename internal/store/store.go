// Package store implements the StoreFacade: a thin, reentrant,
// retry-on-contention wrapper over an embedded modernc.org/sqlite
// database, exposing record-level read/write/query and the bulk
// transaction scoping the collection pipeline and async task queue
// build on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/schema"
)

// busyRetryInterval is the sleep between safe_transaction retries
// after an engine busy/locked signal, per spec §4.3.
const busyRetryInterval = 25 * time.Millisecond

type txKey struct{}

// Facade owns the single *sql.DB handle for one store file and a mutex
// that serializes top-level SafeTransaction calls; a nested
// SafeTransaction finds the outer transaction in its context and joins
// it without locking again. The stmts map is released by Close but
// nothing fills it: Insert, UpdateScalar and queries execute their SQL
// directly on the transaction, with no prepared-statement caching.
type Facade struct {
	db     *sql.DB
	path   string
	log    *logrus.Entry
	mu     sync.Mutex
	retry  time.Duration
	stmtMu sync.Mutex
	stmts  map[string]*sql.Stmt

	schemaApplied bool
}

// Open opens path, creating it if absent. If forceNew is true and the
// file already exists, it is truncated first. The returned Facade has
// not yet had a schema applied.
func Open(path string, forceNew bool, log *logrus.Entry) (*Facade, error) {
	if forceNew {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, tcerrors.NewEngineError("", err)
		}
	}
	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, tcerrors.NewEngineError("", err)
	}
	db.SetMaxOpenConns(1)
	if err := registerFuzzyMatch(db); err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, tcerrors.NewEngineError("", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, tcerrors.NewEngineError("PRAGMA journal_mode=WAL", err)
	}
	f := &Facade{
		db:            db,
		path:          path,
		log:           log,
		retry:         busyRetryInterval,
		stmts:         make(map[string]*sql.Stmt),
		schemaApplied: existed,
	}
	return f, nil
}

// registerFuzzyMatch wires the fuzzyMatch(col, target, code) SQL
// scalar function used by Query's FuzzyEq predicate, extending the
// engine at open time per spec §4.3.
func registerFuzzyMatch(db *sql.DB) error {
	// modernc.org/sqlite registers scalar UDFs driver-wide through
	// RegisterDeterministicScalarFunction and installs them on each
	// connection it opens afterwards, so the registration runs once per
	// process (a second registration of the same name is rejected) and
	// before Open's Ping creates the facade's connection. SQLite itself
	// has no CREATE FUNCTION statement.
	fuzzyOnce.Do(func() { fuzzyErr = sqliteRegisterFuzzyMatch(db) })
	return fuzzyErr
}

var (
	fuzzyOnce sync.Once
	fuzzyErr  error
)

// Close releases the prepared-statement cache and the underlying
// connection.
func (f *Facade) Close() error {
	f.stmtMu.Lock()
	for _, st := range f.stmts {
		st.Close()
	}
	f.stmtMu.Unlock()
	return f.db.Close()
}

// ApplySchema materializes b's tables and indexes. Only permitted
// before the file has ever held data — i.e. only on a file this Open
// call just created.
func (f *Facade) ApplySchema(ctx context.Context, b *schema.Builder) error {
	if f.schemaApplied {
		return tcerrors.NewConfigurationError("ApplySchema", "schema already applied to an existing store file")
	}
	return f.SafeTransaction(ctx, func(ctx context.Context) error {
		for _, stmt := range b.Materialize() {
			if _, err := f.execInTx(ctx, stmt); err != nil {
				return err
			}
		}
		f.schemaApplied = true
		return nil
	})
}

// SafeTransaction runs fn inside BEGIN/COMMIT. Nested calls (detected
// via a context flag) join the outer transaction rather than opening a
// new one. On a busy/locked signal from the engine, SafeTransaction
// sleeps 25ms and retries from the top; any other error propagates
// immediately and rolls back.
func (f *Facade) SafeTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		tx, err := f.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				time.Sleep(f.retry)
				continue
			}
			return tcerrors.NewEngineError("BEGIN", err)
		}
		nested := context.WithValue(ctx, txKey{}, tx)
		err = fn(nested)
		if err != nil {
			tx.Rollback()
			if isBusy(err) {
				time.Sleep(f.retry)
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				time.Sleep(f.retry)
				continue
			}
			return tcerrors.NewEngineError("COMMIT", err)
		}
		return nil
	}
}

func isBusy(err error) bool {
	if tcerrors.IsBusy(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// execInTx runs exec against the active transaction in ctx, wrapping
// an engine busy/locked failure as tcerrors.EngineBusy so SafeTransaction
// recognizes it for retry.
func (f *Facade) execInTx(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	if !ok {
		return nil, tcerrors.NewEngineError(query, fmt.Errorf("execInTx called outside SafeTransaction"))
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "locked") || strings.Contains(strings.ToLower(err.Error()), "busy") {
			return nil, tcerrors.NewEngineBusy(query)
		}
		return nil, tcerrors.NewEngineError(query, err)
	}
	return res, nil
}

// RecordHandle identifies one inserted row.
type RecordHandle struct {
	Table string
	ID    int64
}

// Insert binds values as prepared-statement parameters (never string
// interpolation) and inserts one row into table, returning a handle to
// it. Must be called from within a SafeTransaction.
func (f *Facade) Insert(ctx context.Context, table string, cols []string, values []interface{}) (RecordHandle, error) {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoteIdents(cols), ", "), strings.Join(placeholders, ", "))
	res, err := f.execInTx(ctx, q, values...)
	if err != nil {
		return RecordHandle{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return RecordHandle{}, tcerrors.NewEngineError(q, err)
	}
	return RecordHandle{Table: table, ID: id}, nil
}

// UpdateScalar updates one column of one row by primary key id.
func (f *Facade) UpdateScalar(ctx context.Context, table, col string, id int64, value interface{}) error {
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", quoteIdent(table), quoteIdent(col))
	_, err := f.execInTx(ctx, q, value, id)
	return err
}

// GetRecord fetches the row with primary key id from table, returning
// column values keyed by column name.
func (f *Facade) GetRecord(ctx context.Context, table string, cols []string, id int64) (map[string]interface{}, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(quoteIdents(cols), ", "), quoteIdent(table))
	rows, err := f.queryInTx(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	return scanRow(rows, cols)
}

func (f *Facade) queryInTx(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, tcerrors.NewEngineError(query, err)
		}
		return rows, nil
	}
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tcerrors.NewEngineError(query, err)
	}
	return rows, nil
}

func scanRow(rows *sql.Rows, cols []string) (map[string]interface{}, error) {
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, tcerrors.NewEngineError("scan", err)
	}
	out := make(map[string]interface{}, len(cols))
	for i, c := range cols {
		out[c] = vals[i]
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}
