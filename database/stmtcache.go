package database

import (
	"context"
	"database/sql"
	"sync"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// to cache prepared sql statement, which maps query string to stmt.
type StmtCache struct {
	db *sql.DB
	m  sync.Map
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

// DB returns the underlying handle.
func (sc *StmtCache) DB() *sql.DB {
	return sc.db
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	cached, _ := sc.m.Load(query)
	if cached == nil {
		stmt, err := sc.db.Prepare(query)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to prepare %q", query)
		}
		actual, loaded := sc.m.LoadOrStore(query, stmt)
		if loaded {
			_ = stmt.Close()
		}
		cached = actual
	}
	return cached.(*sql.Stmt), nil
}

func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
func (sc *StmtCache) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := sc.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}

	if err := fn(&Tx{tx: sqlTx, sc: sc}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.CombineErrors(err, rbErr)
		}
		return err
	}

	return errors.Wrap(sqlTx.Commit(), "failed to commit tx")
}

// Tx is a transaction that shares the statement cache.
type Tx struct {
	tx *sql.Tx
	sc *StmtCache
}

// Exec runs query on the transaction connection. A statement already in the
// cache is rebound to the transaction; otherwise the query runs unprepared so
// it never waits on a second pool connection.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	if cached, ok := t.sc.m.Load(query); ok {
		return t.tx.Stmt(cached.(*sql.Stmt)).Exec(args...)
	}
	return t.tx.Exec(query, args...)
}

func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	if cached, ok := t.sc.m.Load(query); ok {
		return t.tx.Stmt(cached.(*sql.Stmt)).QueryRow(args...)
	}
	return t.tx.QueryRow(query, args...)
}

func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	if cached, ok := t.sc.m.Load(query); ok {
		return t.tx.Stmt(cached.(*sql.Stmt)).Query(args...)
	}
	return t.tx.Query(query, args...)
}
