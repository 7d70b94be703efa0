package database

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	logger "github.com/sirupsen/logrus"
)

const MemoryDSN = ":memory:"

// OpenSQLite opens the sqlite file at path. An in-memory database only lives
// as long as its connection, so the pool is pinned to one connection for it.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryDSN && !strings.Contains(path, "?") {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite db at %s", path)
	}

	if path == MemoryDSN {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to ping sqlite db at %s", path)
	}

	logger.WithField("path", path).Debug("sqlite db opened")
	return db, nil
}
