package database

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *StmtCache {
	db, err := OpenSQLite(MemoryDSN)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE t (k INTEGER PRIMARY KEY, v TEXT NOT NULL);`)
	require.NoError(t, err)

	sc := NewStmtCache(db)
	t.Cleanup(func() {
		sc.Clear()
		db.Close()
	})
	return sc
}

func TestPrepareIsCached(t *testing.T) {
	sc := newCache(t)

	s1, err := sc.Prepare(`SELECT v FROM t WHERE k = ?`)
	require.NoError(t, err)
	s2, err := sc.Prepare(`SELECT v FROM t WHERE k = ?`)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = sc.Prepare(`SELECT nope FROM missing`)
	assert.Error(t, err)
}

func TestWithTxCommitAndRollback(t *testing.T) {
	sc := newCache(t)
	ctx := context.Background()

	err := sc.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(`INSERT INTO t (k, v) VALUES (?, ?)`, 1, "a")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = sc.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (k, v) VALUES (?, ?)`, 2, "b"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, sc.DB().QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)

	err = sc.WithTx(ctx, func(tx *Tx) error {
		var v string
		if err := tx.QueryRow(`SELECT v FROM t WHERE k = ?`, 1).Scan(&v); err != nil {
			return err
		}
		assert.Equal(t, "a", v)
		return nil
	})
	assert.NoError(t, err)
}
