package btcvault

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/database"
	"github.com/TEENet-io/inscription-bridge/errs"
)

var (
	utxoTable = `CREATE TABLE IF NOT EXISTS utxo (
		utxo_key BLOB PRIMARY KEY NOT NULL,
		amount BIGINT NOT NULL,
		pkscript BLOB NOT NULL,
		derivation_path BLOB NOT NULL,
		asset_token CHAR(64) NOT NULL DEFAULT '',
		CONSTRAINT chk_key CHECK (length(utxo_key) = 36),
		CONSTRAINT chk_amount CHECK (amount > 0),
		CONSTRAINT chk_pkscript CHECK (length(pkscript) <= 128)
	);
	CREATE INDEX IF NOT EXISTS idx_utxo_asset ON utxo (asset_token);`

	utxoColumns = ` utxo_key, amount, pkscript, derivation_path, asset_token `

	usedUtxoTable = `CREATE TABLE IF NOT EXISTS used_utxo (
		utxo_key BLOB PRIMARY KEY NOT NULL,
		reserved_at INTEGER NOT NULL,
		owner VARCHAR(62) NOT NULL,
		CONSTRAINT chk_key CHECK (length(utxo_key) = 36),
		CONSTRAINT chk_owner CHECK (length(owner) <= 62)
	);`
)

// LedgerSQLiteStorage implements LedgerStorage for SQLite
type LedgerSQLiteStorage struct {
	stmtCache *database.StmtCache
}

// NewLedgerSQLiteStorage creates the tables if not existed before.
func NewLedgerSQLiteStorage(db *sql.DB) (*LedgerSQLiteStorage, error) {
	if _, err := db.Exec(utxoTable + usedUtxoTable); err != nil {
		return nil, errors.Wrap(err, "failed to create ledger tables")
	}
	return &LedgerSQLiteStorage{stmtCache: database.NewStmtCache(db)}, nil
}

func (s *LedgerSQLiteStorage) Close() {
	s.stmtCache.Clear()
}

func (s *LedgerSQLiteStorage) UpsertUtxo(ctx context.Context, row UtxoRecord) error {
	if len(row.PkScript) > MaxPkScriptLen {
		return errors.Wrapf(ErrPkScriptTooLong, "utxo=%s len=%d", row.Key, len(row.PkScript))
	}

	// an untagged upsert keeps the asset tag of a known outpoint
	stmt, err := s.stmtCache.Prepare(`INSERT INTO utxo (` + utxoColumns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (utxo_key) DO UPDATE SET
			amount = excluded.amount,
			pkscript = excluded.pkscript,
			derivation_path = excluded.derivation_path,
			asset_token = CASE WHEN excluded.asset_token != '' THEN excluded.asset_token ELSE utxo.asset_token END`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, row.Key[:], row.Amount, row.PkScript, row.DerivationPath, row.AssetToken)
	return errors.Wrapf(err, "failed to upsert utxo %s", row.Key)
}

func (s *LedgerSQLiteStorage) QueryUtxo(ctx context.Context, key UtxoKey) (*UtxoRecord, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT` + utxoColumns + `FROM utxo WHERE utxo_key = ?`)
	if err != nil {
		return nil, err
	}

	row, err := scanUtxo(stmt.QueryRowContext(ctx, key[:]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (s *LedgerSQLiteStorage) QueryUtxos(ctx context.Context, f UtxoFilter) ([]UtxoRecord, error) {
	var (
		conds []string
		args  []any
	)
	if !f.IncludeReserved {
		conds = append(conds, `utxo_key NOT IN (SELECT utxo_key FROM used_utxo)`)
	}
	switch {
	case f.AssetToken != "":
		conds = append(conds, `asset_token = ?`)
		args = append(args, f.AssetToken)
	case f.Untagged:
		conds = append(conds, `asset_token = ''`)
	}
	query := `SELECT` + utxoColumns + `FROM utxo`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY amount DESC, utxo_key ASC`

	stmt, err := s.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query utxos")
	}
	defer rows.Close()

	var out []UtxoRecord
	for rows.Next() {
		row, err := scanUtxo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, errors.WithStack(rows.Err())
}

func (s *LedgerSQLiteStorage) InsertUsed(ctx context.Context, rec UsedUtxoRecord) error {
	if len(rec.Owner) > MaxOwnerAddrLen {
		return errors.Wrapf(ErrOwnerTooLong, "owner=%s", rec.Owner)
	}

	return s.stmtCache.WithTx(ctx, func(tx *database.Tx) error {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM utxo WHERE utxo_key = ?`, rec.Key[:]).Scan(&n); err != nil {
			return errors.Wrap(err, "failed to check utxo existence")
		}
		if n == 0 {
			return errors.Wrapf(errs.NotFound, "utxo %s", rec.Key)
		}

		if err := tx.QueryRow(`SELECT COUNT(*) FROM used_utxo WHERE utxo_key = ?`, rec.Key[:]).Scan(&n); err != nil {
			return errors.Wrap(err, "failed to check reservation")
		}
		if n != 0 {
			return errors.Wrapf(errs.UtxoUnavailable, "utxo %s already reserved", rec.Key)
		}

		_, err := tx.Exec(`INSERT INTO used_utxo (utxo_key, reserved_at, owner) VALUES (?, ?, ?)`,
			rec.Key[:], rec.ReservedAt.Unix(), rec.Owner)
		return errors.Wrapf(err, "failed to reserve utxo %s", rec.Key)
	})
}

func (s *LedgerSQLiteStorage) DeleteUsed(ctx context.Context, key UtxoKey) error {
	stmt, err := s.stmtCache.Prepare(`DELETE FROM used_utxo WHERE utxo_key = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, key[:])
	return errors.Wrapf(err, "failed to release utxo %s", key)
}

func (s *LedgerSQLiteStorage) DeleteSpent(ctx context.Context, key UtxoKey) error {
	return s.stmtCache.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.Exec(`DELETE FROM used_utxo WHERE utxo_key = ?`, key[:]); err != nil {
			return errors.Wrapf(err, "failed to delete reservation of %s", key)
		}
		if _, err := tx.Exec(`DELETE FROM utxo WHERE utxo_key = ?`, key[:]); err != nil {
			return errors.Wrapf(err, "failed to delete utxo %s", key)
		}
		return nil
	})
}

func (s *LedgerSQLiteStorage) QueryAllUsed(ctx context.Context) ([]UsedUtxoRecord, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT utxo_key, reserved_at, owner FROM used_utxo ORDER BY reserved_at ASC, utxo_key ASC`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reservations")
	}
	defer rows.Close()

	var out []UsedUtxoRecord
	for rows.Next() {
		var (
			rawKey     []byte
			reservedAt int64
			rec        UsedUtxoRecord
		)
		if err := rows.Scan(&rawKey, &reservedAt, &rec.Owner); err != nil {
			return nil, errors.Wrap(err, "failed to scan reservation")
		}
		key, err := UtxoKeyFromBytes(rawKey)
		if err != nil {
			return nil, errors.Mark(err, errs.CorruptRecord)
		}
		rec.Key = key
		rec.ReservedAt = time.Unix(reservedAt, 0).UTC()
		out = append(out, rec)
	}
	return out, errors.WithStack(rows.Err())
}

func (s *LedgerSQLiteStorage) SumMoney(ctx context.Context) (int64, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT COALESCE(SUM(amount), 0) FROM utxo
		WHERE asset_token = '' AND utxo_key NOT IN (SELECT utxo_key FROM used_utxo)`)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := stmt.QueryRowContext(ctx).Scan(&sum); err != nil {
		return 0, errors.Wrap(err, "failed to sum utxos")
	}
	return sum, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUtxo(sc scanner) (*UtxoRecord, error) {
	var (
		rawKey []byte
		row    UtxoRecord
	)
	if err := sc.Scan(&rawKey, &row.Amount, &row.PkScript, &row.DerivationPath, &row.AssetToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan utxo")
	}
	key, err := UtxoKeyFromBytes(rawKey)
	if err != nil {
		return nil, errors.Mark(err, errs.CorruptRecord)
	}
	row.Key = key
	return &row, nil
}
