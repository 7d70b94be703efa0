package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/database"
	"github.com/TEENet-io/inscription-bridge/errs"
)

const (
	keyEvmParams = "evm_params"
)

// StateDB keeps the in-flight cross chain operations: signed mint orders,
// burn requests, deposited inscriptions and the wallet history.
type StateDB struct {
	stmtCache *database.StmtCache
	now       func() time.Time
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	// 1. Create the tables.
	if _, err := db.Exec(kvTable + mintOrderTable + burnRequestTable + inscriptionTable + depositTable + withdrawalTxTable + operationTable); err != nil {
		return nil, errors.Wrap(err, "failed to create state tables")
	}

	// 2. A stmt cache + db.
	return &StateDB{
		stmtCache: database.NewStmtCache(db),
		now:       time.Now,
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

func (st *StateDB) GetKeyedValue(ctx context.Context, key string) ([]byte, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return nil, false, err
	}

	var value []byte
	if err := stmt.QueryRowContext(ctx, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get kv %s", key)
	}
	return value, true, nil
}

func (st *StateDB) SetKeyedValue(ctx context.Context, key string, value []byte) error {
	stmt, err := st.stmtCache.Prepare(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, key, value)
	return errors.Wrapf(err, "failed to set kv %s", key)
}

// GetEvmParams returns ok=false before the bridge has been bootstrapped.
func (st *StateDB) GetEvmParams(ctx context.Context) (*agreement.EvmParams, bool, error) {
	raw, ok, err := st.GetKeyedValue(ctx, keyEvmParams)
	if err != nil || !ok {
		return nil, ok, err
	}
	var p agreement.EvmParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, errors.Mark(errors.Wrap(err, "failed to decode evm params"), errs.CorruptRecord)
	}
	return &p, true, nil
}

func (st *StateDB) SetEvmParams(ctx context.Context, p *agreement.EvmParams) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.WithStack(err)
	}
	return st.SetKeyedValue(ctx, keyEvmParams, raw)
}

// PushMintOrder stores a signed order. The (sender, nonce) pair is unique and
// a signed order is never replaced.
func (st *StateDB) PushMintOrder(ctx context.Context, sender, srcToken common.Id256, nonce uint32, payload []byte) error {
	stmt, err := st.stmtCache.Prepare(`INSERT INTO mint_order (` + mintOrderColumns + `) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, sender.Hex(), srcToken.Hex(), nonce, payload)
	return errors.Wrapf(err, "failed to push mint order sender=%s nonce=%d", sender, nonce)
}

func (st *StateDB) GetMintOrder(ctx context.Context, sender, srcToken common.Id256, nonce uint32) ([]byte, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT payload FROM mint_order WHERE sender = ? AND src_token = ? AND nonce = ?`)
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	if err := stmt.QueryRowContext(ctx, sender.Hex(), srcToken.Hex(), nonce).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to get mint order")
	}
	return payload, true, nil
}

// GetMintOrders lists the orders of sender for srcToken by ascending nonce.
func (st *StateDB) GetMintOrders(ctx context.Context, sender, srcToken common.Id256) ([]MintOrderRecord, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + mintOrderColumns + `FROM mint_order WHERE sender = ? AND src_token = ? ORDER BY nonce ASC`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, sender.Hex(), srcToken.Hex())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query mint orders")
	}
	defer rows.Close()

	var out []MintOrderRecord
	for rows.Next() {
		var (
			rawSender, rawToken string
			rec                 MintOrderRecord
		)
		if err := rows.Scan(&rawSender, &rawToken, &rec.Nonce, &rec.Payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan mint order")
		}
		if rec.Sender, err = common.ParseId256(rawSender); err != nil {
			return nil, errors.Mark(errors.WithStack(err), errs.CorruptRecord)
		}
		if rec.SrcToken, err = common.ParseId256(rawToken); err != nil {
			return nil, errors.Mark(errors.WithStack(err), errs.CorruptRecord)
		}
		out = append(out, rec)
	}
	return out, errors.WithStack(rows.Err())
}

func (st *StateDB) RemoveMintOrder(ctx context.Context, sender common.Id256, nonce uint32) error {
	stmt, err := st.stmtCache.Prepare(`DELETE FROM mint_order WHERE sender = ? AND nonce = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, sender.Hex(), nonce)
	return errors.Wrapf(err, "failed to remove mint order sender=%s nonce=%d", sender, nonce)
}

// InsertBurnRequest is a no-op when the request is already known, so a retried
// withdrawal keeps its transferred flag.
func (st *StateDB) InsertBurnRequest(ctx context.Context, id uint32, address, sourceRef string) error {
	if len(address) > 62 {
		return errors.Wrapf(errs.MalformedAddress, "address too long: %s", address)
	}
	stmt, err := st.stmtCache.Prepare(`INSERT OR IGNORE INTO burn_request (request_id, address, source_ref) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, id, address, sourceRef)
	return errors.Wrapf(err, "failed to insert burn request %d", id)
}

func (st *StateDB) SetBurnTransferred(ctx context.Context, id uint32) error {
	stmt, err := st.stmtCache.Prepare(`UPDATE burn_request SET transferred = TRUE WHERE request_id = ?`)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to update burn request %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errs.NotFound, "burn request %d", id)
	}
	return nil
}

func (st *StateDB) RemoveBurnRequest(ctx context.Context, id uint32) error {
	stmt, err := st.stmtCache.Prepare(`DELETE FROM burn_request WHERE request_id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, id)
	return errors.Wrapf(err, "failed to remove burn request %d", id)
}

func (st *StateDB) GetBurnRequest(ctx context.Context, id uint32) (*BurnRequest, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT request_id, address, source_ref, transferred FROM burn_request WHERE request_id = ?`)
	if err != nil {
		return nil, false, err
	}

	var req BurnRequest
	if err := stmt.QueryRowContext(ctx, id).Scan(&req.RequestID, &req.Address, &req.SourceRef, &req.Transferred); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get burn request %d", id)
	}
	return &req, true, nil
}

func (st *StateDB) GetInscription(ctx context.Context, token common.Id256) (*InscriptionRecord, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + inscriptionColumns + `FROM inscription WHERE token = ?`)
	if err != nil {
		return nil, false, err
	}

	var (
		rawToken  string
		createdAt int64
		rec       InscriptionRecord
	)
	err = stmt.QueryRowContext(ctx, token.Hex()).Scan(&rawToken, &rec.Kind, &rec.AssetID, &rec.RevealTx, &rec.Amount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get inscription %s", token)
	}
	rec.Token = token
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &rec, true, nil
}

func (st *StateDB) RemoveInscription(ctx context.Context, token common.Id256) error {
	stmt, err := st.stmtCache.Prepare(`DELETE FROM inscription WHERE token = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, token.Hex())
	return errors.Wrapf(err, "failed to remove inscription %s", token)
}

// CommitDeposit stores the signed order of a deposit together with its
// inscription record and the replay marker of the deposit tx. Either all
// three are written or none. A later deposit of the same token overwrites
// the reveal tx and amount of the inscription record.
func (st *StateDB) CommitDeposit(ctx context.Context, dep *DepositRecord, payload []byte, ins *InscriptionRecord) error {
	createdAt := st.now()
	if !dep.CreatedAt.IsZero() {
		createdAt = dep.CreatedAt
	}
	insCreatedAt := ins.CreatedAt
	if insCreatedAt.IsZero() {
		insCreatedAt = createdAt
	}

	err := st.stmtCache.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.Exec(`INSERT INTO mint_order (`+mintOrderColumns+`) VALUES (?, ?, ?, ?)`,
			dep.Sender.Hex(), dep.Token.Hex(), dep.Nonce, payload); err != nil {
			return errors.Wrapf(err, "failed to push mint order sender=%s nonce=%d", dep.Sender, dep.Nonce)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO inscription (`+inscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			ins.Token.Hex(), ins.Kind, ins.AssetID, ins.RevealTx, ins.Amount, insCreatedAt.Unix()); err != nil {
			return errors.Wrapf(err, "failed to put inscription %s", ins.AssetID)
		}
		if _, err := tx.Exec(`INSERT INTO deposit (`+depositColumns+`) VALUES (?, ?, ?, ?, ?)`,
			dep.TxID, dep.Token.Hex(), dep.Sender.Hex(), dep.Nonce, createdAt.Unix()); err != nil {
			return errors.Wrapf(err, "failed to mark deposit %s", dep.TxID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	dep.CreatedAt = createdAt
	return nil
}

func (st *StateDB) GetDeposit(ctx context.Context, txid string) (*DepositRecord, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + depositColumns + `FROM deposit WHERE tx_id = ?`)
	if err != nil {
		return nil, false, err
	}

	var (
		rawToken, rawSender string
		createdAt           int64
		dep                 DepositRecord
	)
	err = stmt.QueryRowContext(ctx, txid).Scan(&dep.TxID, &rawToken, &rawSender, &dep.Nonce, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get deposit %s", txid)
	}
	if dep.Token, err = common.ParseId256(rawToken); err != nil {
		return nil, false, errors.Mark(errors.WithStack(err), errs.CorruptRecord)
	}
	if dep.Sender, err = common.ParseId256(rawSender); err != nil {
		return nil, false, errors.Mark(errors.WithStack(err), errs.CorruptRecord)
	}
	dep.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &dep, true, nil
}

// PutWithdrawalTx remembers the tx built for a burn request before it is
// broadcast. A request has at most one such tx.
func (st *StateDB) PutWithdrawalTx(ctx context.Context, w *WithdrawalTx) error {
	stmt, err := st.stmtCache.Prepare(`INSERT INTO withdrawal_tx (request_id, tx_id, raw, sent) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, w.RequestID, w.TxID, w.Raw, w.Sent)
	return errors.Wrapf(err, "failed to put withdrawal tx of request %d", w.RequestID)
}

func (st *StateDB) GetWithdrawalTx(ctx context.Context, id uint32) (*WithdrawalTx, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT request_id, tx_id, raw, sent FROM withdrawal_tx WHERE request_id = ?`)
	if err != nil {
		return nil, false, err
	}

	var w WithdrawalTx
	if err := stmt.QueryRowContext(ctx, id).Scan(&w.RequestID, &w.TxID, &w.Raw, &w.Sent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get withdrawal tx of request %d", id)
	}
	return &w, true, nil
}

func (st *StateDB) SetWithdrawalSent(ctx context.Context, id uint32) error {
	stmt, err := st.stmtCache.Prepare(`UPDATE withdrawal_tx SET sent = TRUE WHERE request_id = ?`)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to update withdrawal tx of request %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errs.NotFound, "withdrawal tx of request %d", id)
	}
	return nil
}

// RemoveWithdrawalTx drops an unsent tx so the request can be built again.
// A sent tx is kept.
func (st *StateDB) RemoveWithdrawalTx(ctx context.Context, id uint32) error {
	stmt, err := st.stmtCache.Prepare(`DELETE FROM withdrawal_tx WHERE request_id = ? AND sent = FALSE`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, id)
	return errors.Wrapf(err, "failed to remove withdrawal tx of request %d", id)
}

func (st *StateDB) RecordOperation(ctx context.Context, op *Operation) error {
	stmt, err := st.stmtCache.Prepare(`INSERT INTO operation (wallet, direction, kind, asset_id, amount, status, tx_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = st.now()
	}
	res, err := stmt.ExecContext(ctx, op.Wallet, op.Direction, op.Kind, op.AssetID, op.Amount, op.Status, op.TxID, createdAt.Unix())
	if err != nil {
		return errors.Wrapf(err, "failed to record %s of %s", op.Direction, op.Wallet)
	}
	op.ID, _ = res.LastInsertId()
	op.CreatedAt = createdAt
	return nil
}

// GetOperations returns the history of wallet, oldest first.
func (st *StateDB) GetOperations(ctx context.Context, wallet string) ([]Operation, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + operationColumns + `FROM operation WHERE wallet = ? ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query operations")
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var (
			op        Operation
			createdAt int64
		)
		if err := rows.Scan(&op.ID, &op.Wallet, &op.Direction, &op.Kind, &op.AssetID, &op.Amount, &op.Status, &op.TxID, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan operation")
		}
		op.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, op)
	}
	return out, errors.WithStack(rows.Err())
}
