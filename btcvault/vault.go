package btcvault

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
)

// UtxoLedger tracks the UTXOs owned by the bridge and whether an
// in-flight spend has reserved them.
//
// A reservation does not remove the UTXO. It is closed either by
// FinalizeSpent (tx broadcast, both records go) or by ReleaseReservation
// (spend failed, the UTXO is spendable again).
type UtxoLedger struct {
	backend LedgerStorage
	params  *chaincfg.Params
	now     func() time.Time

	// serializes select-then-reserve so two spends cannot pick the same utxo
	updateMu sync.Mutex
}

func NewUtxoLedger(backend LedgerStorage, params *chaincfg.Params, now func() time.Time) *UtxoLedger {
	if now == nil {
		now = time.Now
	}
	return &UtxoLedger{backend: backend, params: params, now: now}
}

// Deposit records utxos received at address. The locking script is derived
// from the address; re-depositing an outpoint overwrites it but keeps its
// asset tag.
func (l *UtxoLedger) Deposit(ctx context.Context, utxos []utxo.UTXO, address string, path common.DerivationPath) error {
	return l.deposit(ctx, utxos, address, path, "")
}

// DepositAsset records deposit outputs carrying the asset minted as token.
// They are only spent by a withdrawal of that asset.
func (l *UtxoLedger) DepositAsset(ctx context.Context, utxos []utxo.UTXO, address string, path common.DerivationPath, token common.Id256) error {
	return l.deposit(ctx, utxos, address, path, token.Hex())
}

func (l *UtxoLedger) deposit(ctx context.Context, utxos []utxo.UTXO, address string, path common.DerivationPath, assetToken string) error {
	addr, err := btcutil.DecodeAddress(address, l.params)
	if err != nil {
		return errors.Wrapf(errs.MalformedAddress, "address=%s: %v", address, err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return errors.Wrapf(errs.MalformedAddress, "address=%s: %v", address, err)
	}
	encodedPath, err := path.Encode()
	if err != nil {
		return err
	}

	for _, u := range utxos {
		if u.TxHash == nil {
			return errors.Newf("utxo %s:%d has no tx hash", u.TxID, u.Vout)
		}
		row := UtxoRecord{
			Key:            NewUtxoKey(*u.TxHash, u.Vout),
			Amount:         u.Amount,
			PkScript:       pkScript,
			DerivationPath: encodedPath,
			AssetToken:     assetToken,
		}
		if err := l.backend.UpsertUtxo(ctx, row); err != nil {
			return err
		}
	}

	logger.WithFields(logger.Fields{
		"address": address,
		"count":   len(utxos),
		"asset":   assetToken,
	}).Debug("utxos deposited")
	return nil
}

type loadOptions struct {
	filter UtxoFilter
}

type LoadOption func(*loadOptions)

// IncludeReserved makes LoadAll return reserved UTXOs too. Audit only.
func IncludeReserved() LoadOption {
	return func(o *loadOptions) { o.filter.IncludeReserved = true }
}

// FeeInputsOnly leaves out the UTXOs carrying an asset.
func FeeInputsOnly() LoadOption {
	return func(o *loadOptions) { o.filter.Untagged = true }
}

// LoadAll returns the spendable UTXOs as tx inputs, largest first.
// Reserved UTXOs are left out unless IncludeReserved is given.
func (l *UtxoLedger) LoadAll(ctx context.Context, opts ...LoadOption) ([]*utxo.UTXO, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	return l.load(ctx, o.filter)
}

func (l *UtxoLedger) load(ctx context.Context, f UtxoFilter) ([]*utxo.UTXO, error) {
	rows, err := l.backend.QueryUtxos(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]*utxo.UTXO, 0, len(rows))
	for _, row := range rows {
		u, err := toInput(row)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Reserve marks key as used by spender. NotFound if the ledger does not
// know the UTXO, UtxoUnavailable if it is already reserved.
func (l *UtxoLedger) Reserve(ctx context.Context, key UtxoKey, spender string) error {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	return l.reserveLocked(ctx, key, spender)
}

func (l *UtxoLedger) reserveLocked(ctx context.Context, key UtxoKey, spender string) error {
	return l.backend.InsertUsed(ctx, UsedUtxoRecord{
		Key:        key,
		ReservedAt: l.now(),
		Owner:      spender,
	})
}

// FinalizeSpent removes the UTXO and its reservation. Call it only once the
// spending tx is sent.
func (l *UtxoLedger) FinalizeSpent(ctx context.Context, key UtxoKey) error {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	return l.backend.DeleteSpent(ctx, key)
}

// ReleaseReservation returns the UTXO to the spendable pool.
func (l *UtxoLedger) ReleaseReservation(ctx context.Context, key UtxoKey) error {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	return l.backend.DeleteUsed(ctx, key)
}

// ListReserved returns all current reservations, oldest first.
func (l *UtxoLedger) ListReserved(ctx context.Context) ([]UsedUtxoRecord, error) {
	return l.backend.QueryAllUsed(ctx)
}

// SelectAndReserve picks unreserved UTXOs carrying no asset, largest first,
// until their sum covers target and reserves all of them for spender.
func (l *UtxoLedger) SelectAndReserve(ctx context.Context, target int64, spender string) ([]*utxo.UTXO, error) {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	candidates, err := l.load(ctx, UtxoFilter{Untagged: true})
	if err != nil {
		return nil, err
	}

	picked, err := utxo.SelectUtxo(candidates, target, 0)
	if err != nil {
		total := lo.SumBy(candidates, func(u *utxo.UTXO) int64 { return u.Amount })
		return nil, errors.Wrapf(errs.UtxoUnavailable, "target=%d spendable=%d", target, total)
	}
	if err := l.reserveAllLocked(ctx, picked, spender); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"target":  target,
		"inputs":  len(picked),
		"spender": spender,
	}).Debug("utxos reserved")
	return picked, nil
}

// ReserveAsset reserves every unreserved UTXO carrying the asset minted as
// token. The result is empty when the ledger holds none.
func (l *UtxoLedger) ReserveAsset(ctx context.Context, token common.Id256, spender string) ([]*utxo.UTXO, error) {
	l.updateMu.Lock()
	defer l.updateMu.Unlock()

	carriers, err := l.load(ctx, UtxoFilter{AssetToken: token.Hex()})
	if err != nil {
		return nil, err
	}
	if err := l.reserveAllLocked(ctx, carriers, spender); err != nil {
		return nil, err
	}
	return carriers, nil
}

// reserveAllLocked reserves all inputs or none of them.
func (l *UtxoLedger) reserveAllLocked(ctx context.Context, inputs []*utxo.UTXO, spender string) error {
	reserved := make([]UtxoKey, 0, len(inputs))
	for _, u := range inputs {
		key := NewUtxoKey(*u.TxHash, u.Vout)
		if err := l.reserveLocked(ctx, key, spender); err != nil {
			for _, k := range reserved {
				if rbErr := l.backend.DeleteUsed(ctx, k); rbErr != nil {
					logger.Errorf("failed to roll back reservation of %s: err=%v", k, rbErr)
				}
			}
			return err
		}
		reserved = append(reserved, key)
	}
	return nil
}

// Balance sums the unreserved UTXOs that carry no asset.
func (l *UtxoLedger) Balance(ctx context.Context) (int64, error) {
	return l.backend.SumMoney(ctx)
}

func toInput(row UtxoRecord) (*utxo.UTXO, error) {
	path, err := common.DecodeDerivationPath(row.DerivationPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "utxo %s", row.Key), errs.CorruptRecord)
	}
	txHash := row.Key.TxHash()
	return &utxo.UTXO{
		TxID:           txHash.String(),
		TxHash:         &txHash,
		Vout:           row.Key.Vout(),
		Amount:         row.Amount,
		PkScriptT:      utxo.ScriptType(row.PkScript),
		PkScript:       row.PkScript,
		DerivationPath: path,
	}, nil
}
