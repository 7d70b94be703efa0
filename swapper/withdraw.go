package swapper

import (
	"bytes"
	"context"
	"math/big"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/btcman/assembler"
	"github.com/TEENet-io/inscription-bridge/btcman/utils"
	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/metrics"
	"github.com/TEENet-io/inscription-bridge/state"
)

// WithdrawRequest moves Amount of the asset minted as ToToken to the
// bitcoin address Recipient. RequestID keys the burn bookkeeping.
type WithdrawRequest struct {
	RequestID uint32
	ToToken   common.Id256
	Recipient string
	Amount    *big.Int
	Wallet    string // evm account that burnt the wrapped tokens
}

// WithdrawRequestFromEvent maps a Burnt log to a withdrawal.
func WithdrawRequestFromEvent(ev *agreement.BurntEvent) *WithdrawRequest {
	return &WithdrawRequest{
		RequestID: ev.OperationID,
		ToToken:   common.Id256(ev.ToToken),
		Recipient: string(ev.RecipientID),
		Amount:    ev.Amount,
		Wallet:    ev.Sender.Hex(),
	}
}

// Withdraw sends the asset back on the bitcoin side and returns the txid.
// A request is paid at most once: a repeated call returns the tx sent
// before. Errors marked permanent will fail the same way on every retry.
func (s *Swapper) Withdraw(ctx context.Context, req *WithdrawRequest) (*chainhash.Hash, error) {
	newLogger := logger.WithFields(logger.Fields{
		"requestID": req.RequestID,
		"recipient": req.Recipient,
		"amount":    req.Amount,
	})

	prior, built, err := s.store.GetWithdrawalTx(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if built && prior.Sent {
		// sent before, only the cleanup failed
		newLogger.WithField("btcTx", prior.TxID).Info("burn request already transferred")
		if err := s.store.RemoveBurnRequest(ctx, req.RequestID); err != nil {
			return nil, err
		}
		return chainhash.NewHashFromStr(prior.TxID)
	}

	// 1. decode recipient and asset
	rec, asset, payload, err := s.decodeWithdraw(ctx, req)
	if err != nil {
		newLogger.Errorf("rejected withdrawal: err=%v", err)
		metrics.Withdrawals.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}
	newLogger = newLogger.WithField("asset", rec.AssetID)

	if err := s.store.InsertBurnRequest(ctx, req.RequestID, req.Recipient, rec.AssetID); err != nil {
		return nil, err
	}

	// 2. the tx: rebuilt from the record of an interrupted attempt, or
	// built on freshly reserved inputs
	var (
		tx   *wire.MsgTx
		keys []btcvault.UtxoKey
	)
	if built {
		tx, err = decodeTx(prior.Raw)
		if err != nil {
			return nil, errs.Permanent(errors.Mark(errors.Wrapf(err, "withdrawal tx of request %d", req.RequestID), errs.CorruptRecord))
		}
		keys = lo.Map(tx.TxIn, func(in *wire.TxIn, _ int) btcvault.UtxoKey {
			return btcvault.NewUtxoKey(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		})
		newLogger.WithField("btcTx", prior.TxID).Warn("rebroadcasting withdraw tx of an interrupted attempt")
	} else {
		tx, keys, err = s.buildWithdraw(ctx, req, rec, asset, payload)
		if err != nil {
			newLogger.Errorf("failed to build withdraw tx: err=%v", err)
			metrics.Withdrawals.WithLabelValues(rec.Kind, string(state.OpFailed)).Inc()
			return nil, err
		}
	}

	// 3. send
	txHash, err := s.btc.SendRawTx(ctx, tx)
	switch {
	case err == nil:
	case built && errors.Is(err, errs.AlreadyOnChain):
		h := tx.TxHash()
		txHash = &h
	case built:
		// the tx may be out already, so its inputs stay reserved
		newLogger.Errorf("failed to rebroadcast withdraw tx: err=%v", err)
		metrics.Withdrawals.WithLabelValues(rec.Kind, string(state.OpFailed)).Inc()
		return nil, err
	default:
		// 5. give the inputs back, the scheduler retries later
		if rmErr := s.store.RemoveWithdrawalTx(ctx, req.RequestID); rmErr != nil {
			newLogger.Errorf("failed to drop unsent withdraw tx: err=%v", rmErr)
			return nil, errors.CombineErrors(err, rmErr)
		}
		s.release(ctx, keys)
		newLogger.Errorf("failed to send withdraw tx: err=%v", err)
		metrics.Withdrawals.WithLabelValues(rec.Kind, string(state.OpFailed)).Inc()
		return nil, err
	}
	newLogger = newLogger.WithField("btcTx", txHash.String())
	if err := s.store.SetWithdrawalSent(ctx, req.RequestID); err != nil {
		return nil, err
	}

	// 4. bookkeeping
	for _, key := range keys {
		if err := s.ledger.FinalizeSpent(ctx, key); err != nil {
			newLogger.Errorf("failed to finalize spent utxo %s: err=%v", key, err)
		}
	}
	if !built {
		metrics.ReservedUtxos.Sub(float64(len(keys)))
	}
	if asset.Carried() && asset.Fungible() {
		s.keepAssetChange(ctx, tx, rec.Token, newLogger)
	}

	if err := s.store.SetBurnTransferred(ctx, req.RequestID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveBurnRequest(ctx, req.RequestID); err != nil {
		return nil, err
	}
	if !asset.Fungible() {
		if err := s.store.RemoveInscription(ctx, rec.Token); err != nil {
			newLogger.Errorf("failed to remove inscription record: err=%v", err)
		}
	}

	s.recordOperation(ctx, &state.Operation{
		Wallet:    req.Wallet,
		Direction: state.DirectionWithdrawal,
		Kind:      rec.Kind,
		AssetID:   rec.AssetID,
		Amount:    req.Amount.String(),
		Status:    state.OpTransferred,
		TxID:      txHash.String(),
	})
	metrics.Withdrawals.WithLabelValues(rec.Kind, string(state.OpTransferred)).Inc()
	newLogger.Info("withdrawn")
	return txHash, nil
}

// buildWithdraw reserves the inputs of a withdrawal, signs the tx and
// records it as unsent. Nothing stays reserved when it fails.
func (s *Swapper) buildWithdraw(
	ctx context.Context,
	req *WithdrawRequest,
	rec *state.InscriptionRecord,
	asset inscription.Asset,
	payload []byte,
) (*wire.MsgTx, []btcvault.UtxoKey, error) {
	fee := s.estimateFee(ctx)
	inputs, err := s.reserveInputs(ctx, req.Recipient, rec.Token, asset, fee)
	if err != nil {
		return nil, nil, err
	}
	metrics.ReservedUtxos.Add(float64(len(inputs)))
	keys := lo.Map(inputs, func(u *utxo.UTXO, _ int) btcvault.UtxoKey {
		return btcvault.NewUtxoKey(*u.TxHash, u.Vout)
	})

	tx, err := s.builder.MakeWithdrawTx(ctx, inputs, req.Recipient, s.cfg.Postage, payload, s.cfg.DepositAddress, fee)
	if err != nil {
		s.release(ctx, keys)
		return nil, nil, err
	}
	raw, err := encodeTx(tx)
	if err == nil {
		err = s.store.PutWithdrawalTx(ctx, &state.WithdrawalTx{
			RequestID: req.RequestID,
			TxID:      tx.TxHash().String(),
			Raw:       raw,
		})
	}
	if err != nil {
		s.release(ctx, keys)
		return nil, nil, err
	}
	return tx, keys, nil
}

// reserveInputs reserves postage plus fee. An asset living in UTXOs is
// spent from all of its carriers, placed first so it lands on the
// recipient output, and the fee inputs only make up the difference.
func (s *Swapper) reserveInputs(ctx context.Context, spender string, token common.Id256, asset inscription.Asset, fee int64) ([]*utxo.UTXO, error) {
	if !asset.Carried() {
		return s.ledger.SelectAndReserve(ctx, s.cfg.Postage+fee, spender)
	}

	carriers, err := s.ledger.ReserveAsset(ctx, token, spender)
	if err != nil {
		return nil, err
	}
	if len(carriers) == 0 {
		return nil, errors.Wrapf(errs.UtxoUnavailable, "no utxo carries %s", token)
	}
	carried := lo.SumBy(carriers, func(u *utxo.UTXO) int64 { return u.Amount })
	// change keeps at least the dust limit so a fungible remainder has an
	// output to go to
	target := s.cfg.Postage + fee + assembler.DustLimit - carried
	if target <= 0 {
		return carriers, nil
	}
	feeInputs, err := s.ledger.SelectAndReserve(ctx, target, spender)
	if err != nil {
		s.unreserve(ctx, lo.Map(carriers, func(u *utxo.UTXO, _ int) btcvault.UtxoKey {
			return btcvault.NewUtxoKey(*u.TxHash, u.Vout)
		}))
		return nil, err
	}
	return append(carriers, feeInputs...), nil
}

// keepAssetChange records the change output of a withdraw tx as a carrier
// of the asset remainder.
func (s *Swapper) keepAssetChange(ctx context.Context, tx *wire.MsgTx, token common.Id256, newLogger *logger.Entry) {
	if len(tx.TxOut) <= inscription.ChangeOutput {
		return
	}
	txHash := tx.TxHash()
	change := utxo.UTXO{
		TxID:     txHash.String(),
		TxHash:   &txHash,
		Vout:     inscription.ChangeOutput,
		Amount:   tx.TxOut[inscription.ChangeOutput].Value,
		PkScript: tx.TxOut[inscription.ChangeOutput].PkScript,
	}
	if err := s.ledger.DepositAsset(ctx, []utxo.UTXO{change}, s.cfg.DepositAddress, s.cfg.DepositPath, token); err != nil {
		newLogger.Errorf("failed to record asset change %s:%d: err=%v", txHash, inscription.ChangeOutput, err)
	}
}

func encodeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to serialize withdraw tx")
	}
	return buf.Bytes(), nil
}

func decodeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize withdraw tx")
	}
	return tx, nil
}

func (s *Swapper) decodeWithdraw(ctx context.Context, req *WithdrawRequest) (*state.InscriptionRecord, inscription.Asset, []byte, error) {
	if _, err := assembler.DecodeAddress(req.Recipient, s.cfg.BtcParams); err != nil {
		return nil, nil, nil, errs.Permanent(err)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, nil, nil, errs.Permanent(errors.Wrap(errs.ValueTooSmall, "nothing to withdraw"))
	}

	rec, ok, err := s.store.GetInscription(ctx, req.ToToken)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, errs.Permanent(errors.Wrapf(errs.InvalidInscription, "unknown token %s", req.ToToken))
	}
	kind, err := inscription.ParseKind(rec.Kind)
	if err != nil {
		return nil, nil, nil, errs.Permanent(err)
	}
	asset, err := s.assets.Get(kind)
	if err != nil {
		return nil, nil, nil, errs.Permanent(err)
	}
	payload, err := asset.EncodeForTransfer(rec.AssetID, req.Amount)
	if err != nil {
		return nil, nil, nil, errs.Permanent(err)
	}
	return rec, asset, payload, nil
}

func (s *Swapper) release(ctx context.Context, keys []btcvault.UtxoKey) {
	s.unreserve(ctx, keys)
	metrics.ReservedUtxos.Sub(float64(len(keys)))
}

func (s *Swapper) unreserve(ctx context.Context, keys []btcvault.UtxoKey) {
	for _, key := range keys {
		if err := s.ledger.ReleaseReservation(ctx, key); err != nil {
			logger.Errorf("failed to release utxo %s: err=%v", key, err)
		}
	}
}

// estimateFee prices a withdraw tx at the median fee rate of the last
// block, or the configured rate when the node has none.
func (s *Swapper) estimateFee(ctx context.Context) int64 {
	rate := s.cfg.FeeRate
	if percentiles, err := s.btc.FeeRatePercentiles(ctx); err != nil {
		logger.Warnf("failed to get fee rate percentiles: err=%v", err)
	} else if len(percentiles) > 0 {
		sorted := slices.Clone(percentiles)
		slices.Sort(sorted)
		rate = sorted[len(sorted)/2]
	}
	return utils.FeeFor(s.cfg.WithdrawVsize, rate)
}
