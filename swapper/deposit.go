package swapper

import (
	"bytes"
	"context"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/etherman"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/metrics"
	"github.com/TEENet-io/inscription-bridge/mintorder"
	"github.com/TEENet-io/inscription-bridge/state"
)

type DepositRequest struct {
	Kind inscription.Kind
	TxID string
	// Ticker, when given, must match the deposited asset id.
	Ticker     string
	DstAddress ethcommon.Address
}

// Deposit turns the inscription revealed in req.TxID into a signed mint
// order for req.DstAddress and tries to send it to the bridge contract.
func (s *Swapper) Deposit(ctx context.Context, req *DepositRequest) (MintResult, error) {
	newLogger := logger.WithFields(logger.Fields{
		"kind": req.Kind,
		"txid": req.TxID,
		"dst":  req.DstAddress.Hex(),
	})

	res, err := s.deposit(ctx, req, newLogger)
	if err != nil {
		newLogger.Errorf("failed to deposit: err=%v", err)
		metrics.Deposits.WithLabelValues(string(req.Kind), "failed").Inc()
		return nil, err
	}
	switch res.(type) {
	case *Minted:
		metrics.Deposits.WithLabelValues(string(req.Kind), string(state.OpMinted)).Inc()
	case *Signed:
		metrics.Deposits.WithLabelValues(string(req.Kind), string(state.OpSigned)).Inc()
	}
	return res, nil
}

func (s *Swapper) deposit(ctx context.Context, req *DepositRequest, newLogger *logger.Entry) (MintResult, error) {
	if req.DstAddress == (ethcommon.Address{}) {
		return nil, errs.Permanent(errors.Wrap(errs.MalformedAddress, "empty destination address"))
	}
	params, err := s.params.Get()
	if err != nil {
		return nil, err
	}
	asset, err := s.assets.Get(req.Kind)
	if err != nil {
		return nil, errs.Permanent(err)
	}

	// 1. the deposit tx
	tx, err := s.indexer.GetTransaction(ctx, req.TxID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch deposit tx %s", req.TxID)
	}
	txid := tx.TxHash()
	outputs, err := s.outputsToBridge(tx)
	if err != nil {
		return nil, errs.Permanent(err)
	}

	// 2. parse and validate
	ins, err := asset.ParseInscription(tx)
	if err != nil {
		return nil, errs.Permanent(err)
	}
	if err := asset.Validate(ins); err != nil {
		return nil, errs.Permanent(err)
	}
	if req.Ticker != "" && !strings.EqualFold(req.Ticker, ins.AssetID) {
		return nil, errs.Permanent(errors.Wrapf(errs.InvalidInscription, "ticker %s does not match %s", req.Ticker, ins.AssetID))
	}
	srcToken := common.Id256FromAsset(string(ins.Kind), ins.AssetID)

	// 3. a deposit tx mints once, a non fungible asset is held once
	if known, found, err := s.store.GetDeposit(ctx, txid.String()); err != nil {
		return nil, err
	} else if found {
		return nil, errs.Permanent(errors.Wrapf(errs.InvalidInscription, "tx %s already deposited at nonce %d", txid, known.Nonce))
	}
	if !asset.Fungible() {
		_, held, err := s.store.GetInscription(ctx, srcToken)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, errs.Permanent(errors.Wrapf(errs.InvalidInscription, "%s is already bridged", ins.AssetID))
		}
	}

	// 4. fee
	amount := new(big.Int).Set(ins.Amount)
	if asset.Fungible() {
		fee := s.MinterFee()
		if fee.Cmp(amount) > 0 {
			return nil, errs.Permanent(errors.Wrapf(errs.ValueTooSmall, "amount=%s fee=%s", amount, fee))
		}
		amount.Sub(amount, fee)
	}

	// 5. nonce
	nonce, err := s.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}

	// 6. build and sign
	sender := common.Id256FromEvmAddress(req.DstAddress, s.cfg.BtcChainID)
	order := &mintorder.MintOrder{
		Amount:           amount,
		Sender:           sender,
		SrcToken:         srcToken,
		Recipient:        req.DstAddress,
		DstToken:         s.cfg.DstToken,
		Nonce:            nonce,
		SenderChainID:    s.cfg.BtcChainID,
		RecipientChainID: uint32(params.ChainID.Uint64()),
		Name:             mintorder.Name32(lo.Ternary(s.cfg.TokenName != "", s.cfg.TokenName, ins.Symbol)),
		Symbol:           mintorder.Symbol16(lo.Ternary(s.cfg.TokenSymbol != "", s.cfg.TokenSymbol, ins.Symbol)),
		Decimals:         s.cfg.Decimals,
	}
	signed, err := order.Sign(ctx, s.signer, s.cfg.EvmPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign mint order")
	}

	// 7. keep the outputs carrying the asset away from fee selection
	if asset.Carried() && len(outputs) > 0 {
		if err := s.ledger.DepositAsset(ctx, outputs, s.cfg.DepositAddress, s.cfg.DepositPath, srcToken); err != nil {
			return nil, err
		}
	}

	// 8. store the order, the inscription and the deposit marker together
	err = s.store.CommitDeposit(ctx, &state.DepositRecord{
		TxID:   txid.String(),
		Token:  srcToken,
		Sender: sender,
		Nonce:  nonce,
	}, signed, &state.InscriptionRecord{
		Token:    srcToken,
		Kind:     string(ins.Kind),
		AssetID:  ins.AssetID,
		RevealTx: ins.RevealTx,
		Amount:   ins.Amount.String(),
	})
	if err != nil {
		return nil, err
	}
	newLogger = newLogger.WithFields(logger.Fields{"nonce": nonce, "amount": amount})
	newLogger.Debug("mint order signed")

	// 9. send
	op := &state.Operation{
		Wallet:    req.DstAddress.Hex(),
		Direction: state.DirectionDeposit,
		Kind:      string(ins.Kind),
		AssetID:   ins.AssetID,
		Amount:    amount.String(),
	}
	txHash, err := s.sendMint(ctx, signed, params)
	if err != nil {
		newLogger.Warnf("mint order left for manual sending: err=%v", err)
		op.Status, op.TxID = state.OpSigned, req.TxID
		s.recordOperation(ctx, op)
		return &Signed{Order: signed}, nil
	}

	newLogger.WithField("mintTx", txHash.Hex()).Info("minted")
	op.Status, op.TxID = state.OpMinted, txHash.Hex()
	s.recordOperation(ctx, op)
	return &Minted{Amount: amount, TxHash: txHash}, nil
}

// sendMint sends the mint tx with a snapshot of params and advances the
// account nonce once the node accepted it.
func (s *Swapper) sendMint(ctx context.Context, signed mintorder.SignedMintOrder, params *agreement.EvmParams) (ethcommon.Hash, error) {
	tx, err := s.evm.MintTransaction(signed, params)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	tx, err = etherman.SignTransaction(ctx, s.signer, s.cfg.EvmPath, tx, params.ChainID)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if err := s.evm.SendRawTx(ctx, tx); err != nil {
		return ethcommon.Hash{}, err
	}

	used := params.Nonce
	err = s.params.Update(ctx, func(p *agreement.EvmParams) bool {
		if p.Nonce != used {
			return false
		}
		p.Nonce = used + 1
		return true
	})
	if err != nil {
		logger.Errorf("failed to advance evm nonce after tx %s: err=%v", tx.Hash(), err)
	}
	return tx.Hash(), nil
}

// outputsToBridge lists the outputs of tx paying the deposit address. It
// fails when there is none. Without a deposit address nothing is checked.
func (s *Swapper) outputsToBridge(tx *wire.MsgTx) ([]utxo.UTXO, error) {
	if s.cfg.DepositAddress == "" {
		return nil, nil
	}
	addr, err := btcutil.DecodeAddress(s.cfg.DepositAddress, s.cfg.BtcParams)
	if err != nil {
		return nil, errors.Wrapf(errs.MalformedAddress, "deposit address %s: %v", s.cfg.DepositAddress, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, errors.Wrapf(errs.MalformedAddress, "deposit address %s: %v", s.cfg.DepositAddress, err)
	}

	txHash := tx.TxHash()
	var outputs []utxo.UTXO
	for i, out := range tx.TxOut {
		if !bytes.Equal(out.PkScript, script) {
			continue
		}
		outputs = append(outputs, utxo.UTXO{
			TxID:      txHash.String(),
			TxHash:    &txHash,
			Vout:      uint32(i),
			Amount:    out.Value,
			PkScriptT: utxo.ScriptType(out.PkScript),
			PkScript:  out.PkScript,
		})
	}
	if len(outputs) == 0 {
		return nil, errors.Wrapf(errs.InvalidInscription, "tx %s does not pay the bridge", txHash)
	}
	return outputs, nil
}

func (s *Swapper) recordOperation(ctx context.Context, op *state.Operation) {
	if err := s.store.RecordOperation(ctx, op); err != nil {
		logger.Errorf("failed to record %s operation of %s: err=%v", op.Direction, op.Wallet, err)
	}
}
