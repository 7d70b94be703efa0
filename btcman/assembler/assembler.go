package assembler

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/errs"
)

// DustLimit is the smallest output value relayed for any standard script.
const DustLimit = 546

type Assembler struct {
	ChainConfig *chaincfg.Params // which BTC chain it is on. (mainnet, testnet, regtest)
	Op          Unlocker         // can do unlocking scripts on a btc transaction.
}

// craftWithdrawOutput creates the outputs of a withdraw Tx.
// output #1, postage to the user receiver. The transferred asset lands here.
// output #2, the transfer payload script (OP_RETURN).
// output #3, satoshi to our change receiver.
func (myAss *Assembler) craftWithdrawOutput(
	tx *wire.MsgTx,
	prevOutputs []*utxo.UTXO, // UTXO(s) to spend from.
	dst_addr string, // receiver
	postage int64, // btc amount to receiver in satoshi
	payloadScript []byte, // OP_RETURN script describing the transfer
	change_addr string, // receiver to receive the change
	fee_amount int64, // amount of mining fee in satoshi
) (*wire.MsgTx, error) {
	if postage < DustLimit {
		return nil, errors.Mark(errors.Newf("postage %d below dust limit %d", postage, DustLimit), errs.ValueTooSmall)
	}

	var sum int64
	for _, item := range prevOutputs {
		sum += item.Amount
	}
	// Calc change_amount
	change_amount := sum - postage - fee_amount
	if change_amount < 0 {
		return nil, errors.Mark(
			errors.Newf("change_amount < 0, sum: %d, postage: %d, fee_amount: %d", sum, postage, fee_amount),
			errs.UtxoUnavailable)
	}

	// 1st output: to the dst receiver
	tx, err := AppendPayToAddress(tx, myAss.ChainConfig, dst_addr, postage)
	if err != nil {
		return nil, err
	}

	// 2nd output: transfer payload
	tx, err = AppendDataScript(tx, payloadScript)
	if err != nil {
		return nil, err
	}

	// 3rd output: to the change receiver.
	// Change below the dust limit is left to the miner.
	if change_amount >= DustLimit {
		tx, err = AppendPayToAddress(tx, myAss.ChainConfig, change_addr, change_amount)
		if err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// MakeWithdrawTx makes a raw tx that moves an inscription asset to dst_addr.
// It takes care of both locking + unlocking.
// After deduction of postage and mining fee, keep the change to change_addr.
// You need to send the Tx later via RPC.
func (myAss *Assembler) MakeWithdrawTx(
	ctx context.Context,
	prevOutputs []*utxo.UTXO,
	dst_addr string,
	postage int64,
	payloadScript []byte,
	change_addr string,
	fee_amount int64,
) (*wire.MsgTx, error) {
	if len(prevOutputs) == 0 {
		return nil, errors.Mark(errors.New("no inputs to spend"), errs.UtxoUnavailable)
	}

	// Create a new transaction
	tx := wire.NewMsgTx(wire.TxVersion)

	// Stuff the locking scripts first.
	tx, err := myAss.craftWithdrawOutput(
		tx,
		prevOutputs,
		dst_addr,
		postage,
		payloadScript,
		change_addr,
		fee_amount,
	)
	if err != nil {
		return nil, err
	}

	// Stuff the unlocking scripts, secondly.
	return myAss.Op.Unlock(ctx, tx, prevOutputs)
}
