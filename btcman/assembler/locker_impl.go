package assembler

/*
This file implements the "locking" side of a Tx.

Since locking scripts do not require any prior knowledge of private keys,
it is universal to all signer implementations.
*/

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/errs"
)

// AppendPayToAddress adds an output paying amount satoshi to dst_addr.
// (cannot be type of script address, though)
func AppendPayToAddress(tx *wire.MsgTx, dst_chain_cfg *chaincfg.Params, dst_addr string, amount int64) (*wire.MsgTx, error) {
	btcDstAddress, err := btcutil.DecodeAddress(dst_addr, dst_chain_cfg)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "address %q", dst_addr), errs.MalformedAddress)
	}
	if !btcDstAddress.IsForNet(dst_chain_cfg) {
		return nil, errors.Mark(errors.Newf("address %q is not for %s", dst_addr, dst_chain_cfg.Name), errs.MalformedAddress)
	}

	txOutScript, err := txscript.PayToAddrScript(btcDstAddress) // simple
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "address %q", dst_addr), errs.MalformedAddress)
	}
	tx.AddTxOut(wire.NewTxOut(amount, txOutScript))
	return tx, nil
}

// AppendDataScript adds a zero value output with an already built
// OP_RETURN script, such as a transfer payload or a runestone.
func AppendDataScript(tx *wire.MsgTx, script []byte) (*wire.MsgTx, error) {
	if len(script) == 0 || script[0] != txscript.OP_RETURN {
		return nil, errors.New("data script must start with OP_RETURN")
	}
	tx.AddTxOut(wire.NewTxOut(0, script)) // No value for OP_RETURN
	return tx, nil
}
