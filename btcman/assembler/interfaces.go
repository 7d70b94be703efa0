/*
Unlocker is the interface that a tx assembler shall satisfy.

By implementing Unlocker, the tx assembler
can unlock UTXOs (inputs) previously received.

Remember:
Always create the "lock" part firstly on Tx, then create the "unlock" part on Tx.
Otherwise the Tx verfication may fail.
*/
package assembler

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
)

// Unlocker defines the actions
// that produce the "unlocking" part of a Tx (aka the inputs).
// Call Unlock() on a list of UTXO to unlock them (produce valid signature to spend each UTXO)
type Unlocker interface {
	// Given a list of UTXO(s), unlock each UTXO and add to unlocking section of MsgTx.
	// How to unlock? it depends on the specific wallet implementation.
	Unlock(ctx context.Context, tx *wire.MsgTx, prevOutputs []*utxo.UTXO) (*wire.MsgTx, error)
}
