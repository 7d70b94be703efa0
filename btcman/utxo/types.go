/*
This file contains low-level custom data structures used accross the program related to bitcoin.
  - PubKeyScriptType: the locking script type (as part of UTXO)
  - UTXO, the unspend transaction output.
*/
package utxo

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/TEENet-io/inscription-bridge/common"
)

// PubKeyScript (LockingScript) type
type PubKeyScriptType int

// Enumerate of PubKeyScriptType
const (
	ANY_SCRIPT_T = iota
	P2PKH_SCRIPT_T
	P2WPKH_SCRIPT_T
	P2TR_SCRIPT_T
)

// Represents the unspent transaction output (UTXO)
// in our program
type UTXO struct {
	TxID           string                // Identifier, human readable
	TxHash         *chainhash.Hash       // Identifier, used for tx search
	Vout           uint32                // exact index of the Tx's outputs to be spent
	Amount         int64                 // in satoshi
	PkScriptT      PubKeyScriptType      // Type of the locking script
	PkScript       []byte                // Locking Script itself
	DerivationPath common.DerivationPath // key path the signer uses to unlock it
}

// ScriptType classifies a locking script.
func ScriptType(pkScript []byte) PubKeyScriptType {
	switch {
	case txscript.IsPayToPubKeyHash(pkScript):
		return P2PKH_SCRIPT_T
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return P2WPKH_SCRIPT_T
	case txscript.IsPayToTaproot(pkScript):
		return P2TR_SCRIPT_T
	default:
		return ANY_SCRIPT_T
	}
}
