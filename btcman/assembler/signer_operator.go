package assembler

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

// SignerOperator unlocks P2WPKH and P2PKH outputs of the bridge with the
// threshold signer. The key of each input is found by its derivation path.
type SignerOperator struct {
	Signer multisig.Signer
}

func NewSignerOperator(signer multisig.Signer) *SignerOperator {
	return &SignerOperator{Signer: signer}
}

// Unlock operation generates the tx's inputs secion,
// with every previous output, make a witness or a SignatureScript (to unlock it).
// Warning: You should generate Locking Scripts (outputs) firstly on tx,
// then call this function to generate the inputs.
func (so *SignerOperator) Unlock(ctx context.Context, tx *wire.MsgTx, prevOutputs []*utxo.UTXO) (*wire.MsgTx, error) {
	// Both tx.TxIn[] and tx.TxOut[] shall be ready before any sighash is computed.
	prevFetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, item := range prevOutputs {
		outPoint := wire.NewOutPoint(item.TxHash, item.Vout)
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
		prevFetcher.AddPrevOut(*outPoint, wire.NewTxOut(item.Amount, item.PkScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, prevFetcher)

	for idx, item := range prevOutputs {
		pub, err := so.Signer.PublicKey(ctx, item.DerivationPath)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "input %d", idx), errs.SigningFailed)
		}

		switch utxo.ScriptType(item.PkScript) {
		case utxo.P2WPKH_SCRIPT_T:
			digest, err := txscript.CalcWitnessSigHash(item.PkScript, sigHashes, txscript.SigHashAll, tx, idx, item.Amount)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to calc witness sighash of input %d", idx)
			}
			sig, err := so.sign(ctx, item, pub, digest)
			if err != nil {
				return nil, err
			}
			tx.TxIn[idx].Witness = wire.TxWitness{sig, pub.SerializeCompressed()}
		case utxo.P2PKH_SCRIPT_T:
			digest, err := txscript.CalcSignatureHash(item.PkScript, txscript.SigHashAll, tx, idx)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to calc sighash of input %d", idx)
			}
			sig, err := so.sign(ctx, item, pub, digest)
			if err != nil {
				return nil, err
			}
			script, err := txscript.NewScriptBuilder().AddData(sig).AddData(pub.SerializeCompressed()).Script()
			if err != nil {
				return nil, errors.WithStack(err)
			}
			tx.TxIn[idx].SignatureScript = script
		default:
			return nil, errors.Newf("cannot unlock input %d: unsupported script %x", idx, item.PkScript)
		}
	}
	return tx, nil
}

// sign returns the DER signature with the sighash type appended.
func (so *SignerOperator) sign(ctx context.Context, item *utxo.UTXO, pub *btcec.PublicKey, digest []byte) ([]byte, error) {
	if !ownsScript(item.PkScript, pub) {
		return nil, errors.Mark(
			errors.Newf("key at path %s does not own %s:%d", item.DerivationPath, item.TxID, item.Vout),
			errs.SigningFailed)
	}
	sig, err := so.Signer.Sign(ctx, item.DerivationPath, digest)
	if err != nil {
		return nil, errors.Mark(err, errs.SigningFailed)
	}
	if !multisig.VerifySignature(pub, digest, sig) {
		return nil, errors.Mark(errors.New("signer returned an invalid signature"), errs.SigningFailed)
	}
	der, err := multisig.ToDER(sig)
	if err != nil {
		return nil, errors.Mark(err, errs.SigningFailed)
	}
	return append(der, byte(txscript.SigHashAll)), nil
}

func ownsScript(pkScript []byte, pub *btcec.PublicKey) bool {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	switch utxo.ScriptType(pkScript) {
	case utxo.P2WPKH_SCRIPT_T:
		return string(pkScript[2:22]) == string(hash)
	case utxo.P2PKH_SCRIPT_T:
		return string(pkScript[3:23]) == string(hash)
	default:
		return false
	}
}
