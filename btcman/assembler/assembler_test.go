package assembler

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

var params = &chaincfg.RegressionNetParams

var (
	receiverHash = common.RandBytes(20)
	receiver     = mustWitnessAddress(receiverHash, params)
)

func mustWitnessAddress(hash []byte, net *chaincfg.Params) string {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, net)
	if err != nil {
		panic(err)
	}
	return addr.EncodeAddress()
}

// fundedInput fakes an output of a previous tx paying amount to pkScript.
func fundedInput(t *testing.T, pkScript []byte, amount int64, path common.DerivationPath) *utxo.UTXO {
	prev := wire.NewMsgTx(wire.TxVersion)
	funding := chainhash.Hash(common.RandBytes32())
	prev.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&funding, 0), nil, nil))
	prev.AddTxOut(wire.NewTxOut(amount, pkScript))
	hash := prev.TxHash()
	return &utxo.UTXO{
		TxID:           hash.String(),
		TxHash:         &hash,
		Vout:           0,
		Amount:         amount,
		PkScriptT:      utxo.ScriptType(pkScript),
		PkScript:       pkScript,
		DerivationPath: path,
	}
}

func verifyInputs(t *testing.T, tx *wire.MsgTx, inputs []*utxo.UTXO) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range inputs {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(in.Amount, in.PkScript))
	}
	hashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range inputs {
		vm, err := txscript.NewEngine(in.PkScript, tx, i, txscript.StandardVerifyFlags, nil, hashes, in.Amount, fetcher)
		require.NoError(t, err)
		assert.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestMakeWithdrawTx(t *testing.T) {
	ctx := context.Background()
	signer := multisig.NewRandomLocalSigner()
	segwitPath := common.DerivationPath{[]byte("btc"), []byte("0")}
	legacyPath := common.DerivationPath{[]byte("btc"), []byte("1")}

	segwitAddr, err := multisig.BtcAddress(ctx, signer, segwitPath, params)
	require.NoError(t, err)
	segwitScript, err := txscript.PayToAddrScript(segwitAddr)
	require.NoError(t, err)

	legacyPub, err := signer.PublicKey(ctx, legacyPath)
	require.NoError(t, err)
	legacyAddr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(legacyPub.SerializeCompressed()), params)
	require.NoError(t, err)
	legacyScript, err := txscript.PayToAddrScript(legacyAddr)
	require.NoError(t, err)

	inputs := []*utxo.UTXO{
		fundedInput(t, segwitScript, 10_000, segwitPath),
		fundedInput(t, legacyScript, 5_000, legacyPath),
	}
	payload, err := txscript.NullDataScript([]byte("transfer"))
	require.NoError(t, err)

	ass := &Assembler{ChainConfig: params, Op: NewSignerOperator(signer)}
	tx, err := ass.MakeWithdrawTx(ctx, inputs, receiver, DustLimit, payload, segwitAddr.EncodeAddress(), 1_000)
	require.NoError(t, err)

	require.Len(t, tx.TxOut, 3)
	assert.Equal(t, int64(DustLimit), tx.TxOut[0].Value)
	assert.Equal(t, payload, tx.TxOut[1].PkScript)
	assert.Equal(t, int64(0), tx.TxOut[1].Value)
	assert.Equal(t, int64(15_000-DustLimit-1_000), tx.TxOut[2].Value)
	assert.Equal(t, segwitScript, tx.TxOut[2].PkScript)

	require.Len(t, tx.TxIn, 2)
	verifyInputs(t, tx, inputs)
}

func TestMakeWithdrawTxDropsDustChange(t *testing.T) {
	ctx := context.Background()
	signer := multisig.NewRandomLocalSigner()
	path := common.DerivationPath{[]byte("btc")}
	addr, err := multisig.BtcAddress(ctx, signer, path, params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	payload, err := txscript.NullDataScript([]byte("x"))
	require.NoError(t, err)

	ass := &Assembler{ChainConfig: params, Op: NewSignerOperator(signer)}
	inputs := []*utxo.UTXO{fundedInput(t, script, DustLimit+500+100, path)}
	tx, err := ass.MakeWithdrawTx(ctx, inputs, receiver, DustLimit, payload, addr.EncodeAddress(), 500)
	require.NoError(t, err)
	assert.Len(t, tx.TxOut, 2)
	verifyInputs(t, tx, inputs)
}

func TestMakeWithdrawTxErrors(t *testing.T) {
	ctx := context.Background()
	signer := multisig.NewRandomLocalSigner()
	path := common.DerivationPath{[]byte("btc")}
	addr, err := multisig.BtcAddress(ctx, signer, path, params)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	payload, err := txscript.NullDataScript([]byte("x"))
	require.NoError(t, err)
	ass := &Assembler{ChainConfig: params, Op: NewSignerOperator(signer)}

	// not enough money
	inputs := []*utxo.UTXO{fundedInput(t, script, 1_000, path)}
	_, err = ass.MakeWithdrawTx(ctx, inputs, receiver, DustLimit, payload, addr.EncodeAddress(), 1_000)
	assert.ErrorIs(t, err, errs.UtxoUnavailable)

	// mainnet address on regtest
	inputs = []*utxo.UTXO{fundedInput(t, script, 10_000, path)}
	_, err = ass.MakeWithdrawTx(ctx, inputs, mustWitnessAddress(receiverHash, &chaincfg.MainNetParams), DustLimit, payload, addr.EncodeAddress(), 1_000)
	assert.ErrorIs(t, err, errs.MalformedAddress)

	// wrong key for the input
	inputs = []*utxo.UTXO{fundedInput(t, script, 10_000, common.DerivationPath{[]byte("other")})}
	_, err = ass.MakeWithdrawTx(ctx, inputs, receiver, DustLimit, payload, addr.EncodeAddress(), 1_000)
	assert.ErrorIs(t, err, errs.SigningFailed)

	// postage below dust
	_, err = ass.MakeWithdrawTx(ctx, inputs, receiver, 100, payload, addr.EncodeAddress(), 1_000)
	assert.ErrorIs(t, err, errs.ValueTooSmall)

	// payload must be a data script
	_, err = ass.MakeWithdrawTx(ctx, inputs, receiver, DustLimit, script, addr.EncodeAddress(), 1_000)
	assert.Error(t, err)
}

func TestDecodeAddress(t *testing.T) {
	_, err := DecodeAddress(receiver, params)
	assert.NoError(t, err)
	_, err = DecodeAddress("not-an-address", params)
	assert.ErrorIs(t, err, errs.MalformedAddress)

	p, err := ChainParams("regtest")
	require.NoError(t, err)
	assert.Equal(t, params.Name, p.Name)
	_, err = ChainParams("moon")
	assert.Error(t, err)
}
