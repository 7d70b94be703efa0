package etherman

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

func randBurnt() *agreement.BurntEvent {
	return &agreement.BurntEvent{
		Sender:      common.RandEthAddress(),
		Amount:      big.NewInt(990),
		FromERC20:   common.RandEthAddress(),
		RecipientID: []byte("bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080"),
		ToToken:     ethcommon.Hash(common.Id256FromAsset("brc20", "ordi")),
		OperationID: 42,
		Name:        common.RandBytes32(),
		Symbol:      []byte("ORDI\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"),
		Decimals:    18,
	}
}

func randMinted() *agreement.MintedEvent {
	return &agreement.MintedEvent{
		Amount:     big.NewInt(990),
		FromToken:  ethcommon.Hash(common.Id256FromAsset("brc20", "ordi")),
		SenderID:   common.RandBytes32(),
		ToERC20:    common.RandEthAddress(),
		Recipient:  common.RandEthAddress(),
		Nonce:      7,
		ChargedFee: big.NewInt(10),
	}
}

func TestParseLog(t *testing.T) {
	burnt := randBurnt()
	data, err := PackBurntEvent(burnt)
	require.NoError(t, err)

	bn := uint64(12)
	ev, err := ParseLog(&types.Log{
		Topics:      []ethcommon.Hash{BurntSignatureHash},
		Data:        data,
		BlockNumber: bn,
		BlockHash:   ethcommon.Hash(common.RandBytes32()),
	})
	require.NoError(t, err)
	got, ok := ev.(*agreement.BurntEvent)
	require.True(t, ok)
	assert.Equal(t, burnt.Sender, got.Sender)
	assert.Equal(t, 0, burnt.Amount.Cmp(got.Amount))
	assert.Equal(t, burnt.RecipientID, got.RecipientID)
	assert.Equal(t, burnt.ToToken, got.ToToken)
	assert.Equal(t, burnt.OperationID, got.OperationID)
	assert.Equal(t, burnt.Symbol, got.Symbol)
	require.NotNil(t, got.BlockNumber)
	assert.Equal(t, bn, *got.BlockNumber)

	minted := randMinted()
	data, err = PackMintedEvent(minted)
	require.NoError(t, err)
	ev, err = ParseLog(&types.Log{Topics: []ethcommon.Hash{MintedSignatureHash}, Data: data})
	require.NoError(t, err)
	gotMinted, ok := ev.(*agreement.MintedEvent)
	require.True(t, ok)
	assert.Equal(t, minted.Nonce, gotMinted.Nonce)
	assert.Equal(t, minted.SenderID, gotMinted.SenderID)
	assert.Nil(t, gotMinted.BlockNumber)
}

func TestParseLogUnknownTopic(t *testing.T) {
	_, err := ParseLog(&types.Log{Topics: []ethcommon.Hash{common.RandBytes32()}})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = ParseLog(&types.Log{})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestFilterLogsFromChain(t *testing.T) {
	sim := NewSimulatedChain(1)
	defer sim.Backend.Close()
	etherman := NewEthermanWithClient(sim.Backend.Client(), &Config{
		BridgeContractAddress: sim.BridgeAddress,
		Confirmations:         1,
	})

	burnt := randBurnt()
	data, err := PackBurntEvent(burnt)
	require.NoError(t, err)
	_, err = sim.EmitLog(0, BurntSignatureHash, data)
	require.NoError(t, err)

	data, err = PackMintedEvent(randMinted())
	require.NoError(t, err)
	_, err = sim.EmitLog(0, MintedSignatureHash, data)
	require.NoError(t, err)
	sim.Backend.Commit()
	sim.Backend.Commit()

	ctx := context.Background()
	safe, err := etherman.SafeBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), safe)

	logs, err := etherman.FilterLogs(ctx, 0, safe)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	ev, err := ParseLog(&logs[0])
	require.NoError(t, err)
	got := ev.(*agreement.BurntEvent)
	assert.Equal(t, burnt.OperationID, got.OperationID)
	require.NotNil(t, got.BlockNumber)
	assert.Equal(t, uint64(1), *got.BlockNumber)

	ev, err = ParseLog(&logs[1])
	require.NoError(t, err)
	assert.IsType(t, &agreement.MintedEvent{}, ev)

	// other addresses are not watched
	etherman.SetBridgeAddress(common.RandEthAddress())
	logs, err = etherman.FilterLogs(ctx, 0, safe)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSendMintTransaction(t *testing.T) {
	ctx := context.Background()
	signer := multisig.NewRandomLocalSigner()
	path := common.DerivationPath{[]byte("evm")}
	addr, err := multisig.EvmAddress(ctx, signer, path)
	require.NoError(t, err)

	sim := NewSimulatedChain(0, addr)
	defer sim.Backend.Close()
	etherman := NewEthermanWithClient(sim.Backend.Client(), &Config{
		BridgeContractAddress: sim.BridgeAddress,
	})

	params, err := etherman.QueryEvmParams(ctx, addr, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), params.NextBlock)
	assert.Equal(t, uint64(0), params.Nonce)
	assert.Equal(t, 0, params.ChainID.Cmp(simulatedChainID))

	tx, err := etherman.MintTransaction(common.RandBytes(334), params)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultMintGasLimit), tx.Gas())

	signed, err := SignTransaction(ctx, signer, path, tx, params.ChainID)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(params.ChainID), signed)
	require.NoError(t, err)
	assert.Equal(t, addr, from)

	require.NoError(t, etherman.SendRawTx(ctx, signed))
	sim.Backend.Commit()

	receipt, err := sim.Backend.Client().TransactionReceipt(ctx, signed.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	nonce, err := etherman.PendingNonceAt(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}
