package mintorder

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

func testOrder() *MintOrder {
	recipient := common.RandEthAddress()
	return &MintOrder{
		Amount:           big.NewInt(990),
		Sender:           common.Id256FromEvmAddress(recipient, 1337),
		SrcToken:         common.Id256FromAsset("brc20", "ordi"),
		Recipient:        recipient,
		DstToken:         common.RandEthAddress(),
		Nonce:            7,
		SenderChainID:    0,
		RecipientChainID: 1337,
		Name:             Name32("ordi"),
		Symbol:           Symbol16("ORDI"),
		Decimals:         18,
	}
}

func TestEncodeLayout(t *testing.T) {
	o := testOrder()
	b, err := o.Encode()
	require.NoError(t, err)
	require.Len(t, b, EncodedLen)

	assert.Equal(t, byte(0x03), b[30])
	assert.Equal(t, byte(0xde), b[31])
	assert.Equal(t, o.Sender[:], b[32:64])
	assert.Equal(t, o.SrcToken[:], b[64:96])
	assert.Equal(t, o.Recipient.Bytes(), b[96:116])
	assert.Equal(t, []byte{0, 0, 0, 7}, b[136:140])
	assert.Equal(t, []byte{0, 0, 0x05, 0x39}, b[144:148])
	assert.Equal(t, []byte("ordi"), b[148:152])
	assert.Equal(t, []byte("ORDI"), b[180:184])
	assert.Equal(t, byte(18), b[196])

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, o.Nonce, decoded.Nonce)
	assert.Equal(t, 0, o.Amount.Cmp(decoded.Amount))
	assert.Equal(t, o.Recipient, decoded.Recipient)

	_, err = Decode(b[1:])
	assert.Error(t, err)
}

func TestEncodeRejectsOversizedAmount(t *testing.T) {
	o := testOrder()
	o.Amount = new(big.Int).Lsh(big.NewInt(1), 256)
	_, err := o.Encode()
	assert.Error(t, err)

	o.Amount = big.NewInt(-1)
	_, err = o.Encode()
	assert.Error(t, err)
}

func TestSignedOrderRecoversSigner(t *testing.T) {
	ctx := context.Background()
	signer := multisig.NewRandomLocalSigner()
	path := common.DerivationPath{[]byte("evm")}

	signed, err := testOrder().Sign(ctx, signer, path)
	require.NoError(t, err)
	require.Len(t, signed, SignedLen)
	v := signed[SignedLen-1]
	assert.True(t, v == 27 || v == 28)

	addr, err := signed.SignerAddress()
	require.NoError(t, err)
	want, err := multisig.EvmAddress(ctx, signer, path)
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	order, err := signed.Order()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), order.Nonce)
}
