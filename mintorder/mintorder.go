package mintorder

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

const (
	EncodedLen   = 269
	SignatureLen = 65
	SignedLen    = EncodedLen + SignatureLen
)

// MintOrder authorizes the bridge contract to mint wrapped tokens. Amount
// already has the bridge fee taken out.
type MintOrder struct {
	Amount           *big.Int
	Sender           common.Id256
	SrcToken         common.Id256
	Recipient        ethcommon.Address
	DstToken         ethcommon.Address
	Nonce            uint32
	SenderChainID    uint32
	RecipientChainID uint32
	Name             [32]byte
	Symbol           [16]byte
	Decimals         uint8
	ApproveSpender   ethcommon.Address
	ApproveAmount    *big.Int
	FeePayer         ethcommon.Address
}

// Name32 right pads s with zeros, truncating at 32 bytes.
func Name32(s string) (out [32]byte) {
	copy(out[:], s)
	return out
}

// Symbol16 right pads s with zeros, truncating at 16 bytes.
func Symbol16(s string) (out [16]byte) {
	copy(out[:], s)
	return out
}

func uint256(n *big.Int, field string) ([]byte, error) {
	if n == nil {
		n = new(big.Int)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, errors.Newf("%s out of uint256 range: %s", field, n)
	}
	return math.PaddedBigBytes(n, 32), nil
}

// Encode lays the order out the way the bridge contract reads it:
//
//	amount 32 | sender 32 | src token 32 | recipient 20 | dst token 20 |
//	nonce 4 | sender chain 4 | recipient chain 4 | name 32 | symbol 16 |
//	decimals 1 | approve spender 20 | approve amount 32 | fee payer 20
//
// Integers are big endian.
func (o *MintOrder) Encode() ([]byte, error) {
	amount, err := uint256(o.Amount, "amount")
	if err != nil {
		return nil, err
	}
	approveAmount, err := uint256(o.ApproveAmount, "approve amount")
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, EncodedLen)
	buf = append(buf, amount...)
	buf = append(buf, o.Sender[:]...)
	buf = append(buf, o.SrcToken[:]...)
	buf = append(buf, o.Recipient[:]...)
	buf = append(buf, o.DstToken[:]...)
	buf = binary.BigEndian.AppendUint32(buf, o.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, o.SenderChainID)
	buf = binary.BigEndian.AppendUint32(buf, o.RecipientChainID)
	buf = append(buf, o.Name[:]...)
	buf = append(buf, o.Symbol[:]...)
	buf = append(buf, o.Decimals)
	buf = append(buf, o.ApproveSpender[:]...)
	buf = append(buf, approveAmount...)
	buf = append(buf, o.FeePayer[:]...)
	return buf, nil
}

func Decode(b []byte) (*MintOrder, error) {
	if len(b) != EncodedLen {
		return nil, errors.Newf("mint order must be %d bytes, got %d", EncodedLen, len(b))
	}
	var o MintOrder
	r := reader{b: b}
	o.Amount = new(big.Int).SetBytes(r.next(32))
	copy(o.Sender[:], r.next(32))
	copy(o.SrcToken[:], r.next(32))
	copy(o.Recipient[:], r.next(20))
	copy(o.DstToken[:], r.next(20))
	o.Nonce = binary.BigEndian.Uint32(r.next(4))
	o.SenderChainID = binary.BigEndian.Uint32(r.next(4))
	o.RecipientChainID = binary.BigEndian.Uint32(r.next(4))
	copy(o.Name[:], r.next(32))
	copy(o.Symbol[:], r.next(16))
	o.Decimals = r.next(1)[0]
	copy(o.ApproveSpender[:], r.next(20))
	o.ApproveAmount = new(big.Int).SetBytes(r.next(32))
	copy(o.FeePayer[:], r.next(20))
	return &o, nil
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) next(n int) []byte {
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

// SignedMintOrder is the encoded order followed by the bridge signature
// [r||s||v], v being 27 or 28 as ecrecover expects.
type SignedMintOrder []byte

// Sign signs keccak256 of the encoded order with the bridge EVM key.
func (o *MintOrder) Sign(ctx context.Context, signer multisig.Signer, path common.DerivationPath) (SignedMintOrder, error) {
	encoded, err := o.Encode()
	if err != nil {
		return nil, err
	}
	sig, err := multisig.EvmSign(ctx, signer, path, crypto.Keccak256(encoded))
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return append(encoded, sig...), nil
}

func (s SignedMintOrder) Order() (*MintOrder, error) {
	if len(s) != SignedLen {
		return nil, errors.Newf("signed mint order must be %d bytes, got %d", SignedLen, len(s))
	}
	return Decode(s[:EncodedLen])
}

// SignerAddress recovers the account that signed the order.
func (s SignedMintOrder) SignerAddress() (ethcommon.Address, error) {
	if len(s) != SignedLen {
		return ethcommon.Address{}, errors.Newf("signed mint order must be %d bytes, got %d", SignedLen, len(s))
	}
	sig := append([]byte(nil), s[EncodedLen:]...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(crypto.Keccak256(s[:EncodedLen]), sig)
	if err != nil {
		return ethcommon.Address{}, errors.Wrap(err, "failed to recover mint order signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
