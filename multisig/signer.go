package multisig

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
)

// SignatureLen is the size of an r||s signature returned by a Signer.
const SignatureLen = 64

// Signer is the threshold ECDSA signer holding the bridge custody key.
// Keys are addressed by derivation path; one path per chain/purpose.
type Signer interface {
	PublicKey(ctx context.Context, path common.DerivationPath) (*btcec.PublicKey, error)
	// Sign signs a 32-byte digest and returns r||s.
	Sign(ctx context.Context, path common.DerivationPath, digest []byte) ([]byte, error)
}

func parseRS(sig []byte) (r, s btcec.ModNScalar, err error) {
	if len(sig) != SignatureLen {
		return r, s, errors.Newf("signature must be %d bytes, got %d", SignatureLen, len(sig))
	}
	if r.SetByteSlice(sig[:32]) || r.IsZero() {
		return r, s, errors.New("invalid signature r")
	}
	if s.SetByteSlice(sig[32:]) || s.IsZero() {
		return r, s, errors.New("invalid signature s")
	}
	return r, s, nil
}

// VerifySignature checks an r||s signature over digest.
func VerifySignature(pub *btcec.PublicKey, digest, sig []byte) bool {
	r, s, err := parseRS(sig)
	if err != nil {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest, pub)
}

// ToDER converts r||s to the DER encoding used in bitcoin scripts. S is
// normalized to the lower half of the order.
func ToDER(sig []byte) ([]byte, error) {
	r, s, err := parseRS(sig)
	if err != nil {
		return nil, err
	}
	return ecdsa.NewSignature(&r, &s).Serialize(), nil
}

// normalizeS returns r||s with s in the lower half.
func normalizeS(sig []byte) ([]byte, error) {
	r, s, err := parseRS(sig)
	if err != nil {
		return nil, err
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	out := make([]byte, 0, SignatureLen)
	rb, sb := r.Bytes(), s.Bytes()
	out = append(out, rb[:]...)
	return append(out, sb[:]...), nil
}

// EvmSign signs hash and returns the 65-byte [r||s||v] signature expected by
// go-ethereum, v being 0 or 1. v is found by recovering the public key.
func EvmSign(ctx context.Context, signer Signer, path common.DerivationPath, hash []byte) ([]byte, error) {
	pub, err := signer.PublicKey(ctx, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to get public key"), errs.SigningFailed)
	}
	raw, err := signer.Sign(ctx, path, hash)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to sign"), errs.SigningFailed)
	}
	rs, err := normalizeS(raw)
	if err != nil {
		return nil, errors.Mark(err, errs.SigningFailed)
	}

	want := pub.SerializeUncompressed()
	sig := append(rs, 0)
	for v := byte(0); v < 2; v++ {
		sig[64] = v
		recovered, err := crypto.Ecrecover(hash, sig)
		if err == nil && bytes.Equal(recovered, want) {
			return sig, nil
		}
	}
	return nil, errors.Wrap(errs.SigningFailed, "signature does not match the public key")
}

// EvmAddress is the EVM account of the key at path.
func EvmAddress(ctx context.Context, signer Signer, path common.DerivationPath) (ethcommon.Address, error) {
	pub, err := signer.PublicKey(ctx, path)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub.ToECDSA()), nil
}

// BtcAddress is the p2wpkh address of the key at path.
func BtcAddress(ctx context.Context, signer Signer, path common.DerivationPath, params *chaincfg.Params) (*btcutil.AddressWitnessPubKeyHash, error) {
	pub, err := signer.PublicKey(ctx, path)
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
}
