package multisig

import (
	"context"
	"crypto/sha256"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/TEENet-io/inscription-bridge/common"
)

// LocalSigner simulates the threshold signer with a single master secret.
// The key for a path is HKDF-SHA256(master, info = encoded path).
type LocalSigner struct {
	master []byte
}

func NewLocalSigner(master []byte) (*LocalSigner, error) {
	if len(master) < 32 {
		return nil, errors.Newf("master secret must be at least 32 bytes, got %d", len(master))
	}
	return &LocalSigner{master: append([]byte(nil), master...)}, nil
}

// If user choose to randomly generate a signer.
func NewRandomLocalSigner() *LocalSigner {
	return &LocalSigner{master: common.RandBytes(32)}
}

func (ls *LocalSigner) key(path common.DerivationPath) (*btcec.PrivateKey, error) {
	info, err := path.Encode()
	if err != nil {
		return nil, err
	}
	b := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ls.master, nil, info), b); err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}
	sk, _ := btcec.PrivKeyFromBytes(b)
	return sk, nil
}

func (ls *LocalSigner) PublicKey(_ context.Context, path common.DerivationPath) (*btcec.PublicKey, error) {
	sk, err := ls.key(path)
	if err != nil {
		return nil, err
	}
	return sk.PubKey(), nil
}

func (ls *LocalSigner) Sign(_ context.Context, path common.DerivationPath, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.Newf("digest must be 32 bytes, got %d", len(digest))
	}
	sk, err := ls.key(path)
	if err != nil {
		return nil, err
	}
	// [recovery id][r][s]
	compact := ecdsa.SignCompact(sk, digest, true)
	return compact[1:], nil
}
