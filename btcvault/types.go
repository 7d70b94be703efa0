package btcvault

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
)

const (
	UtxoKeyLen      = 36 // 32-byte txid + 4-byte vout
	MaxPkScriptLen  = 128
	MaxOwnerAddrLen = 62 // longest standard address (p2tr mainnet)
)

var (
	ErrPkScriptTooLong = errors.New("pk script exceeds 128 bytes")
	ErrOwnerTooLong    = errors.New("owner address exceeds 62 bytes")
	ErrInvalidUtxoKey  = errors.New("utxo key must be 36 bytes")
)

// UtxoKey identifies an outpoint: txid (internal byte order) followed by
// the big endian vout.
type UtxoKey [UtxoKeyLen]byte

func NewUtxoKey(txHash chainhash.Hash, vout uint32) UtxoKey {
	var k UtxoKey
	copy(k[:32], txHash[:])
	binary.BigEndian.PutUint32(k[32:], vout)
	return k
}

func UtxoKeyFromBytes(b []byte) (UtxoKey, error) {
	var k UtxoKey
	if len(b) != UtxoKeyLen {
		return k, errors.Wrapf(ErrInvalidUtxoKey, "got %d bytes", len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (k UtxoKey) TxHash() chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], k[:32])
	return h
}

func (k UtxoKey) Vout() uint32 {
	return binary.BigEndian.Uint32(k[32:])
}

func (k UtxoKey) String() string {
	h := k.TxHash()
	return fmt.Sprintf("%s:%d", h.String(), k.Vout())
}

// UtxoRecord is a UTXO known to the ledger, i.e. a spendable candidate.
// AssetToken is set on deposit outputs carrying a bridged asset; those sats
// are never picked to pay fees.
type UtxoRecord struct {
	Key            UtxoKey
	Amount         int64
	PkScript       []byte
	DerivationPath []byte
	AssetToken     string
}

// UsedUtxoRecord marks a UTXO as reserved by an in-flight spend.
type UsedUtxoRecord struct {
	Key        UtxoKey
	ReservedAt time.Time
	Owner      string // address of the spender
}
