package inscription

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var nftTransferMagic = []byte("NFT")

// Nft bridges ordinal inscriptions one by one.
type Nft struct{}

func NewNft() *Nft { return &Nft{} }

func (n *Nft) Kind() Kind     { return KindNft }
func (n *Nft) Fungible() bool { return false }
func (n *Nft) Carried() bool  { return true }

// InscriptionID formats the ordinal id <reveal txid>i<index>.
func InscriptionID(txid string, index int) string {
	return fmt.Sprintf("%si%d", txid, index)
}

// ParseInscriptionID splits an ordinal id into reveal tx hash and index.
func ParseInscriptionID(id string) (*chainhash.Hash, uint32, error) {
	i := strings.LastIndexByte(id, 'i')
	if i != chainhash.MaxHashStringSize {
		return nil, 0, invalid("inscription id %q is malformed", id)
	}
	hash, err := chainhash.NewHashFromStr(id[:i])
	if err != nil {
		return nil, 0, invalid("inscription id %q: %v", id, err)
	}
	index, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return nil, 0, invalid("inscription id %q: %v", id, err)
	}
	return hash, uint32(index), nil
}

// ParseInscription takes the first envelope of the reveal tx.
func (n *Nft) ParseInscription(tx *wire.MsgTx) (*Inscription, error) {
	envs := ParseEnvelopes(tx)
	if len(envs) == 0 {
		return nil, invalid("no inscription in tx %s", tx.TxHash())
	}
	env := envs[0]
	txid := tx.TxHash().String()
	return &Inscription{
		Kind:        KindNft,
		AssetID:     InscriptionID(txid, env.Index),
		Symbol:      "ORD",
		Amount:      big.NewInt(1),
		RevealTx:    txid,
		ContentType: env.ContentType,
		Body:        env.Body,
	}, nil
}

func (n *Nft) Validate(ins *Inscription) error {
	if ins.Kind != KindNft {
		return invalid("not an nft inscription: %s", ins.Kind)
	}
	if _, _, err := ParseInscriptionID(ins.AssetID); err != nil {
		return err
	}
	if len(ins.Body) == 0 {
		return invalid("nft %s has no content", ins.AssetID)
	}
	if ins.Amount == nil || ins.Amount.Cmp(big.NewInt(1)) != 0 {
		return invalid("nft amount must be 1")
	}
	return nil
}

// EncodeForTransfer writes "NFT" || reveal txid || uvarint(index).
func (n *Nft) EncodeForTransfer(assetID string, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Cmp(big.NewInt(1)) != 0 {
		return nil, invalid("nft amount must be 1")
	}
	hash, index, err := ParseInscriptionID(assetID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(nftTransferMagic)
	buf.Write(hash[:])
	buf.Write(binary.AppendUvarint(nil, uint64(index)))
	return txscript.NullDataScript(buf.Bytes())
}
