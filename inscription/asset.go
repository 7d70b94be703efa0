package inscription

import (
	"math/big"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/errs"
)

type Kind string

const (
	KindBrc20 Kind = "brc20"
	KindNft   Kind = "nft"
	KindRune  Kind = "rune"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBrc20, KindNft, KindRune:
		return k, nil
	}
	return "", errors.Mark(errors.Newf("unknown asset kind %q", s), errs.InvalidInscription)
}

// Inscription is an asset found in a bitcoin transaction.
type Inscription struct {
	Kind    Kind
	AssetID string // brc20 tick, nft inscription id or rune id
	Symbol  string
	// Amount in base units, 1 for an nft.
	Amount      *big.Int
	RevealTx    string
	ContentType string
	Body        []byte
}

// Output layout of a withdraw tx: postage to the recipient, the transfer
// payload, then change back to the bridge.
const (
	RecipientOutput = 0
	PayloadOutput   = 1
	ChangeOutput    = 2
)

// Asset is what the swapper needs to know about one kind of inscription.
type Asset interface {
	Kind() Kind
	// Fungible assets can be split, so the bridge keeps holding the
	// inscription record after a partial withdrawal.
	Fungible() bool
	// Carried assets live on the sats of the deposit output, a withdrawal
	// has to spend that output first.
	Carried() bool
	ParseInscription(tx *wire.MsgTx) (*Inscription, error)
	Validate(ins *Inscription) error
	// EncodeForTransfer builds the OP_RETURN script moving amount of
	// assetID to the first output of the withdraw tx.
	EncodeForTransfer(assetID string, amount *big.Int) ([]byte, error)
}

type Registry map[Kind]Asset

func NewRegistry(assets ...Asset) Registry {
	r := make(Registry, len(assets))
	for _, a := range assets {
		r[a.Kind()] = a
	}
	return r
}

func (r Registry) Get(kind Kind) (Asset, error) {
	a, ok := r[kind]
	if !ok {
		return nil, errors.Mark(errors.Newf("asset kind %q is not bridged", kind), errs.InvalidInscription)
	}
	return a, nil
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errs.InvalidInscription)
}
