package swapper

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/mintorder"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

// MintResult is either Minted or Signed.
type MintResult interface {
	mintResult()
}

// Minted means the mint tx reached the EVM node.
type Minted struct {
	Amount *big.Int
	TxHash ethcommon.Hash
}

// Signed means the order is stored but the mint tx could not be sent.
// The holder of the order may send it to the contract themselves.
type Signed struct {
	Order mintorder.SignedMintOrder
}

func (*Minted) mintResult() {}
func (*Signed) mintResult() {}

// Swapper runs the deposit and withdrawal flows. It keeps no state of its
// own beyond the shared EvmParams, the nonce counter and the fee.
type Swapper struct {
	cfg Config

	indexer Indexer
	btc     BtcChain
	evm     EvmChain
	builder TxBuilder
	signer  multisig.Signer
	ledger  Ledger
	store   Store
	assets  inscription.Registry

	params *EvmParamsHolder
	nonces *NonceAllocator

	feeMu sync.RWMutex
	fee   *big.Int
}

type Deps struct {
	Indexer Indexer
	Btc     BtcChain
	Evm     EvmChain
	Builder TxBuilder
	Signer  multisig.Signer
	Ledger  Ledger
	Store   Store
	Assets  inscription.Registry
	Params  *EvmParamsHolder
	Nonces  *NonceAllocator
}

func New(cfg Config, deps Deps) *Swapper {
	cfg.setDefaults()
	if deps.Nonces == nil {
		deps.Nonces = NewNonceAllocator(0, deps.Store)
	}
	return &Swapper{
		cfg:     cfg,
		indexer: deps.Indexer,
		btc:     deps.Btc,
		evm:     deps.Evm,
		builder: deps.Builder,
		signer:  deps.Signer,
		ledger:  deps.Ledger,
		store:   deps.Store,
		assets:  deps.Assets,
		params:  deps.Params,
		nonces:  deps.Nonces,
		fee:     new(big.Int).Set(cfg.MinterFee),
	}
}

func (s *Swapper) MinterFee() *big.Int {
	s.feeMu.RLock()
	defer s.feeMu.RUnlock()
	return new(big.Int).Set(s.fee)
}

func (s *Swapper) SetMinterFee(fee *big.Int) {
	s.feeMu.Lock()
	defer s.feeMu.Unlock()
	s.fee = new(big.Int).Set(fee)
}

func (s *Swapper) Params() *EvmParamsHolder { return s.params }
