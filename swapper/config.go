package swapper

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/TEENet-io/inscription-bridge/common"
)

const (
	// DefaultPostage is the value sent along with the asset transfer.
	DefaultPostage = int64(546)

	// DefaultWithdrawVsize is the vsize budgeted for a withdraw tx
	// (two segwit inputs, postage, OP_RETURN, change).
	DefaultWithdrawVsize = int64(300)

	// DefaultFeeRate in sat/vB, used when the node cannot tell.
	DefaultFeeRate = int64(10)
)

type Config struct {
	// Bitcoin network the bridge lives on
	BtcParams *chaincfg.Params

	// Chain id written into mint order sender ids for the BTC side
	BtcChainID uint32

	// Address receiving deposits and withdraw change. When set, a deposit
	// tx must pay to it.
	DepositAddress string

	// Key path unlocking DepositAddress. Recorded with the asset outputs
	// a deposit leaves in the ledger.
	DepositPath common.DerivationPath

	// Key path of the bridge EVM account. Signs mint orders and mint txs.
	EvmPath common.DerivationPath

	// Wrapped token settings written into every mint order. An empty
	// symbol is replaced by the symbol of the deposited asset.
	DstToken    ethcommon.Address
	TokenName   string
	TokenSymbol string
	Decimals    uint8

	// Fee taken from fungible deposits, in the asset's smallest unit.
	MinterFee *big.Int

	Postage       int64
	WithdrawVsize int64
	FeeRate       int64
}

func (cfg *Config) setDefaults() {
	if cfg.MinterFee == nil {
		cfg.MinterFee = big.NewInt(0)
	}
	if cfg.Postage == 0 {
		cfg.Postage = DefaultPostage
	}
	if cfg.WithdrawVsize == 0 {
		cfg.WithdrawVsize = DefaultWithdrawVsize
	}
	if cfg.FeeRate == 0 {
		cfg.FeeRate = DefaultFeeRate
	}
}
