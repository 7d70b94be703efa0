package ethsync

import (
	"math/big"
)

// DefaultMaxBlockRange bounds a single eth_getLogs query.
const DefaultMaxBlockRange = uint64(5000)

type Config struct {
	// Expected chain id of the EVM node. Nil skips the check.
	ChainID *big.Int

	// Blocks scanned per collection at most
	MaxBlockRange uint64
}
