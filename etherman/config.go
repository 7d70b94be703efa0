package etherman

import "github.com/ethereum/go-ethereum/common"

type Config struct {
	// URL is the URL of the Ethereum node
	URL string

	// BridgeContractAddress is the deployed bridge contract address
	BridgeContractAddress common.Address

	// Confirmations is how far behind the head a block must be to count as safe
	Confirmations uint64

	// MintGasLimit is the gas limit of a mint transaction
	MintGasLimit uint64
}

const DefaultMintGasLimit = 500_000
