// Golbal Agreement on types

package agreement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MintedEvent is emitted by the bridge contract once a mint order
// has been consumed on the EVM side.
type MintedEvent struct {
	Amount     *big.Int       `json:"amount"`
	FromToken  common.Hash    `json:"from_token"` // Id256 of the source token
	SenderID   common.Hash    `json:"sender_id"`  // Id256 of the mint order sender
	ToERC20    common.Address `json:"to_erc20"`
	Recipient  common.Address `json:"recipient"`
	Nonce      uint32         `json:"nonce"`
	ChargedFee *big.Int       `json:"charged_fee"`

	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber *uint64     `json:"block_number,omitempty"` // nil while the log is not finalized
}

func (ev *MintedEvent) String() string {
	return fmt.Sprintf("%+v", *ev)
}

// BurntEvent is emitted when a user burns wrapped tokens to get
// the inscription asset back on the BTC side.
type BurntEvent struct {
	Sender      common.Address `json:"sender"`
	Amount      *big.Int       `json:"amount"`
	FromERC20   common.Address `json:"from_erc20"`
	RecipientID hexutil.Bytes  `json:"recipient_id"` // utf8 encoded btc address
	ToToken     common.Hash    `json:"to_token"`     // Id256 of the asset on BTC side
	OperationID uint32         `json:"operation_id"`
	Name        common.Hash    `json:"name"`
	Symbol      hexutil.Bytes  `json:"symbol"`
	Decimals    uint8          `json:"decimals"`

	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber *uint64     `json:"block_number,omitempty"`
}

func (ev *BurntEvent) String() string {
	return fmt.Sprintf("%+v", *ev)
}

// EvmParams is the bridge's view of the EVM chain. NextBlock is the first
// block not yet scanned for bridge logs. Nonce is the account nonce of the
// bridge signer and is unrelated to mint order nonces.
type EvmParams struct {
	NextBlock uint64   `json:"next_block"`
	Nonce     uint64   `json:"nonce"`
	GasPrice  *big.Int `json:"gas_price"`
	ChainID   *big.Int `json:"chain_id"`
}

func (p *EvmParams) Copy() *EvmParams {
	cp := *p
	if p.GasPrice != nil {
		cp.GasPrice = new(big.Int).Set(p.GasPrice)
	}
	if p.ChainID != nil {
		cp.ChainID = new(big.Int).Set(p.ChainID)
	}
	return &cp
}
