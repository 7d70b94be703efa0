package state

import (
	"time"

	"github.com/TEENet-io/inscription-bridge/common"
)

type MintOrderRecord struct {
	Sender   common.Id256
	SrcToken common.Id256
	Nonce    uint32
	Payload  []byte // signed mint order bytes
}

type BurnRequest struct {
	RequestID   uint32
	Address     string
	SourceRef   string // reveal tx / inscription id / rune id of the asset sent back
	Transferred bool
}

type InscriptionRecord struct {
	Token     common.Id256 // Id256FromAsset(Kind, AssetID)
	Kind      string
	AssetID   string
	RevealTx  string
	Amount    string // decimal string in the asset's smallest unit
	CreatedAt time.Time
}

// DepositRecord marks a deposit tx as consumed by the mint order
// (Sender, Nonce).
type DepositRecord struct {
	TxID      string
	Token     common.Id256
	Sender    common.Id256
	Nonce     uint32
	CreatedAt time.Time
}

// WithdrawalTx is the signed tx built for a burn request.
type WithdrawalTx struct {
	RequestID uint32
	TxID      string
	Raw       []byte
	Sent      bool
}

type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

type OperationStatus string

const (
	OpMinted      OperationStatus = "minted"
	OpSigned      OperationStatus = "signed"
	OpTransferred OperationStatus = "transferred"
	OpFailed      OperationStatus = "failed"
)

// Operation is one line of a wallet's bridge history.
type Operation struct {
	ID        int64           `json:"id"`
	Wallet    string          `json:"wallet"`
	Direction Direction       `json:"direction"`
	Kind      string          `json:"kind"`
	AssetID   string          `json:"asset_id"`
	Amount    string          `json:"amount"`
	Status    OperationStatus `json:"status"`
	TxID      string          `json:"tx_id"`
	CreatedAt time.Time       `json:"created_at"`
}
