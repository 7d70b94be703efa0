package swapper

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/state"
)

// Indexer resolves deposit transactions.
type Indexer interface {
	GetTransaction(ctx context.Context, txid string) (*wire.MsgTx, error)
}

// BtcChain is the bitcoin node the withdraw txs go to.
type BtcChain interface {
	FeeRatePercentiles(ctx context.Context) ([]int64, error)
	SendRawTx(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
}

// EvmChain builds and sends mint txs to the bridge contract.
type EvmChain interface {
	MintTransaction(signedOrder []byte, params *agreement.EvmParams) (*types.Transaction, error)
	SendRawTx(ctx context.Context, tx *types.Transaction) error
}

type Ledger interface {
	DepositAsset(ctx context.Context, utxos []utxo.UTXO, address string, path common.DerivationPath, token common.Id256) error
	SelectAndReserve(ctx context.Context, target int64, spender string) ([]*utxo.UTXO, error)
	ReserveAsset(ctx context.Context, token common.Id256, spender string) ([]*utxo.UTXO, error)
	FinalizeSpent(ctx context.Context, key btcvault.UtxoKey) error
	ReleaseReservation(ctx context.Context, key btcvault.UtxoKey) error
}

// TxBuilder makes signed withdraw txs.
type TxBuilder interface {
	MakeWithdrawTx(
		ctx context.Context,
		prevOutputs []*utxo.UTXO,
		dstAddr string,
		postage int64,
		payloadScript []byte,
		changeAddr string,
		fee int64,
	) (*wire.MsgTx, error)
}

type Store interface {
	SetKeyedValue(ctx context.Context, key string, value []byte) error

	GetInscription(ctx context.Context, token common.Id256) (*state.InscriptionRecord, bool, error)
	RemoveInscription(ctx context.Context, token common.Id256) error

	CommitDeposit(ctx context.Context, dep *state.DepositRecord, payload []byte, ins *state.InscriptionRecord) error
	GetDeposit(ctx context.Context, txid string) (*state.DepositRecord, bool, error)

	InsertBurnRequest(ctx context.Context, id uint32, address, sourceRef string) error
	SetBurnTransferred(ctx context.Context, id uint32) error
	RemoveBurnRequest(ctx context.Context, id uint32) error

	PutWithdrawalTx(ctx context.Context, w *state.WithdrawalTx) error
	GetWithdrawalTx(ctx context.Context, id uint32) (*state.WithdrawalTx, bool, error)
	SetWithdrawalSent(ctx context.Context, id uint32) error
	RemoveWithdrawalTx(ctx context.Context, id uint32) error

	RecordOperation(ctx context.Context, op *state.Operation) error
}
