package btcvault

import "context"

// UtxoFilter narrows QueryUtxos. Reserved UTXOs are left out unless
// IncludeReserved is set. AssetToken keeps only the outputs carrying that
// asset, Untagged only the plain ones.
type UtxoFilter struct {
	IncludeReserved bool
	AssetToken      string
	Untagged        bool
}

// LedgerStorage defines the persistence used by UtxoLedger.
// utxo and used_utxo are independent maps sharing the same key.
type LedgerStorage interface {
	// UpsertUtxo inserts or overwrites a UTXO record.
	UpsertUtxo(ctx context.Context, row UtxoRecord) error

	// QueryUtxo returns nil if the key is unknown.
	QueryUtxo(ctx context.Context, key UtxoKey) (*UtxoRecord, error)

	// QueryUtxos returns the UTXO records matching f, largest amount first.
	QueryUtxos(ctx context.Context, f UtxoFilter) ([]UtxoRecord, error)

	// InsertUsed creates the reservation, failing with UtxoUnavailable if the
	// key is already reserved and NotFound if the utxo does not exist.
	InsertUsed(ctx context.Context, rec UsedUtxoRecord) error

	// DeleteUsed removes the reservation only.
	DeleteUsed(ctx context.Context, key UtxoKey) error

	// DeleteSpent removes both the UTXO and its reservation atomically.
	DeleteSpent(ctx context.Context, key UtxoKey) error

	// QueryAllUsed returns every reservation ordered by reservation time.
	QueryAllUsed(ctx context.Context) ([]UsedUtxoRecord, error)

	// SumMoney adds up unreserved UTXO amounts that carry no asset.
	SumMoney(ctx context.Context) (int64, error)
}
