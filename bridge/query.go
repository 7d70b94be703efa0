package bridge

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/mintorder"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

func (b *Bridge) Deposit(ctx context.Context, req *swapper.DepositRequest) (swapper.MintResult, error) {
	return b.swapper.Deposit(ctx, req)
}

// Withdraw sends an asset out without a burn on the EVM side, so only an
// admin may call it.
func (b *Bridge) Withdraw(ctx context.Context, token string, req *swapper.WithdrawRequest) (*chainhash.Hash, error) {
	if err := b.Authorize(token); err != nil {
		return nil, err
	}
	return b.swapper.Withdraw(ctx, req)
}

func (b *Bridge) MintOrders(ctx context.Context, sender, srcToken common.Id256) ([]state.MintOrderRecord, error) {
	return b.store.GetMintOrders(ctx, sender, srcToken)
}

func (b *Bridge) MintOrder(ctx context.Context, sender, srcToken common.Id256, nonce uint32) (mintorder.SignedMintOrder, error) {
	raw, ok, err := b.store.GetMintOrder(ctx, sender, srcToken, nonce)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errs.NotFound, "mint order sender=%s token=%s nonce=%d", sender, srcToken, nonce)
	}
	return mintorder.SignedMintOrder(raw), nil
}

func (b *Bridge) Operations(ctx context.Context, wallet string) ([]state.Operation, error) {
	return b.store.GetOperations(ctx, wallet)
}

func (b *Bridge) ReservedUtxos(ctx context.Context) ([]btcvault.UsedUtxoRecord, error) {
	return b.ledger.ListReserved(ctx)
}

func (b *Bridge) FeeRatePercentiles(ctx context.Context) ([]int64, error) {
	return b.btc.FeeRatePercentiles(ctx)
}

// Balance of the deposit address in satoshis.
type Balance struct {
	// spendable and unreserved, as the ledger sees it
	Ledger int64 `json:"ledger"`
	// confirmed, as the node sees it
	Node int64 `json:"node"`
}

func (b *Bridge) Balance(ctx context.Context) (*Balance, error) {
	var bal Balance
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bal.Ledger, err = b.ledger.Balance(gctx)
		return err
	})
	g.Go(func() (err error) {
		bal.Node, err = b.btc.GetBalance(b.depositAddress, b.cfg.UtxoMinConf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &bal, nil
}
