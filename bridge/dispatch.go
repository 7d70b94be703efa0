package bridge

import (
	"context"

	"github.com/cockroachdb/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

const (
	initRetries           = 5
	initBackoffSecs       = 2
	initBackoffMultiplier = 2

	collectBackoffSecs = 1
)

// Dispatch is the scheduler handler. One case per task kind.
func (b *Bridge) Dispatch(ctx context.Context, t *scheduler.Task, appender scheduler.Appender) error {
	switch t.Payload.Kind {
	case scheduler.KindInitEvmState:
		return b.initEvmState(ctx)

	case scheduler.KindCollectEvmEvents:
		return b.collector.Collect(ctx, appender)

	case scheduler.KindRemoveMintOrder:
		ev := t.Payload.Minted
		if ev == nil {
			return errs.Permanent(errors.Wrap(errs.TaskExecutionFailed, "missing minted event"))
		}
		sender := common.Id256(ev.SenderID)
		if err := b.store.RemoveMintOrder(ctx, sender, ev.Nonce); err != nil {
			return err
		}
		logger.WithFields(logger.Fields{"sender": sender, "nonce": ev.Nonce}).Debug("mint order removed")
		return nil

	case scheduler.KindMintBtc:
		ev := t.Payload.Burnt
		if ev == nil {
			return errs.Permanent(errors.Wrap(errs.TaskExecutionFailed, "missing burnt event"))
		}
		_, err := b.swapper.Withdraw(ctx, swapper.WithdrawRequestFromEvent(ev))
		return err

	default:
		return errs.Permanent(errors.Wrapf(errs.TaskExecutionFailed, "unknown task kind %q", t.Payload.Kind))
	}
}

// initEvmState refreshes chain id, gas price and account nonce. An existing
// cursor is kept, otherwise scanning starts at the configured block.
func (b *Bridge) initEvmState(ctx context.Context) error {
	next := b.cfg.StartBlock
	if cur, err := b.params.Get(); err == nil {
		next = cur.NextBlock
	}

	fresh, err := b.evm.QueryEvmParams(ctx, b.evmAccount, next)
	if err != nil {
		return err
	}
	if err := b.collector.CheckChainID(fresh); err != nil {
		return err
	}

	err = b.params.Update(ctx, func(p *agreement.EvmParams) bool {
		p.Nonce = fresh.Nonce
		p.GasPrice = fresh.GasPrice
		p.ChainID = fresh.ChainID
		return true
	})
	if errors.Is(err, errs.NotInitialized) {
		err = b.params.Set(ctx, fresh)
	}
	if err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"chainID":   fresh.ChainID,
		"nonce":     fresh.Nonce,
		"gasPrice":  fresh.GasPrice,
		"nextBlock": next,
	}).Info("evm state initialized")
	return nil
}
