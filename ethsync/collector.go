package ethsync

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/etherman"
	"github.com/TEENet-io/inscription-bridge/metrics"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

// per-log tasks retry every 5s for as long as it takes
const logTaskRetryDelaySecs = 5

type EvmLogs interface {
	SafeBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, from, to uint64) ([]types.Log, error)
}

// Collector turns bridge contract logs into scheduler tasks and keeps the
// block cursor in the shared EvmParams.
type Collector struct {
	cfg    *Config
	logs   EvmLogs
	params *swapper.EvmParamsHolder
}

func New(cfg *Config, logs EvmLogs, params *swapper.EvmParamsHolder) *Collector {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = DefaultMaxBlockRange
	}
	return &Collector{cfg: cfg, logs: logs, params: params}
}

// CheckChainID fails permanently when the node serves another chain.
func (c *Collector) CheckChainID(p *agreement.EvmParams) error {
	if c.cfg.ChainID == nil || p.ChainID == nil {
		return nil
	}
	if c.cfg.ChainID.Cmp(p.ChainID) != 0 {
		return ErrChainIDUnmatched(c.cfg.ChainID, p.ChainID)
	}
	return nil
}

// Collect scans [next block, safe head], appends one task per log and moves
// the cursor past the leading logs that carry a block number.
func (c *Collector) Collect(ctx context.Context, appender scheduler.Appender) error {
	params, err := c.params.Get()
	if errors.Is(err, errs.NotInitialized) {
		logger.Warn("no evm params initialized, skip collecting events")
		return nil
	}
	if err != nil {
		return err
	}

	safe, err := c.logs.SafeBlockNumber(ctx)
	if err != nil {
		return err
	}
	from := params.NextBlock
	if from > safe {
		return nil
	}
	to := min(safe, from+c.cfg.MaxBlockRange-1)

	logs, err := c.logs.FilterLogs(ctx, from, to)
	if err != nil {
		return err
	}
	newLogger := logger.WithFields(logger.Fields{"from": from, "to": to, "logs": len(logs)})
	newLogger.Debug("collected evm logs")

	tasks := make([]*scheduler.Task, 0, len(logs))
	for i := range logs {
		if t, ok := TaskByLog(&logs[i]); ok {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) > 0 {
		if _, err := appender.AppendMany(ctx, tasks); err != nil {
			return err
		}
	}

	next, ok := nextBlock(logs, to)
	if !ok {
		return nil
	}
	err = c.params.Update(ctx, func(p *agreement.EvmParams) bool {
		if next <= p.NextBlock {
			return false
		}
		p.NextBlock = next
		return true
	})
	if err != nil {
		return err
	}
	metrics.EventCursor.Set(float64(next))
	newLogger.WithField("next", next).Debug("evm event cursor moved")
	return nil
}

// nextBlock is the block after the last log of the leading run of logs with
// a block number. With no logs at all the whole range is done.
func nextBlock(logs []types.Log, to uint64) (uint64, bool) {
	if len(logs) == 0 {
		return to + 1, true
	}
	var (
		last  uint64
		found bool
	)
	for i := range logs {
		n, ok := etherman.BlockNumberOf(&logs[i])
		if !ok {
			break
		}
		last, found = n, true
	}
	return last + 1, found
}

// TaskByLog maps a bridge log to its follow-up task. Unknown logs are
// dropped.
func TaskByLog(vlog *types.Log) (*scheduler.Task, bool) {
	ev, err := etherman.ParseLog(vlog)
	if err != nil {
		logger.Warnf("collected log is incompatible with expected events: tx=%s err=%v", vlog.TxHash, err)
		return nil, false
	}

	var payload scheduler.Payload
	switch ev := ev.(type) {
	case *agreement.BurntEvent:
		logger.WithFields(logger.Fields{
			"operationID": ev.OperationID,
			"recipient":   string(ev.RecipientID),
			"amount":      ev.Amount,
		}).Debug("Burnt event")
		payload = scheduler.MintBtc(ev)
		metrics.EventsCollected.WithLabelValues("burnt").Inc()
	case *agreement.MintedEvent:
		logger.WithFields(logger.Fields{
			"nonce":     ev.Nonce,
			"recipient": ev.Recipient.Hex(),
			"amount":    ev.Amount,
		}).Debug("Minted event")
		payload = scheduler.RemoveMintOrder(ev)
		metrics.EventsCollected.WithLabelValues("minted").Inc()
	default:
		return nil, false
	}

	return scheduler.NewTask(payload).
		WithBackoff(scheduler.Fixed(logTaskRetryDelaySecs)).
		WithRetry(scheduler.MaxRetries(math.MaxUint32)), true
}
