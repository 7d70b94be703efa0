package bridge

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/btcman/assembler"
	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/ethsync"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/multisig"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

type BtcNode interface {
	swapper.BtcChain
	GetUtxoList(addr btcutil.Address, minConf int) ([]utxo.UTXO, error)
	GetBalance(addr btcutil.Address, minConf int) (int64, error)
}

type EvmNode interface {
	swapper.EvmChain
	ethsync.EvmLogs
	QueryEvmParams(ctx context.Context, account ethcommon.Address, nextBlock uint64) (*agreement.EvmParams, error)
	BridgeAddress() ethcommon.Address
	SetBridgeAddress(addr ethcommon.Address)
}

type Deps struct {
	Store   *state.StateDB
	Ledger  *btcvault.UtxoLedger
	Tasks   *scheduler.TaskSQLiteStorage
	Indexer swapper.Indexer
	Btc     BtcNode
	Evm     EvmNode
	Signer  multisig.Signer
	Assets  inscription.Registry
}

// Bridge is the context shared by the task dispatcher and the HTTP API.
// It is built once at start-up.
type Bridge struct {
	cfg *Config

	store  *state.StateDB
	ledger *btcvault.UtxoLedger
	btc    BtcNode
	evm    EvmNode

	params    *swapper.EvmParamsHolder
	swapper   *swapper.Swapper
	collector *ethsync.Collector
	scheduler *scheduler.Scheduler

	depositAddress btcutil.Address
	evmAccount     ethcommon.Address

	now          func() time.Time
	lastUtxoSync time.Time
}

// New derives the bridge addresses from the signer and restores the evm
// params, the mint nonce and the admin settings from the store.
func New(ctx context.Context, cfg *Config, deps Deps) (*Bridge, error) {
	cfg.setDefaults()

	depositAddress, err := multisig.BtcAddress(ctx, deps.Signer, cfg.BtcPath, cfg.Swapper.BtcParams)
	if err != nil {
		return nil, err
	}
	evmAccount, err := multisig.EvmAddress(ctx, deps.Signer, cfg.Swapper.EvmPath)
	if err != nil {
		return nil, err
	}
	if cfg.Swapper.DepositAddress == "" {
		cfg.Swapper.DepositAddress = depositAddress.EncodeAddress()
	}
	if cfg.Swapper.DepositPath == nil {
		cfg.Swapper.DepositPath = cfg.BtcPath
	}

	params := swapper.NewEvmParamsHolder(deps.Store)
	stored, found, err := deps.Store.GetEvmParams(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		if err := params.Set(ctx, stored); err != nil {
			return nil, err
		}
	}

	nonce, err := loadMintNonce(ctx, deps.Store)
	if err != nil {
		return nil, err
	}

	settings, err := loadSettings(ctx, deps.Store)
	if err != nil {
		return nil, err
	}
	if settings.Fee != nil {
		cfg.Swapper.MinterFee = settings.Fee
	}
	if settings.BridgeContract != nil {
		deps.Evm.SetBridgeAddress(*settings.BridgeContract)
	}

	b := &Bridge{
		cfg:            cfg,
		store:          deps.Store,
		ledger:         deps.Ledger,
		btc:            deps.Btc,
		evm:            deps.Evm,
		params:         params,
		depositAddress: depositAddress,
		evmAccount:     evmAccount,
		now:            time.Now,
	}
	b.swapper = swapper.New(cfg.Swapper, swapper.Deps{
		Indexer: deps.Indexer,
		Btc:     deps.Btc,
		Evm:     deps.Evm,
		Builder: &assembler.Assembler{ChainConfig: cfg.Swapper.BtcParams, Op: assembler.NewSignerOperator(deps.Signer)},
		Signer:  deps.Signer,
		Ledger:  deps.Ledger,
		Store:   deps.Store,
		Assets:  deps.Assets,
		Params:  params,
		Nonces:  swapper.NewNonceAllocator(nonce, deps.Store),
	})
	b.collector = ethsync.New(&cfg.Collector, deps.Evm, params)
	b.scheduler = scheduler.New(&cfg.Scheduler, deps.Tasks, b.Dispatch)

	logger.WithFields(logger.Fields{
		"depositAddress": depositAddress.EncodeAddress(),
		"evmAccount":     evmAccount.Hex(),
		"mintNonce":      nonce,
		"restored":       found,
	}).Info("bridge created")
	return b, nil
}

func loadMintNonce(ctx context.Context, store *state.StateDB) (uint32, error) {
	raw, ok, err := store.GetKeyedValue(ctx, swapper.KeyMintNonce)
	if err != nil || !ok {
		return 0, err
	}
	return swapper.DecodeNonce(raw)
}

func (b *Bridge) Scheduler() *scheduler.Scheduler { return b.scheduler }

func (b *Bridge) Swapper() *swapper.Swapper { return b.swapper }

func (b *Bridge) Params() *swapper.EvmParamsHolder { return b.params }

func (b *Bridge) DepositAddress() string { return b.depositAddress.EncodeAddress() }

func (b *Bridge) EvmAccount() ethcommon.Address { return b.evmAccount }

// Bootstrap resets tasks interrupted by a crash, queues the evm state
// initialization and loads the UTXOs already sitting at the deposit address.
func (b *Bridge) Bootstrap(ctx context.Context) error {
	if err := b.scheduler.Recover(ctx); err != nil {
		return err
	}
	task := scheduler.NewTask(scheduler.InitEvmState()).
		WithRetry(scheduler.MaxRetries(initRetries)).
		WithBackoff(scheduler.Exponential(initBackoffSecs, initBackoffMultiplier))
	if _, err := b.scheduler.Append(ctx, task); err != nil {
		return err
	}
	if err := b.SyncUtxos(ctx); err != nil {
		logger.Warnf("failed to sync utxos of the deposit address: err=%v", err)
	}
	return nil
}

// Prepare runs before every scheduler tick. It is not safe for concurrent
// use.
func (b *Bridge) Prepare(ctx context.Context) error {
	pending, err := b.scheduler.HasUnfinished(ctx, scheduler.KindCollectEvmEvents)
	if err != nil {
		return err
	}
	if !pending {
		task := scheduler.NewTask(scheduler.CollectEvmEvents()).
			WithRetry(scheduler.Infinite()).
			WithBackoff(scheduler.Fixed(collectBackoffSecs))
		if _, err := b.scheduler.Append(ctx, task); err != nil {
			return err
		}
	}

	if b.now().Sub(b.lastUtxoSync) >= b.cfg.UtxoRefreshInterval {
		if err := b.SyncUtxos(ctx); err != nil {
			logger.Warnf("failed to sync utxos of the deposit address: err=%v", err)
		}
	}
	return nil
}

// SyncUtxos copies the confirmed UTXOs of the deposit address worth more
// than the postage of an inscription into the ledger.
func (b *Bridge) SyncUtxos(ctx context.Context) error {
	utxos, err := b.btc.GetUtxoList(b.depositAddress, b.cfg.UtxoMinConf)
	if err != nil {
		return err
	}
	b.lastUtxoSync = b.now()
	utxos = lo.Filter(utxos, func(u utxo.UTXO, _ int) bool { return u.Amount >= b.cfg.UtxoMinAmount })
	if len(utxos) == 0 {
		return nil
	}
	return b.ledger.Deposit(ctx, utxos, b.depositAddress.EncodeAddress(), b.cfg.BtcPath)
}
