package bridge

import (
	"time"

	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/ethsync"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

const (
	// DefaultUtxoMinConf is how deep a deposit to the bridge address must be
	// before its UTXO is used for withdrawals.
	DefaultUtxoMinConf = 6

	DefaultUtxoRefreshInterval = time.Minute

	// DefaultUtxoMinAmount is the smallest output picked up by the UTXO
	// sync. Smaller outputs may carry an inscription and enter the ledger
	// through the deposit that brought them.
	DefaultUtxoMinAmount = int64(10_000)
)

type Config struct {
	Swapper   swapper.Config
	Collector ethsync.Config
	Scheduler scheduler.Config

	// Key path of the bridge BTC address. Deposits go there and the
	// withdraw change comes back to it.
	BtcPath common.DerivationPath

	// First block scanned for bridge events when no cursor is stored
	StartBlock uint64

	// Token expected in the X-Admin-Token header. Empty disables the
	// admin operations.
	AdminToken string

	UtxoMinConf         int
	UtxoMinAmount       int64
	UtxoRefreshInterval time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.UtxoMinConf == 0 {
		cfg.UtxoMinConf = DefaultUtxoMinConf
	}
	if cfg.UtxoMinAmount == 0 {
		cfg.UtxoMinAmount = DefaultUtxoMinAmount
	}
	if cfg.UtxoRefreshInterval == 0 {
		cfg.UtxoRefreshInterval = DefaultUtxoRefreshInterval
	}
}
