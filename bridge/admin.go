package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"math/big"

	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/state"
)

// KeySettings is the kv key holding the admin settings.
const KeySettings = "settings"

// Settings changed at runtime by an admin. Nil fields are left alone.
type Settings struct {
	Fee            *big.Int           `json:"fee,omitempty"`
	BridgeContract *ethcommon.Address `json:"bridge_contract,omitempty"`
}

func loadSettings(ctx context.Context, store *state.StateDB) (*Settings, error) {
	raw, ok, err := store.GetKeyedValue(ctx, KeySettings)
	if err != nil {
		return nil, err
	}
	s := &Settings{}
	if !ok {
		return s, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode settings"), errs.CorruptRecord)
	}
	return s, nil
}

// Authorize checks an admin token.
func (b *Bridge) Authorize(token string) error {
	if b.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(b.cfg.AdminToken)) != 1 {
		return errors.WithStack(errs.Unauthorized)
	}
	return nil
}

// Configure applies new settings and persists the merged result.
func (b *Bridge) Configure(ctx context.Context, token string, update *Settings) error {
	if err := b.Authorize(token); err != nil {
		return err
	}
	if update.Fee != nil && update.Fee.Sign() < 0 {
		return errors.Wrapf(errs.ValueTooSmall, "negative fee %s", update.Fee)
	}

	merged, err := loadSettings(ctx, b.store)
	if err != nil {
		return err
	}
	if update.Fee != nil {
		merged.Fee = new(big.Int).Set(update.Fee)
	}
	if update.BridgeContract != nil {
		addr := *update.BridgeContract
		merged.BridgeContract = &addr
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := b.store.SetKeyedValue(ctx, KeySettings, raw); err != nil {
		return err
	}

	newLogger := logger.WithField("by", "admin")
	if update.Fee != nil {
		b.swapper.SetMinterFee(update.Fee)
		newLogger = newLogger.WithField("fee", update.Fee)
	}
	if update.BridgeContract != nil {
		b.evm.SetBridgeAddress(*update.BridgeContract)
		newLogger = newLogger.WithField("bridgeContract", update.BridgeContract.Hex())
	}
	newLogger.Info("bridge reconfigured")
	return nil
}

// CurrentSettings reports the settings in effect.
func (b *Bridge) CurrentSettings() *Settings {
	addr := b.evm.BridgeAddress()
	return &Settings{Fee: b.swapper.MinterFee(), BridgeContract: &addr}
}
