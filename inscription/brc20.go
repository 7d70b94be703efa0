package inscription

import (
	"encoding/json"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
)

const (
	brc20Protocol = "brc-20"
	// DefaultBrc20Decimals is the precision of a brc20 ticker deployed
	// without an explicit "dec".
	DefaultBrc20Decimals = 18
)

type brc20Payload struct {
	P    string `json:"p"`
	Op   string `json:"op"`
	Tick string `json:"tick"`
	Amt  string `json:"amt"`
}

// Brc20 bridges brc-20 transfer inscriptions.
type Brc20 struct {
	Decimals int32
}

func NewBrc20(decimals int32) *Brc20 {
	return &Brc20{Decimals: decimals}
}

func (b *Brc20) Kind() Kind     { return KindBrc20 }
func (b *Brc20) Fungible() bool { return true }

// Carried is false, balances move by the transfer payload alone.
func (b *Brc20) Carried() bool { return false }

// ParseInscription picks the first brc-20 transfer envelope of tx.
func (b *Brc20) ParseInscription(tx *wire.MsgTx) (*Inscription, error) {
	for _, env := range ParseEnvelopes(tx) {
		var p brc20Payload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			continue
		}
		if p.P != brc20Protocol {
			continue
		}
		if p.Op != "transfer" {
			return nil, invalid("brc20 op %q is not a transfer", p.Op)
		}
		amount, err := b.parseAmount(p.Amt)
		if err != nil {
			return nil, err
		}
		tick := strings.ToLower(p.Tick)
		return &Inscription{
			Kind:        KindBrc20,
			AssetID:     tick,
			Symbol:      strings.ToUpper(tick),
			Amount:      amount,
			RevealTx:    tx.TxHash().String(),
			ContentType: env.ContentType,
			Body:        env.Body,
		}, nil
	}
	return nil, invalid("no brc20 inscription in tx %s", tx.TxHash())
}

func (b *Brc20) parseAmount(amt string) (*big.Int, error) {
	d, err := decimal.NewFromString(amt)
	if err != nil {
		return nil, invalid("brc20 amount %q: %v", amt, err)
	}
	if !d.IsPositive() {
		return nil, invalid("brc20 amount %q is not positive", amt)
	}
	scaled := d.Shift(b.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, invalid("brc20 amount %q has more than %d decimals", amt, b.Decimals)
	}
	return scaled.BigInt(), nil
}

func validTick(tick string) bool {
	n := utf8.RuneCountInString(tick)
	return n == 4 || n == 5
}

func (b *Brc20) Validate(ins *Inscription) error {
	if ins.Kind != KindBrc20 {
		return invalid("not a brc20 inscription: %s", ins.Kind)
	}
	if !validTick(ins.AssetID) {
		return invalid("brc20 tick %q must be 4 or 5 characters", ins.AssetID)
	}
	if ins.Amount == nil || ins.Amount.Sign() <= 0 {
		return invalid("brc20 amount must be positive")
	}
	return nil
}

// EncodeForTransfer writes the brc-20 transfer json in an OP_RETURN output.
func (b *Brc20) EncodeForTransfer(assetID string, amount *big.Int) ([]byte, error) {
	if !validTick(assetID) {
		return nil, invalid("brc20 tick %q must be 4 or 5 characters", assetID)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, invalid("brc20 amount must be positive")
	}
	payload, err := json.Marshal(brc20Payload{
		P:    brc20Protocol,
		Op:   "transfer",
		Tick: assetID,
		Amt:  decimal.NewFromBigInt(amount, -b.Decimals).String(),
	})
	if err != nil {
		return nil, err
	}
	if len(payload) > txscript.MaxDataCarrierSize {
		return nil, invalid("brc20 transfer payload too large: %d bytes", len(payload))
	}
	return txscript.NullDataScript(payload)
}
