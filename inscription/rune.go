package inscription

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Runestone layout: OP_RETURN OP_13 <pushes>, the pushes concatenate to a
// sequence of LEB128 integers. Fields are tag/value pairs until the body
// tag, then edicts of (block delta, tx delta, amount, output).
const (
	runestoneMagic = txscript.OP_13
	tagBody        = 0
	tagPointer     = 22
	maxLEB128Bytes = 19 // u128
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// RuneID is the etching position of a rune, written block:tx.
type RuneID struct {
	Block uint64
	Tx    uint32
}

func (id RuneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

func ParseRuneID(s string) (RuneID, error) {
	block, tx, ok := strings.Cut(s, ":")
	if !ok {
		return RuneID{}, invalid("rune id %q must be block:tx", s)
	}
	b, err := strconv.ParseUint(block, 10, 64)
	if err != nil {
		return RuneID{}, invalid("rune id %q: %v", s, err)
	}
	t, err := strconv.ParseUint(tx, 10, 32)
	if err != nil {
		return RuneID{}, invalid("rune id %q: %v", s, err)
	}
	if b == 0 && t != 0 {
		return RuneID{}, invalid("rune id %q: tx without block", s)
	}
	return RuneID{Block: b, Tx: uint32(t)}, nil
}

// Edict moves Amount of rune ID to tx output Output.
type Edict struct {
	ID     RuneID
	Amount *big.Int
	Output uint32
}

func appendLEB128(buf []byte, v *big.Int) []byte {
	n := new(big.Int).Set(v)
	mask := big.NewInt(0x7f)
	for {
		b := byte(new(big.Int).And(n, mask).Uint64())
		n.Rsh(n, 7)
		if n.Sign() == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func readLEB128(buf []byte) (*big.Int, int, error) {
	v := new(big.Int)
	for i := 0; i < len(buf) && i < maxLEB128Bytes; i++ {
		part := new(big.Int).SetUint64(uint64(buf[i] & 0x7f))
		v.Or(v, part.Lsh(part, uint(7*i)))
		if buf[i]&0x80 == 0 {
			if v.Cmp(maxU128) > 0 {
				return nil, 0, invalid("runestone integer overflows u128")
			}
			return v, i + 1, nil
		}
	}
	return nil, 0, invalid("truncated runestone integer")
}

// EncodeRunestone builds the OP_RETURN script carrying edicts. Edicts must
// be sorted by rune id.
func EncodeRunestone(edicts []Edict) ([]byte, error) {
	return encodeRunestone(nil, edicts)
}

// EncodeRunestonePointer is EncodeRunestone with unallocated runes sent to
// output pointer instead of the first non OP_RETURN output.
func EncodeRunestonePointer(edicts []Edict, pointer uint32) ([]byte, error) {
	return encodeRunestone(&pointer, edicts)
}

func encodeRunestone(pointer *uint32, edicts []Edict) ([]byte, error) {
	var payload []byte
	if pointer != nil {
		payload = appendLEB128(payload, big.NewInt(tagPointer))
		payload = appendLEB128(payload, new(big.Int).SetUint64(uint64(*pointer)))
	}
	payload = appendLEB128(payload, big.NewInt(tagBody))
	var prev RuneID
	for _, e := range edicts {
		if e.ID.Block < prev.Block || (e.ID.Block == prev.Block && e.ID.Tx < prev.Tx) {
			return nil, invalid("edicts are not sorted by rune id")
		}
		if e.Amount == nil || e.Amount.Sign() < 0 || e.Amount.Cmp(maxU128) > 0 {
			return nil, invalid("edict amount out of range")
		}
		blockDelta := e.ID.Block - prev.Block
		txDelta := uint64(e.ID.Tx)
		if blockDelta == 0 {
			txDelta = uint64(e.ID.Tx - prev.Tx)
		}
		payload = appendLEB128(payload, new(big.Int).SetUint64(blockDelta))
		payload = appendLEB128(payload, new(big.Int).SetUint64(txDelta))
		payload = appendLEB128(payload, e.Amount)
		payload = appendLEB128(payload, new(big.Int).SetUint64(uint64(e.Output)))
		prev = e.ID
	}

	b := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddOp(runestoneMagic)
	for len(payload) > 0 {
		n := min(len(payload), maxPushLen)
		b.AddData(payload[:n])
		payload = payload[n:]
	}
	return b.Script()
}

// DecodeRunestone finds the runestone output of tx and returns its edicts.
// ok is false when tx carries no runestone.
func DecodeRunestone(tx *wire.MsgTx) (edicts []Edict, ok bool, err error) {
	for _, out := range tx.TxOut {
		script := out.PkScript
		if len(script) < 2 || script[0] != txscript.OP_RETURN || script[1] != runestoneMagic {
			continue
		}

		var payload []byte
		tok := txscript.MakeScriptTokenizer(0, script[2:])
		for tok.Next() {
			value, isPush := pushValue(tok.Opcode(), tok.Data())
			if !isPush {
				return nil, true, invalid("runestone contains opcode %x", tok.Opcode())
			}
			payload = append(payload, value...)
		}
		if err := tok.Err(); err != nil {
			return nil, true, invalid("runestone script: %v", err)
		}
		edicts, err := decodeRunestonePayload(payload, len(tx.TxOut))
		return edicts, true, err
	}
	return nil, false, nil
}

func decodeRunestonePayload(payload []byte, outputs int) ([]Edict, error) {
	var ints []*big.Int
	for len(payload) > 0 {
		v, n, err := readLEB128(payload)
		if err != nil {
			return nil, err
		}
		ints = append(ints, v)
		payload = payload[n:]
	}

	// skip fields up to the body tag
	i := 0
	for i < len(ints) {
		if ints[i].Sign() == tagBody {
			i++
			break
		}
		i += 2
	}
	body := ints[min(i, len(ints)):]
	if len(body)%4 != 0 {
		return nil, invalid("runestone body has %d integers, want a multiple of 4", len(body))
	}

	var (
		edicts []Edict
		id     RuneID
	)
	for j := 0; j < len(body); j += 4 {
		blockDelta, txDelta, amount, output := body[j], body[j+1], body[j+2], body[j+3]
		if !blockDelta.IsUint64() || !txDelta.IsUint64() || !output.IsUint64() {
			return nil, invalid("runestone edict field overflows")
		}
		if blockDelta.Sign() == 0 {
			id.Tx += uint32(txDelta.Uint64())
		} else {
			id.Block += blockDelta.Uint64()
			id.Tx = uint32(txDelta.Uint64())
		}
		if output.Uint64() > uint64(outputs) {
			return nil, invalid("runestone edict output %d out of range", output.Uint64())
		}
		edicts = append(edicts, Edict{ID: id, Amount: amount, Output: uint32(output.Uint64())})
	}
	return edicts, nil
}

// Rune bridges runes moved by a runestone edict.
type Rune struct{}

func NewRune() *Rune { return &Rune{} }

func (r *Rune) Kind() Kind     { return KindRune }
func (r *Rune) Fungible() bool { return true }
func (r *Rune) Carried() bool  { return true }

// ParseInscription sums the edicts of the first rune named in the runestone.
func (r *Rune) ParseInscription(tx *wire.MsgTx) (*Inscription, error) {
	edicts, ok, err := DecodeRunestone(tx)
	if err != nil {
		return nil, err
	}
	if !ok || len(edicts) == 0 {
		return nil, invalid("no rune transfer in tx %s", tx.TxHash())
	}

	id := edicts[0].ID
	total := new(big.Int)
	for _, e := range edicts {
		if e.ID == id {
			total.Add(total, e.Amount)
		}
	}
	return &Inscription{
		Kind:     KindRune,
		AssetID:  id.String(),
		Symbol:   id.String(),
		Amount:   total,
		RevealTx: tx.TxHash().String(),
	}, nil
}

func (r *Rune) Validate(ins *Inscription) error {
	if ins.Kind != KindRune {
		return invalid("not a rune: %s", ins.Kind)
	}
	id, err := ParseRuneID(ins.AssetID)
	if err != nil {
		return err
	}
	if id.Block == 0 {
		return invalid("rune id %s is not etched", id)
	}
	if ins.Amount == nil || ins.Amount.Sign() <= 0 || ins.Amount.Cmp(maxU128) > 0 {
		return invalid("rune amount out of range")
	}
	return nil
}

// EncodeForTransfer moves amount of the rune to output 0. The rest of the
// runes held by the inputs goes back to the change output.
func (r *Rune) EncodeForTransfer(assetID string, amount *big.Int) ([]byte, error) {
	id, err := ParseRuneID(assetID)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, invalid("rune amount must be positive")
	}
	return EncodeRunestonePointer([]Edict{{ID: id, Amount: amount, Output: 0}}, ChangeOutput)
}
