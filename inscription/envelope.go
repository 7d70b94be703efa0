package inscription

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var ordTag = []byte("ord")

const (
	tagContentType = 1
	annexTag       = 0x50
	maxPushLen     = txscript.MaxScriptElementSize
)

// Envelope is one ordinal inscription found in a tapscript:
//
//	OP_FALSE OP_IF "ord" [tag value]... OP_0 [body push]... OP_ENDIF
type Envelope struct {
	Input       int
	Index       int // position among all envelopes of the tx
	ContentType string
	Body        []byte
}

// pushValue returns the bytes pushed by a token, treating the small
// integer opcodes the way a minimal push encoder emits them.
func pushValue(op byte, data []byte) ([]byte, bool) {
	switch {
	case op == txscript.OP_0:
		return []byte{}, true
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return []byte{op - txscript.OP_1 + 1}, true
	case op == txscript.OP_1NEGATE:
		return []byte{0x81}, true
	case op <= txscript.OP_PUSHDATA4:
		return data, true
	}
	return nil, false
}

// tapscript returns the leaf script of a taproot script path spend.
func tapscript(witness wire.TxWitness) []byte {
	if len(witness) >= 2 && len(witness[len(witness)-1]) > 0 && witness[len(witness)-1][0] == annexTag {
		witness = witness[:len(witness)-1]
	}
	if len(witness) < 2 {
		return nil
	}
	return witness[len(witness)-2]
}

// ParseEnvelopes extracts every inscription envelope from the inputs of tx.
// Malformed envelopes are skipped.
func ParseEnvelopes(tx *wire.MsgTx) []Envelope {
	var out []Envelope
	for i, in := range tx.TxIn {
		script := tapscript(in.Witness)
		if script == nil {
			continue
		}
		for _, env := range parseScript(script) {
			env.Input = i
			env.Index = len(out)
			out = append(out, env)
		}
	}
	return out
}

func parseScript(script []byte) []Envelope {
	var out []Envelope
	tok := txscript.MakeScriptTokenizer(0, script)
	prev := [2]byte{txscript.OP_INVALIDOPCODE, txscript.OP_INVALIDOPCODE}
	for tok.Next() {
		if prev[0] == txscript.OP_FALSE && prev[1] == txscript.OP_IF && bytes.Equal(tok.Data(), ordTag) {
			if env, ok := readEnvelope(&tok); ok {
				out = append(out, env)
			}
			prev = [2]byte{txscript.OP_INVALIDOPCODE, txscript.OP_INVALIDOPCODE}
			continue
		}
		prev[0], prev[1] = prev[1], tok.Opcode()
	}
	return out
}

// readEnvelope consumes fields and body up to OP_ENDIF.
func readEnvelope(tok *txscript.ScriptTokenizer) (Envelope, bool) {
	var (
		env    Envelope
		inBody bool
		tag    []byte
	)
	for tok.Next() {
		op := tok.Opcode()
		if op == txscript.OP_ENDIF {
			return env, true
		}
		value, ok := pushValue(op, tok.Data())
		if !ok {
			return Envelope{}, false
		}

		switch {
		case inBody:
			env.Body = append(env.Body, value...)
		case tag == nil && len(value) == 0:
			inBody = true
		case tag == nil:
			tag = value
		default:
			if len(tag) == 1 && tag[0] == tagContentType {
				env.ContentType = string(value)
			}
			tag = nil
		}
	}
	return Envelope{}, false
}

// BuildEnvelopeScript writes an inscription envelope after prefix, which is
// usually <pubkey> OP_CHECKSIG.
func BuildEnvelopeScript(prefix []byte, contentType string, body []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOps(prefix)
	b.AddOp(txscript.OP_FALSE).AddOp(txscript.OP_IF).AddData(ordTag)
	b.AddData([]byte{tagContentType}).AddData([]byte(contentType))
	b.AddOp(txscript.OP_0)
	for len(body) > 0 {
		n := min(len(body), maxPushLen)
		b.AddData(body[:n])
		body = body[n:]
	}
	b.AddOp(txscript.OP_ENDIF)
	return b.Script()
}
