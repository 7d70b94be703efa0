package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
)

func sampleTx() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	prev := chainhash.Hash(common.RandBytes32())
	in := wire.NewTxIn(wire.NewOutPoint(&prev, 1), nil, wire.TxWitness{common.RandBytes(64), common.RandBytes(80), common.RandBytes(33)})
	in.Sequence = 0xfffffffd
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(546, append([]byte{0x00, 0x14}, common.RandBytes(20)...)))
	tx.LockTime = 800_000
	return tx
}

func toInfo(tx *wire.MsgTx) *TxInfo {
	info := &TxInfo{TxID: tx.TxHash().String(), Version: tx.Version, Locktime: tx.LockTime}
	for _, in := range tx.TxIn {
		witness := make([]string, len(in.Witness))
		for i, w := range in.Witness {
			witness[i] = hex.EncodeToString(w)
		}
		info.Vin = append(info.Vin, Vin{
			TxID:      in.PreviousOutPoint.Hash.String(),
			Vout:      in.PreviousOutPoint.Index,
			ScriptSig: hex.EncodeToString(in.SignatureScript),
			Sequence:  in.Sequence,
			Witness:   witness,
		})
	}
	for _, out := range tx.TxOut {
		info.Vout = append(info.Vout, Vout{ScriptPubKey: hex.EncodeToString(out.PkScript), Value: out.Value})
	}
	return info
}

// serve starts an in-memory indexer answering with routes[path].
func serve(t *testing.T, network string, routes map[string]any) *Client {
	ln := fasthttputil.NewInmemoryListener()
	handler := func(ctx *fasthttp.RequestCtx) {
		key := string(ctx.Path())
		if q := ctx.QueryArgs().String(); q != "" {
			key += "?" + q
		}
		body, ok := routes[key]
		if !ok {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		b, _ := json.Marshal(body)
		ctx.SetContentType("application/json")
		ctx.SetBody(b)
	}
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	c, err := New(Config{
		URL:     "http://indexer.local",
		Network: network,
		Dial:    func(string) (net.Conn, error) { return ln.Dial() },
	})
	require.NoError(t, err)
	return c
}

func TestGetTransaction(t *testing.T) {
	tx := sampleTx()
	txid := tx.TxHash().String()
	other := sampleTx()

	c := serve(t, "regtest", map[string]any{
		"/regtest/api/tx/" + txid:                   toInfo(tx),
		"/regtest/api/tx/" + other.TxHash().String(): toInfo(tx),
	})
	ctx := context.Background()

	got, err := c.GetTransaction(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, txid, got.TxHash().String())
	assert.Equal(t, tx.WitnessHash(), got.WitnessHash())

	// indexer answering with the wrong tx
	_, err = c.GetTransaction(ctx, other.TxHash().String())
	assert.Error(t, err)

	_, err = c.GetTransaction(ctx, hex.EncodeToString(common.RandBytes(32)))
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestGetInscriptions(t *testing.T) {
	addr := "bcrt1qexample"
	id := hex.EncodeToString(common.RandBytes(32)) + "i0"
	c := serve(t, "", map[string]any{
		"/ordinals/v1/inscriptions?address=" + addr + "&id=" + id: listInscriptionsResponse{
			Total: 1,
			Results: []Inscription{
				{ID: id, Address: addr, Output: "abcd:0"},
			},
		},
		"/ordinals/v1/inscriptions?address=" + addr + "&id=missingi0": listInscriptionsResponse{},
	})
	ctx := context.Background()

	list, err := c.GetInscriptions(ctx, addr, id)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ins, err := c.GetInscription(ctx, addr, id)
	require.NoError(t, err)
	assert.Equal(t, "abcd:0", ins.Output)

	_, err = c.GetInscription(ctx, addr, "missingi0")
	assert.ErrorIs(t, err, errs.NotFound)
}
