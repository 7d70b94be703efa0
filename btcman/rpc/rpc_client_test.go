package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fakeNode answers bitcoind style JSON-RPC calls with canned results.
type fakeNode struct {
	results map[string]any
	errors  map[string]*rpcError

	mu    sync.Mutex
	calls map[string]int
}

func (n *fakeNode) callsOf(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	if n.calls == nil {
		n.calls = map[string]int{}
	}
	n.calls[req.Method]++
	n.mu.Unlock()

	resp := map[string]any{"id": req.ID, "result": nil, "error": nil}
	if e, ok := n.errors[req.Method]; ok {
		resp["error"] = e
	} else if res, ok := n.results[req.Method]; ok {
		resp["result"] = res
	} else {
		resp["error"] = &rpcError{Code: -32601, Message: "Method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func setupClient(t *testing.T, node *fakeNode) *RpcClient {
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	r, err := NewRpcClient(&RpcClientConfig{ServerAddr: host, Port: port, Username: "user", Pwd: "pass"})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func randP2wpkh(t *testing.T) (btcutil.Address, []byte) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(common.RandBytes(20), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return addr, script
}

func TestGetUtxoListAndBalance(t *testing.T) {
	addr, script := randP2wpkh(t)
	txid1 := hex.EncodeToString(common.RandBytes(32))
	txid2 := hex.EncodeToString(common.RandBytes(32))

	node := &fakeNode{results: map[string]any{
		"listunspent": []map[string]any{
			{"txid": txid1, "vout": 0, "address": addr.EncodeAddress(), "scriptPubKey": hex.EncodeToString(script), "amount": 0.1, "confirmations": 10, "spendable": true},
			{"txid": txid2, "vout": 3, "address": addr.EncodeAddress(), "scriptPubKey": hex.EncodeToString(script), "amount": 0.00001, "confirmations": 7, "spendable": true},
		},
	}}
	r := setupClient(t, node)

	utxos, err := r.GetUtxoList(addr, CONFIRM_SAFE)
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	assert.Equal(t, txid1, utxos[0].TxID)
	assert.Equal(t, txid1, utxos[0].TxHash.String())
	assert.Equal(t, int64(10_000_000), utxos[0].Amount)
	assert.Equal(t, utxo.PubKeyScriptType(utxo.P2WPKH_SCRIPT_T), utxos[0].PkScriptT)
	assert.Equal(t, uint32(3), utxos[1].Vout)
	assert.Equal(t, int64(1_000), utxos[1].Amount)

	balance, err := r.GetBalance(addr, CONFIRM_SAFE)
	require.NoError(t, err)
	assert.Equal(t, int64(10_001_000), balance)
}

func TestFeeRatePercentiles(t *testing.T) {
	node := &fakeNode{results: map[string]any{
		"getblockcount": 812,
		"getblockstats": map[string]any{"feerate_percentiles": []int64{1, 2, 5, 8, 13}},
	}}
	r := setupClient(t, node)

	height, err := r.GetLatestBlockHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(812), height)

	percentiles, err := r.FeeRatePercentiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 5, 8, 13}, percentiles)
}

func TestSendRawTxFailure(t *testing.T) {
	node := &fakeNode{
		results: map[string]any{"getinfo": map[string]any{"version": 240200, "protocolversion": 70002}},
		errors:  map[string]*rpcError{"sendrawtransaction": {Code: -26, Message: "min relay fee not met"}},
	}
	r := setupClient(t, node)

	tx := wire.NewMsgTx(wire.TxVersion)
	_, err := r.SendRawTx(context.Background(), tx)
	assert.ErrorIs(t, err, errs.ChainSendFailed)
	assert.NotErrorIs(t, err, errs.AlreadyOnChain)
}

func TestSendRawTxAlreadyInChain(t *testing.T) {
	node := &fakeNode{
		results: map[string]any{"getinfo": map[string]any{"version": 240200, "protocolversion": 70002}},
		errors:  map[string]*rpcError{"sendrawtransaction": {Code: -27, Message: "Transaction already in block chain"}},
	}
	r := setupClient(t, node)

	_, err := r.SendRawTx(context.Background(), wire.NewMsgTx(wire.TxVersion))
	assert.ErrorIs(t, err, errs.ChainSendFailed)
	assert.ErrorIs(t, err, errs.AlreadyOnChain)
}

func TestSendRawTxAfterCancel(t *testing.T) {
	node := &fakeNode{results: map[string]any{"sendrawtransaction": "00"}}
	r := setupClient(t, node)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.SendRawTx(ctx, wire.NewMsgTx(wire.TxVersion))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, node.callsOf("sendrawtransaction"))
}
