package rpc

import (
	"context"
	"encoding/hex"
	"net"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/errs"
)

const (
	CONFIRM_SAFE = 6 // minimum confirm threshold to consider Tx is finalized.
	MAX_CONFIRM  = 9999999
)

type RpcClientConfig struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
}

// Wrapper of btc rpc client.
type RpcClient struct {
	client *rpcclient.Client
}

// Create a new RPC client which
// contains several useful functions
// to interact with bitcoin node.
func NewRpcClient(rcc *RpcClientConfig) (*RpcClient, error) {
	// Connect to Bitcoin node using HTTP
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         net.JoinHostPort(rcc.ServerAddr, rcc.Port),
		User:         rcc.Username,
		Pass:         rcc.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create btc rpc client")
	}

	return &RpcClient{client}, nil
}

// Close the rpc client
func (r *RpcClient) Close() {
	r.client.Shutdown()
}

// Get the latest block height.
func (r *RpcClient) GetLatestBlockHeight() (int64, error) {
	height, err := r.client.GetBlockCount()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block count")
	}
	return height, nil
}

// Get the UTXO(s) of an address with at least minConf confirmations.
// Notice: the node only tracks addresses imported into its wallet.
func (r *RpcClient) GetUtxoList(myAddress btcutil.Address, minConf int) ([]utxo.UTXO, error) {
	unspentOutputs, err := r.client.ListUnspentMinMaxAddresses(minConf, MAX_CONFIRM, []btcutil.Address{myAddress})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list unspent of %s", myAddress)
	}

	u := make([]utxo.UTXO, 0, len(unspentOutputs))
	for _, item := range unspentOutputs {
		txHash, err := chainhash.NewHashFromStr(item.TxID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid txid %q", item.TxID)
		}
		pkScript, err := hex.DecodeString(item.ScriptPubKey)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid script of %s:%d", item.TxID, item.Vout)
		}
		amount, err := btcutil.NewAmount(item.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid amount of %s:%d", item.TxID, item.Vout)
		}

		u = append(u, utxo.UTXO{
			TxID:      item.TxID,
			TxHash:    txHash,
			Vout:      item.Vout,
			Amount:    int64(amount),
			PkScriptT: utxo.ScriptType(pkScript),
			PkScript:  pkScript,
		})
	}
	return u, nil
}

// There is no direct "get balance of an address" on btc node.
// This function sums up the value of all UTXOs associated with the given address.
// Note: if balance = 0, it can mean
// 1) the address really doesn't have any money.
// 2) the address is not tracked by the node.
func (r *RpcClient) GetBalance(myAddress btcutil.Address, minConf int) (int64, error) {
	utxos, err := r.GetUtxoList(myAddress, minConf)
	if err != nil {
		return 0, err
	}

	var totalBalance int64
	for _, utxo := range utxos {
		totalBalance += utxo.Amount
	}
	return totalBalance, nil
}

// FeeRatePercentiles returns the 10th, 25th, 50th, 75th and 90th percentile
// fee rates (sat/vB) of the latest block.
func (r *RpcClient) FeeRatePercentiles(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	height, err := r.GetLatestBlockHeight()
	if err != nil {
		return nil, err
	}
	stats, err := r.client.GetBlockStats(int(height), &[]string{"feerate_percentiles"})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get stats of block %d", height)
	}
	return stats.FeeratePercentiles, nil
}

// Send raw transaction to bitcoin network. Nothing is sent once ctx is done.
func (r *RpcClient) SendRawTx(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// allowHighFees=true: the fee is computed by the bridge, do not let the
	// node second-guess it.
	txHash, err := r.client.SendRawTransaction(tx, true)
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "tx %s", tx.TxHash()), errs.ChainSendFailed)
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCVerifyAlreadyInChain {
			err = errors.Mark(err, errs.AlreadyOnChain)
		}
		return nil, err
	}
	return txHash, nil
}
