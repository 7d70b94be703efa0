package indexer

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
)

// TxInfo is the esplora view of a transaction.
type TxInfo struct {
	TxID     string `json:"txid"`
	Version  int32  `json:"version"`
	Locktime uint32 `json:"locktime"`
	Vin      []Vin  `json:"vin"`
	Vout     []Vout `json:"vout"`
	Status   struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint64 `json:"block_height"`
	} `json:"status"`
}

type Vin struct {
	TxID       string   `json:"txid"`
	Vout       uint32   `json:"vout"`
	ScriptSig  string   `json:"scriptsig"`
	Sequence   uint32   `json:"sequence"`
	IsCoinbase bool     `json:"is_coinbase"`
	Witness    []string `json:"witness"`
	Prevout    *Vout    `json:"prevout"`
}

type Vout struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyType    string `json:"scriptpubkey_type"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address,omitempty"`
	Value               int64  `json:"value"`
}

// MsgTx rebuilds the wire transaction. The result hashes to TxID when the
// indexer returned the full witness data.
func (info *TxInfo) MsgTx() (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(info.Version)
	tx.LockTime = info.Locktime

	for i, in := range info.Vin {
		var prevHash chainhash.Hash
		if !in.IsCoinbase {
			h, err := chainhash.NewHashFromStr(in.TxID)
			if err != nil {
				return nil, errors.Wrapf(err, "vin %d: invalid txid", i)
			}
			prevHash = *h
		}
		scriptSig, err := hex.DecodeString(in.ScriptSig)
		if err != nil {
			return nil, errors.Wrapf(err, "vin %d: invalid scriptsig", i)
		}
		witness := make(wire.TxWitness, 0, len(in.Witness))
		for j, item := range in.Witness {
			b, err := hex.DecodeString(item)
			if err != nil {
				return nil, errors.Wrapf(err, "vin %d: invalid witness item %d", i, j)
			}
			witness = append(witness, b)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(&prevHash, in.Vout), scriptSig, witness)
		txIn.Sequence = in.Sequence
		tx.AddTxIn(txIn)
	}

	for i, out := range info.Vout {
		script, err := hex.DecodeString(out.ScriptPubKey)
		if err != nil {
			return nil, errors.Wrapf(err, "vout %d: invalid scriptpubkey", i)
		}
		tx.AddTxOut(wire.NewTxOut(out.Value, script))
	}
	return tx, nil
}

// Inscription is an entry of the hiro ordinals inscription list.
type Inscription struct {
	ID       string `json:"id"`
	Number   int64  `json:"number"`
	Address  string `json:"address"`
	TxID     string `json:"tx_id"`
	Output   string `json:"output"` // <txid>:<vout> currently holding it
	Location string `json:"location"`
	Value    string `json:"value"`
	// ContentType of the inscribed body, e.g. text/plain;charset=utf-8
	ContentType string `json:"content_type"`
}

type listInscriptionsResponse struct {
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Total   int           `json:"total"`
	Results []Inscription `json:"results"`
}
