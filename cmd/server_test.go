package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/common"
)

// offlineConfig points at nodes that are never contacted while building the
// server: the eth, btc and indexer clients all connect lazily.
func offlineConfig(t *testing.T) *BridgeServerConfig {
	return &BridgeServerConfig{
		EthRpcUrl:          "http://127.0.0.1:1",
		EthChainID:         "1337",
		BridgeContractAddr: common.RandEthAddress().Hex(),
		MinterFee:          "10",
		SignerMasterSecret: common.ByteSliceToPureHexStr(common.RandBytes(32)),
		DbFilePath:         filepath.Join(t.TempDir(), "bridge.db"),
		BtcRpcServer:       "127.0.0.1",
		BtcRpcPort:         "1",
		BtcNetwork:         "regtest",
		IndexerUrl:         "http://127.0.0.1:1",
		HttpIp:             "127.0.0.1",
		HttpPort:           "0",
		AdminToken:         "token",
	}
}

func TestNewBridgeServer(t *testing.T) {
	bsc := offlineConfig(t)
	bs, err := NewBridgeServer(context.Background(), bsc)
	require.NoError(t, err)
	defer bs.Close()

	assert.True(t, strings.HasPrefix(bs.Bridge.DepositAddress(), "bcrt1q"))
	settings := bs.Bridge.CurrentSettings()
	assert.Equal(t, int64(10), settings.Fee.Int64())
	assert.Equal(t, bsc.BridgeContractAddr, settings.BridgeContract.Hex())
	assert.NotNil(t, bs.HttpServer)
}

func TestNewBridgeServerRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*BridgeServerConfig){
		"network":  func(c *BridgeServerConfig) { c.BtcNetwork = "dogecoin" },
		"fee":      func(c *BridgeServerConfig) { c.MinterFee = "ten" },
		"contract": func(c *BridgeServerConfig) { c.BridgeContractAddr = "0x1234" },
		"start":    func(c *BridgeServerConfig) { c.EthStartBlk = "-1" },
		"path":     func(c *BridgeServerConfig) { c.EvmKeyPath = "zz" },
		"secret":   func(c *BridgeServerConfig) { c.SignerMasterSecret = "abcd" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bsc := offlineConfig(t)
			mutate(bsc)
			_, err := NewBridgeServer(context.Background(), bsc)
			assert.Error(t, err)
		})
	}
}
