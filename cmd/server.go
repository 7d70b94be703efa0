// Server = bridge context (db, chains, signer) + task scheduler loop + http api.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TEENet-io/inscription-bridge/api"
	"github.com/TEENet-io/inscription-bridge/bridge"
	"github.com/TEENet-io/inscription-bridge/btcman/assembler"
	btcrpc "github.com/TEENet-io/inscription-bridge/btcman/rpc"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/database"
	"github.com/TEENet-io/inscription-bridge/etherman"
	"github.com/TEENet-io/inscription-bridge/ethsync"
	"github.com/TEENet-io/inscription-bridge/indexer"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/multisig"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	schedulerTick        = 1 * time.Second
	taskExecutionTimeout = 60 * time.Second
	indexerTimeout       = 10 * time.Second

	defaultEvmKeyPath = "65766d" // "evm"
	defaultBtcKeyPath = "627463" // "btc"
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type BridgeServerConfig struct {
	// eth side
	EthRpcUrl          string // json rpc url
	EthChainID         string // expected chain id, empty to accept what the node says
	EthStartBlk        string // first block to scan when no cursor is stored
	EthConfirmations   string // blocks behind head counted as safe
	BridgeContractAddr string // bridge contract address
	DstTokenAddr       string // wrapped token written into mint orders
	TokenName          string
	TokenSymbol        string // empty: use the deposited asset's symbol
	TokenDecimals      string
	MinterFee          string // taken from fungible deposits

	// signer side: a remote threshold signer, or a local master secret (dev only)
	SignerServer       string
	SignerCert         string
	SignerKey          string
	SignerCACert       string
	SignerMasterSecret string // hex
	EvmKeyPath         string // hex segments joined by "/"
	BtcKeyPath         string

	// state side
	DbFilePath string // db file path

	// btc side
	BtcRpcServer   string
	BtcRpcPort     string
	BtcRpcUsername string
	BtcRpcPwd      string
	BtcNetwork     string // regtest, testnet, mainnet, signet
	BtcChainID     string // chain id of the btc side in mint orders
	BtcMinConf     string

	// indexer side
	IndexerUrl     string
	IndexerNetwork string // esplora path prefix, empty for mainnet

	// Http side
	HttpIp     string // eg. 0.0.0.0
	HttpPort   string // eg. 8080
	AdminToken string

	// Log side
	LogLevel  string
	LogFormat string // text or json
}

// BridgeServer holds the objects that consists of the bridge server.
type BridgeServer struct {
	Bridge     *bridge.Bridge
	HttpServer *api.HttpServer

	closers []func()
}

// Close releases connections and the db in reverse order of creation.
func (bs *BridgeServer) Close() {
	for i := len(bs.closers) - 1; i >= 0; i-- {
		bs.closers[i]()
	}
}

func parseUint(name, s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, errors.Wrapf(err, "bad %s %q", name, s)
}

func parseBig(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Newf("bad %s %q", name, s)
	}
	return n, nil
}

func parseAddress(name, s string) (ethcommon.Address, error) {
	if s == "" {
		return ethcommon.Address{}, nil
	}
	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, errors.Newf("bad %s %q", name, s)
	}
	return ethcommon.HexToAddress(s), nil
}

func setupSigner(bsc *BridgeServerConfig, bs *BridgeServer) (multisig.Signer, error) {
	if bsc.SignerServer != "" {
		signer, conn, err := multisig.NewRemoteSigner(&multisig.ConnectorConfig{
			ServerAddress: bsc.SignerServer,
			Cert:          bsc.SignerCert,
			Key:           bsc.SignerKey,
			ServerCACert:  bsc.SignerCACert,
		})
		if err != nil {
			return nil, err
		}
		bs.closers = append(bs.closers, func() { conn.Close() })
		return signer, nil
	}
	if !common.IsHexString(bsc.SignerMasterSecret) {
		return nil, errors.New("no signer server and no hex master secret configured")
	}
	logger.Warn("no threshold signer configured, signing with a local master secret")
	return multisig.NewLocalSigner(common.HexStrToByteSlice(bsc.SignerMasterSecret))
}

// NewBridgeServer connects to the chains, the indexer and the signer and
// builds the bridge over the sqlite db. Nothing runs yet.
func NewBridgeServer(ctx context.Context, bsc *BridgeServerConfig) (*BridgeServer, error) {
	bs := &BridgeServer{}
	ok := false
	defer func() {
		if !ok {
			bs.Close()
		}
	}()

	// 0) parse the non-string settings
	btcParams, err := assembler.ChainParams(bsc.BtcNetwork)
	if err != nil {
		return nil, err
	}
	evmPath, err := common.ParseDerivationPath(lo.Ternary(bsc.EvmKeyPath != "", bsc.EvmKeyPath, defaultEvmKeyPath))
	if err != nil {
		return nil, err
	}
	btcPath, err := common.ParseDerivationPath(lo.Ternary(bsc.BtcKeyPath != "", bsc.BtcKeyPath, defaultBtcKeyPath))
	if err != nil {
		return nil, err
	}
	startBlk, err := parseUint("EthStartBlk", bsc.EthStartBlk, 0)
	if err != nil {
		return nil, err
	}
	confirmations, err := parseUint("EthConfirmations", bsc.EthConfirmations, 0)
	if err != nil {
		return nil, err
	}
	btcChainID, err := parseUint("BtcChainID", bsc.BtcChainID, 0)
	if err != nil {
		return nil, err
	}
	minConf, err := parseUint("BtcMinConf", bsc.BtcMinConf, bridge.DefaultUtxoMinConf)
	if err != nil {
		return nil, err
	}
	decimals, err := parseUint("TokenDecimals", bsc.TokenDecimals, inscription.DefaultBrc20Decimals)
	if err != nil {
		return nil, err
	}
	ethChainID, err := parseBig("EthChainID", bsc.EthChainID)
	if err != nil {
		return nil, err
	}
	minterFee, err := parseBig("MinterFee", bsc.MinterFee)
	if err != nil {
		return nil, err
	}
	bridgeContract, err := parseAddress("BridgeContractAddr", bsc.BridgeContractAddr)
	if err != nil {
		return nil, err
	}
	dstToken, err := parseAddress("DstTokenAddr", bsc.DstTokenAddr)
	if err != nil {
		return nil, err
	}

	// 1) db and the stores over it
	db, err := database.OpenSQLite(bsc.DbFilePath)
	if err != nil {
		return nil, err
	}
	bs.closers = append(bs.closers, func() { db.Close() })

	stateDb, err := state.NewStateDB(db)
	if err != nil {
		return nil, err
	}
	bs.closers = append(bs.closers, stateDb.Close)
	ledgerStorage, err := btcvault.NewLedgerSQLiteStorage(db)
	if err != nil {
		return nil, err
	}
	bs.closers = append(bs.closers, ledgerStorage.Close)
	taskStorage, err := scheduler.NewTaskSQLiteStorage(db)
	if err != nil {
		return nil, err
	}
	bs.closers = append(bs.closers, taskStorage.Close)

	// 2) chains, indexer, signer
	btcRpcClient, err := btcrpc.NewRpcClient(&btcrpc.RpcClientConfig{
		ServerAddr: bsc.BtcRpcServer,
		Port:       bsc.BtcRpcPort,
		Username:   bsc.BtcRpcUsername,
		Pwd:        bsc.BtcRpcPwd,
	})
	if err != nil {
		return nil, err
	}
	bs.closers = append(bs.closers, btcRpcClient.Close)

	myEtherman, err := etherman.NewEtherman(&etherman.Config{
		URL:                   bsc.EthRpcUrl,
		BridgeContractAddress: bridgeContract,
		Confirmations:         confirmations,
	})
	if err != nil {
		return nil, err
	}

	myIndexer, err := indexer.New(indexer.Config{
		URL:     bsc.IndexerUrl,
		Network: bsc.IndexerNetwork,
		Timeout: indexerTimeout,
	})
	if err != nil {
		return nil, err
	}

	signer, err := setupSigner(bsc, bs)
	if err != nil {
		return nil, err
	}

	// 3) the bridge itself
	b, err := bridge.New(ctx, &bridge.Config{
		Swapper: swapper.Config{
			BtcParams:   btcParams,
			BtcChainID:  uint32(btcChainID),
			EvmPath:     evmPath,
			DstToken:    dstToken,
			TokenName:   bsc.TokenName,
			TokenSymbol: bsc.TokenSymbol,
			Decimals:    uint8(decimals),
			MinterFee:   minterFee,
		},
		Collector:   ethsync.Config{ChainID: ethChainID},
		Scheduler:   scheduler.Config{ExecutionTimeout: taskExecutionTimeout},
		BtcPath:     btcPath,
		StartBlock:  startBlk,
		AdminToken:  bsc.AdminToken,
		UtxoMinConf: int(minConf),
	}, bridge.Deps{
		Store:   stateDb,
		Ledger:  btcvault.NewUtxoLedger(ledgerStorage, btcParams, nil),
		Tasks:   taskStorage,
		Indexer: myIndexer,
		Btc:     btcRpcClient,
		Evm:     myEtherman,
		Signer:  signer,
		Assets: inscription.NewRegistry(
			inscription.NewBrc20(int32(decimals)),
			inscription.NewNft(),
			inscription.NewRune(),
		),
	})
	if err != nil {
		return nil, err
	}
	bs.Bridge = b
	bs.HttpServer = api.NewHttpServer(bsc.HttpIp, bsc.HttpPort, b)

	ok = true
	return bs, nil
}

// Run bootstraps the bridge and blocks running the scheduler loop and the
// http server until ctx is done or one of them fails.
func (bs *BridgeServer) Run(ctx context.Context) error {
	if err := bs.Bridge.Bootstrap(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bs.Bridge.Scheduler().Loop(gctx, schedulerTick, bs.Bridge.Prepare)
	})
	g.Go(func() error {
		return bs.HttpServer.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Create, then start the bridge server and wait.
// Press Ctrl-C to kill the server.
func StartBridgeServerAndWait(bsc *BridgeServerConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Launch a new goroutine to handle the signal
	go func() {
		sig := <-sigCh
		logger.Infof("received signal: %v, cancelling context...", sig)
		cancel()
	}()

	bs, err := NewBridgeServer(ctx, bsc)
	if err != nil {
		logger.Errorf("failed to create bridge server: err=%v", err)
		return err
	}
	defer bs.Close()

	return bs.Run(ctx)
}
