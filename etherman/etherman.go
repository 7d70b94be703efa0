package etherman

import (
	"context"
	"math/big"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/multisig"
)

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.PendingStateReader
	ethereum.TransactionSender
	ChainID(ctx context.Context) (*big.Int, error)
}

type Etherman struct {
	ethClient    ethereumClient
	cfg          *Config
	mintGasLimit uint64

	mu            sync.RWMutex
	bridgeAddress ethcommon.Address
}

func NewEtherman(cfg *Config) (*Etherman, error) {
	ethClient, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", cfg.URL)
	}
	return NewEthermanWithClient(ethClient, cfg), nil
}

func NewEthermanWithClient(client ethereumClient, cfg *Config) *Etherman {
	gasLimit := cfg.MintGasLimit
	if gasLimit == 0 {
		gasLimit = DefaultMintGasLimit
	}
	return &Etherman{
		ethClient:     client,
		cfg:           cfg,
		mintGasLimit:  gasLimit,
		bridgeAddress: cfg.BridgeContractAddress,
	}
}

func (etherman *Etherman) BridgeAddress() ethcommon.Address {
	etherman.mu.RLock()
	defer etherman.mu.RUnlock()
	return etherman.bridgeAddress
}

// SetBridgeAddress points the client at a redeployed bridge contract.
func (etherman *Etherman) SetBridgeAddress(addr ethcommon.Address) {
	etherman.mu.Lock()
	defer etherman.mu.Unlock()
	etherman.bridgeAddress = addr
}

// SafeBlockNumber is the head minus the configured confirmations.
func (etherman *Etherman) SafeBlockNumber(ctx context.Context) (uint64, error) {
	head, err := etherman.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get head")
	}
	n := head.Number.Uint64()
	if n < etherman.cfg.Confirmations {
		return 0, nil
	}
	return n - etherman.cfg.Confirmations, nil
}

// FilterLogs returns the bridge contract logs in [from, to].
func (etherman *Etherman) FilterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	logs, err := etherman.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{etherman.BridgeAddress()},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter logs [%d, %d]", from, to)
	}
	return logs, nil
}

func (etherman *Etherman) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := etherman.ethClient.ChainID(ctx)
	return id, errors.Wrap(err, "failed to get chain id")
}

func (etherman *Etherman) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := etherman.ethClient.SuggestGasPrice(ctx)
	return price, errors.Wrap(err, "failed to get gas price")
}

func (etherman *Etherman) PendingNonceAt(ctx context.Context, addr ethcommon.Address) (uint64, error) {
	nonce, err := etherman.ethClient.PendingNonceAt(ctx, addr)
	return nonce, errors.Wrapf(err, "failed to get nonce of %s", addr)
}

// QueryEvmParams reads chain id, gas price and the account nonce of the
// bridge signer. The block cursor is left at nextBlock.
func (etherman *Etherman) QueryEvmParams(ctx context.Context, account ethcommon.Address, nextBlock uint64) (*agreement.EvmParams, error) {
	chainID, err := etherman.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	gasPrice, err := etherman.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := etherman.PendingNonceAt(ctx, account)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"chainID":  chainID,
		"gasPrice": gasPrice,
		"nonce":    nonce,
	}).Debug("queried evm params")

	return &agreement.EvmParams{
		NextBlock: nextBlock,
		Nonce:     nonce,
		GasPrice:  gasPrice,
		ChainID:   chainID,
	}, nil
}

// MintTransaction builds the unsigned legacy tx calling mint(encodedOrder).
func (etherman *Etherman) MintTransaction(signedOrder []byte, params *agreement.EvmParams) (*types.Transaction, error) {
	data, err := bridgeABI.Pack("mint", signedOrder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack mint call")
	}
	to := etherman.BridgeAddress()
	return types.NewTx(&types.LegacyTx{
		Nonce:    params.Nonce,
		GasPrice: params.GasPrice,
		Gas:      etherman.mintGasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	}), nil
}

// SignTransaction signs tx with the bridge EVM key through the threshold signer.
func SignTransaction(ctx context.Context, signer multisig.Signer, path common.DerivationPath, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	txSigner := types.LatestSignerForChainID(chainID)
	sig, err := multisig.EvmSign(ctx, signer, path, txSigner.Hash(tx).Bytes())
	if err != nil {
		return nil, err
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, errors.Mark(errors.WithStack(err), errs.SigningFailed)
	}
	return signed, nil
}

func (etherman *Etherman) SendRawTx(ctx context.Context, tx *types.Transaction) error {
	if err := etherman.ethClient.SendTransaction(ctx, tx); err != nil {
		return errors.Mark(errors.Wrapf(err, "tx %s", tx.Hash()), errs.ChainSendFailed)
	}
	return nil
}
