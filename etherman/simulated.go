package etherman

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var (
	simulatedChainID = big.NewInt(1337)
	blockGasLimit    = uint64(30_000_000)

	// Runtime code of a stand-in bridge contract: it emits LOG1 with the
	// first 32 bytes of the calldata as topic and the rest as data.
	//
	//	CALLDATASIZE PUSH1 0 PUSH1 0 CALLDATACOPY
	//	PUSH1 0 MLOAD PUSH1 0x20 CALLDATASIZE SUB PUSH1 0x20 LOG1 STOP
	logEmitterCode = common.FromHex("0x3660006000376000516020360360" + "20a100")
)

type SimulatedChain struct {
	Backend       *simulated.Backend
	Accounts      []*bind.TransactOpts
	Keys          []*ecdsa.PrivateKey
	BridgeAddress common.Address
}

// NewSimulatedChain funds nAccount random accounts plus the given extra
// addresses and installs the log emitter as the bridge contract.
func NewSimulatedChain(nAccount int, funded ...common.Address) *SimulatedChain {
	accounts := make([]*bind.TransactOpts, nAccount)
	keys := make([]*ecdsa.PrivateKey, nAccount)
	for i := 0; i < nAccount; i++ {
		keys[i], accounts[i] = newAuth()
	}

	// allocate funds to accounts
	balance, _ := new(big.Int).SetString("100000000000000000000", 10)
	genesisAlloc := types.GenesisAlloc{}
	for _, account := range accounts {
		genesisAlloc[account.From] = types.Account{Balance: balance}
	}
	for _, addr := range funded {
		genesisAlloc[addr] = types.Account{Balance: balance}
	}

	bridgeAddress := common.BytesToAddress(crypto.Keccak256([]byte("bridge"))[:20])
	genesisAlloc[bridgeAddress] = types.Account{Code: logEmitterCode, Balance: big.NewInt(0)}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return &SimulatedChain{
		Backend:       backend,
		Accounts:      accounts,
		Keys:          keys,
		BridgeAddress: bridgeAddress,
	}
}

func newAuth() (*ecdsa.PrivateKey, *bind.TransactOpts) {
	sk, _ := crypto.GenerateKey()
	auth, _ := bind.NewKeyedTransactorWithChainID(sk, simulatedChainID)
	return sk, auth
}

// EmitLog has account i call the log emitter, which logs data under topic.
// The block is not committed.
func (sim *SimulatedChain) EmitLog(i int, topic common.Hash, data []byte) (*types.Transaction, error) {
	client := sim.Backend.Client()
	auth := sim.Accounts[i]

	nonce, err := client.PendingNonceAt(auth.Context, auth.From)
	if err != nil {
		return nil, err
	}
	gasPrice, err := client.SuggestGasPrice(auth.Context)
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      200_000,
		To:       &sim.BridgeAddress,
		Value:    big.NewInt(0),
		Data:     append(topic.Bytes(), data...),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(simulatedChainID), sim.Keys[i])
	if err != nil {
		return nil, err
	}
	return signed, client.SendTransaction(auth.Context, signed)
}
