package bridge

import (
	"context"
	"database/sql"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/btcman/utxo"
	"github.com/TEENet-io/inscription-bridge/btcvault"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/database"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/etherman"
	"github.com/TEENet-io/inscription-bridge/inscription"
	"github.com/TEENet-io/inscription-bridge/multisig"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/state"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

var (
	testParams = &chaincfg.TestNet3Params
	btcPath    = common.DerivationPath{[]byte("btc")}
	evmPath    = common.DerivationPath{[]byte("evm")}
)

const adminToken = "s3cret"

type fakeNode struct {
	utxos []utxo.UTXO
	calls int
}

func (f *fakeNode) GetUtxoList(btcutil.Address, int) ([]utxo.UTXO, error) {
	f.calls++
	return f.utxos, nil
}

func (f *fakeNode) GetBalance(btcutil.Address, int) (int64, error) { return 12_345, nil }

func (f *fakeNode) FeeRatePercentiles(context.Context) ([]int64, error) { return []int64{1, 2, 3, 4, 5}, nil }

func (f *fakeNode) SendRawTx(context.Context, *wire.MsgTx) (*chainhash.Hash, error) {
	return nil, errors.New("not expected")
}

type fakeIndexer struct{}

func (fakeIndexer) GetTransaction(context.Context, string) (*wire.MsgTx, error) {
	return nil, errors.Wrap(errs.NotFound, "no tx")
}

type env struct {
	ctx    context.Context
	db     *sql.DB
	store  *state.StateDB
	ledger *btcvault.UtxoLedger
	tasks  *scheduler.TaskSQLiteStorage
	signer *multisig.LocalSigner
	node   *fakeNode
	sim    *etherman.SimulatedChain
	evm    *etherman.Etherman
}

func newEnv(t *testing.T) *env {
	ctx := context.Background()
	db, err := database.OpenSQLite(database.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := state.NewStateDB(db)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	ledgerStorage, err := btcvault.NewLedgerSQLiteStorage(db)
	require.NoError(t, err)
	t.Cleanup(ledgerStorage.Close)
	tasks, err := scheduler.NewTaskSQLiteStorage(db)
	require.NoError(t, err)
	t.Cleanup(tasks.Close)

	signer := multisig.NewRandomLocalSigner()
	account, err := multisig.EvmAddress(ctx, signer, evmPath)
	require.NoError(t, err)
	sim := etherman.NewSimulatedChain(1, account)
	t.Cleanup(func() { sim.Backend.Close() })

	return &env{
		ctx:    ctx,
		db:     db,
		store:  store,
		ledger: btcvault.NewUtxoLedger(ledgerStorage, testParams, nil),
		tasks:  tasks,
		signer: signer,
		node:   &fakeNode{},
		sim:    sim,
		evm: etherman.NewEthermanWithClient(sim.Backend.Client(), &etherman.Config{
			BridgeContractAddress: sim.BridgeAddress,
			Confirmations:         1,
		}),
	}
}

func (e *env) bridge(t *testing.T, startBlock uint64) *Bridge {
	b, err := New(e.ctx, &Config{
		Swapper: swapper.Config{
			BtcParams: testParams,
			EvmPath:   evmPath,
		},
		BtcPath:    btcPath,
		StartBlock: startBlock,
		AdminToken: adminToken,
	}, Deps{
		Store:   e.store,
		Ledger:  e.ledger,
		Tasks:   e.tasks,
		Indexer: fakeIndexer{},
		Btc:     e.node,
		Evm:     e.evm,
		Signer:  e.signer,
		Assets:  inscription.NewRegistry(inscription.NewBrc20(0), inscription.NewNft(), inscription.NewRune()),
	})
	require.NoError(t, err)
	return b
}

func tasksOf(t *testing.T, b *Bridge, kind scheduler.Kind) []*scheduler.Task {
	pending, err := b.Scheduler().Pending(context.Background())
	require.NoError(t, err)
	var out []*scheduler.Task
	for _, task := range pending {
		if task.Payload.Kind == kind {
			out = append(out, task)
		}
	}
	return out
}

func TestNewDerivesAddresses(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)

	addr, err := multisig.BtcAddress(e.ctx, e.signer, btcPath, testParams)
	require.NoError(t, err)
	assert.Equal(t, addr.EncodeAddress(), b.DepositAddress())

	account, err := multisig.EvmAddress(e.ctx, e.signer, evmPath)
	require.NoError(t, err)
	assert.Equal(t, account, b.EvmAccount())

	_, err = b.Params().Get()
	assert.True(t, errors.Is(err, errs.NotInitialized))
}

func TestNewRestoresState(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SetEvmParams(e.ctx, &agreement.EvmParams{
		NextBlock: 42,
		Nonce:     3,
		GasPrice:  big.NewInt(1),
		ChainID:   big.NewInt(1337),
	}))
	require.NoError(t, e.store.SetKeyedValue(e.ctx, swapper.KeyMintNonce, swapper.EncodeNonce(9)))

	first := e.bridge(t, 0)
	contract := common.RandEthAddress()
	require.NoError(t, first.Configure(e.ctx, adminToken, &Settings{Fee: big.NewInt(3), BridgeContract: &contract}))

	e.evm.SetBridgeAddress(e.sim.BridgeAddress)
	b := e.bridge(t, 0)
	p, err := b.Params().Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p.NextBlock)
	assert.Equal(t, uint64(3), p.Nonce)
	assert.Equal(t, int64(3), b.Swapper().MinterFee().Int64())
	assert.Equal(t, contract, e.evm.BridgeAddress())
}

func TestInitEvmState(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 7)
	init := scheduler.NewTask(scheduler.InitEvmState())

	require.NoError(t, b.Dispatch(e.ctx, init, b.Scheduler()))
	p, err := b.Params().Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.NextBlock)
	assert.Equal(t, uint64(0), p.Nonce)
	assert.Equal(t, int64(1337), p.ChainID.Int64())
	assert.Equal(t, 1, p.GasPrice.Sign())

	stored, ok, err := e.store.GetEvmParams(e.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), stored.NextBlock)

	// a second run keeps the cursor
	require.NoError(t, b.Params().Update(e.ctx, func(p *agreement.EvmParams) bool {
		p.NextBlock = 50
		return true
	}))
	require.NoError(t, b.Dispatch(e.ctx, init, b.Scheduler()))
	p, err = b.Params().Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), p.NextBlock)
}

func TestInitEvmStateWrongChain(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)
	b.cfg.Collector.ChainID = big.NewInt(1)

	err := b.Dispatch(e.ctx, scheduler.NewTask(scheduler.InitEvmState()), b.Scheduler())
	require.Error(t, err)
	assert.True(t, errs.IsPermanent(err))
	_, err = b.Params().Get()
	assert.True(t, errors.Is(err, errs.NotInitialized))
}

func TestDispatchRemoveMintOrder(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)
	recipient := common.RandEthAddress()
	// the order was signed for another sender than the minted recipient
	sender := common.Id256(common.RandBytes32())
	other := common.Id256FromEvmAddress(recipient, 0)
	token := common.Id256FromAsset("brc20", "ordi")
	require.NoError(t, e.store.PushMintOrder(e.ctx, sender, token, 4, []byte{1}))
	require.NoError(t, e.store.PushMintOrder(e.ctx, sender, token, 5, []byte{2}))
	require.NoError(t, e.store.PushMintOrder(e.ctx, other, token, 4, []byte{3}))

	task := scheduler.NewTask(scheduler.RemoveMintOrder(&agreement.MintedEvent{
		Amount:     big.NewInt(1),
		SenderID:   ethcommon.Hash(sender),
		ToERC20:    common.RandEthAddress(),
		Recipient:  recipient,
		Nonce:      4,
		ChargedFee: big.NewInt(0),
	}))
	require.NoError(t, b.Dispatch(e.ctx, task, b.Scheduler()))

	orders, err := b.MintOrders(e.ctx, sender, token)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint32(5), orders[0].Nonce)

	_, err = b.MintOrder(e.ctx, sender, token, 4)
	assert.True(t, errors.Is(err, errs.NotFound))
	_, err = b.MintOrder(e.ctx, other, token, 4)
	assert.NoError(t, err)
}

func TestDispatchRejectsBadTasks(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)

	err := b.Dispatch(e.ctx, &scheduler.Task{Payload: scheduler.Payload{Kind: "bogus"}}, b.Scheduler())
	assert.True(t, errs.IsPermanent(err))

	err = b.Dispatch(e.ctx, &scheduler.Task{Payload: scheduler.Payload{Kind: scheduler.KindMintBtc}}, b.Scheduler())
	assert.True(t, errs.IsPermanent(err))
}

func TestBootstrapAndPrepare(t *testing.T) {
	e := newEnv(t)
	h := chainhash.Hash(common.RandBytes32())
	e.node.utxos = []utxo.UTXO{
		{TxID: h.String(), TxHash: &h, Vout: 1, Amount: 20_000},
		// postage sized, left to the deposit that brought it
		{TxID: h.String(), TxHash: &h, Vout: 2, Amount: 546},
	}
	b := e.bridge(t, 0)

	require.NoError(t, b.Bootstrap(e.ctx))
	inits := tasksOf(t, b, scheduler.KindInitEvmState)
	require.Len(t, inits, 1)
	assert.Equal(t, scheduler.MaxRetries(5), inits[0].Retry)
	assert.Equal(t, scheduler.Exponential(2, 2), inits[0].Backoff)

	bal, err := b.Balance(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), bal.Ledger)
	assert.Equal(t, int64(12_345), bal.Node)

	require.NoError(t, b.Prepare(e.ctx))
	require.NoError(t, b.Prepare(e.ctx))
	collects := tasksOf(t, b, scheduler.KindCollectEvmEvents)
	require.Len(t, collects, 1)
	assert.Equal(t, scheduler.Infinite(), collects[0].Retry)
	assert.Equal(t, scheduler.Fixed(1), collects[0].Backoff)

	// the node is asked again only after the refresh interval
	assert.Equal(t, 1, e.node.calls)
	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, b.Prepare(e.ctx))
	assert.Equal(t, 2, e.node.calls)
}

func TestConfigure(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)
	contract := common.RandEthAddress()

	err := b.Configure(e.ctx, "wrong", &Settings{Fee: big.NewInt(1)})
	assert.True(t, errors.Is(err, errs.Unauthorized))
	assert.Zero(t, b.Swapper().MinterFee().Sign())

	err = b.Configure(e.ctx, adminToken, &Settings{Fee: big.NewInt(-1)})
	assert.True(t, errors.Is(err, errs.ValueTooSmall))

	require.NoError(t, b.Configure(e.ctx, adminToken, &Settings{Fee: big.NewInt(25)}))
	require.NoError(t, b.Configure(e.ctx, adminToken, &Settings{BridgeContract: &contract}))

	current := b.CurrentSettings()
	assert.Equal(t, int64(25), current.Fee.Int64())
	assert.Equal(t, contract, *current.BridgeContract)

	// both updates are merged in the store
	stored, err := loadSettings(e.ctx, e.store)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stored.Fee.Int64())
	assert.Equal(t, contract, *stored.BridgeContract)
}

func TestAdminWithdrawNeedsToken(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)
	_, err := b.Withdraw(e.ctx, "", &swapper.WithdrawRequest{RequestID: 1, Amount: big.NewInt(1)})
	assert.True(t, errors.Is(err, errs.Unauthorized))
}

func TestScheduledMintedEventRemovesOrder(t *testing.T) {
	e := newEnv(t)
	b := e.bridge(t, 0)
	recipient := common.RandEthAddress()
	sender := common.Id256FromEvmAddress(recipient, 0)
	token := common.Id256FromAsset("brc20", "ordi")
	require.NoError(t, e.store.PushMintOrder(e.ctx, sender, token, 0, []byte{1}))

	data, err := etherman.PackMintedEvent(&agreement.MintedEvent{
		Amount:     big.NewInt(990),
		SenderID:   ethcommon.Hash(sender),
		ToERC20:    common.RandEthAddress(),
		Recipient:  recipient,
		Nonce:      0,
		ChargedFee: big.NewInt(10),
	})
	require.NoError(t, err)
	_, err = e.sim.EmitLog(0, etherman.MintedSignatureHash, data)
	require.NoError(t, err)
	e.sim.Backend.Commit()
	e.sim.Backend.Commit()

	require.NoError(t, b.Bootstrap(e.ctx))
	require.NoError(t, b.Scheduler().Run(e.ctx)) // init
	require.NoError(t, b.Prepare(e.ctx))
	require.NoError(t, b.Scheduler().Run(e.ctx)) // collect
	require.Len(t, tasksOf(t, b, scheduler.KindRemoveMintOrder), 1)
	require.NoError(t, b.Scheduler().Run(e.ctx)) // remove

	orders, err := b.MintOrders(e.ctx, sender, token)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, tasksOf(t, b, scheduler.KindRemoveMintOrder))

	p, err := b.Params().Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.NextBlock)
}
