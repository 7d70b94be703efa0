package ethsync

import (
	"context"
	"math"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/inscription-bridge/agreement"
	"github.com/TEENet-io/inscription-bridge/common"
	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/etherman"
	"github.com/TEENet-io/inscription-bridge/scheduler"
	"github.com/TEENet-io/inscription-bridge/swapper"
)

type fakeLogs struct {
	safe     uint64
	logs     []types.Log
	from, to uint64
	calls    int
}

func (f *fakeLogs) SafeBlockNumber(context.Context) (uint64, error) { return f.safe, nil }

func (f *fakeLogs) FilterLogs(_ context.Context, from, to uint64) ([]types.Log, error) {
	f.from, f.to = from, to
	f.calls++
	return f.logs, nil
}

type memAppender struct {
	tasks []*scheduler.Task
}

func (m *memAppender) Append(ctx context.Context, t *scheduler.Task) (uint32, error) {
	ids, err := m.AppendMany(ctx, []*scheduler.Task{t})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (m *memAppender) AppendMany(_ context.Context, ts []*scheduler.Task) ([]uint32, error) {
	ids := make([]uint32, len(ts))
	for i, t := range ts {
		t.ID = uint32(len(m.tasks))
		ids[i] = t.ID
		m.tasks = append(m.tasks, t)
	}
	return ids, nil
}

func burntLog(t *testing.T, block uint64, numbered bool, op uint32) types.Log {
	data, err := etherman.PackBurntEvent(&agreement.BurntEvent{
		Sender:      common.RandEthAddress(),
		Amount:      big.NewInt(10),
		FromERC20:   common.RandEthAddress(),
		RecipientID: []byte("tb1qexample"),
		ToToken:     ethcommon.Hash(common.Id256FromAsset("brc20", "ordi")),
		OperationID: op,
		Symbol:      make([]byte, 16),
	})
	require.NoError(t, err)
	return withBlock(types.Log{Topics: []ethcommon.Hash{etherman.BurntSignatureHash}, Data: data}, block, numbered)
}

func mintedLog(t *testing.T, block uint64, numbered bool, nonce uint32) types.Log {
	data, err := etherman.PackMintedEvent(&agreement.MintedEvent{
		Amount:     big.NewInt(10),
		ToERC20:    common.RandEthAddress(),
		Recipient:  common.RandEthAddress(),
		Nonce:      nonce,
		ChargedFee: big.NewInt(0),
	})
	require.NoError(t, err)
	return withBlock(types.Log{Topics: []ethcommon.Hash{etherman.MintedSignatureHash}, Data: data}, block, numbered)
}

func withBlock(l types.Log, block uint64, numbered bool) types.Log {
	l.TxHash = common.RandBytes32()
	if numbered {
		l.BlockNumber = block
		l.BlockHash = common.RandBytes32()
	}
	return l
}

func newCollector(t *testing.T, next uint64, logs *fakeLogs) (*Collector, *swapper.EvmParamsHolder) {
	params := swapper.NewEvmParamsHolder(nil)
	require.NoError(t, params.Set(context.Background(), &agreement.EvmParams{
		NextBlock: next,
		GasPrice:  big.NewInt(1),
		ChainID:   big.NewInt(1337),
	}))
	return New(&Config{ChainID: big.NewInt(1337)}, logs, params), params
}

func TestCollectStopsCursorAtFirstUnnumberedLog(t *testing.T) {
	logs := &fakeLogs{safe: 20, logs: []types.Log{
		burntLog(t, 10, true, 1),
		mintedLog(t, 11, true, 0),
		burntLog(t, 12, true, 2),
		burntLog(t, 0, false, 3),
		mintedLog(t, 0, false, 1),
	}}
	c, params := newCollector(t, 10, logs)
	app := &memAppender{}

	require.NoError(t, c.Collect(context.Background(), app))
	assert.Equal(t, uint64(10), logs.from)
	assert.Equal(t, uint64(20), logs.to)

	p, err := params.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(13), p.NextBlock)

	require.Len(t, app.tasks, 5)
	kinds := []scheduler.Kind{
		scheduler.KindMintBtc, scheduler.KindRemoveMintOrder, scheduler.KindMintBtc,
		scheduler.KindMintBtc, scheduler.KindRemoveMintOrder,
	}
	for i, task := range app.tasks {
		assert.Equal(t, kinds[i], task.Payload.Kind)
		assert.Equal(t, scheduler.Fixed(5), task.Backoff)
		assert.Equal(t, scheduler.MaxRetries(math.MaxUint32), task.Retry)
		assert.NoError(t, task.Payload.Validate())
	}
	assert.Equal(t, uint32(3), app.tasks[3].Payload.Burnt.OperationID)
	assert.Nil(t, app.tasks[3].Payload.Burnt.BlockNumber)
}

func TestCollectKeepsCursorWhenFirstLogUnnumbered(t *testing.T) {
	logs := &fakeLogs{safe: 20, logs: []types.Log{burntLog(t, 0, false, 1)}}
	c, params := newCollector(t, 10, logs)
	app := &memAppender{}

	require.NoError(t, c.Collect(context.Background(), app))
	p, err := params.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), p.NextBlock)
	assert.Len(t, app.tasks, 1)
}

func TestCollectDropsUnknownLogs(t *testing.T) {
	unknown := withBlock(types.Log{Topics: []ethcommon.Hash{common.RandBytes32()}}, 11, true)
	logs := &fakeLogs{safe: 20, logs: []types.Log{burntLog(t, 10, true, 1), unknown}}
	c, params := newCollector(t, 10, logs)
	app := &memAppender{}

	require.NoError(t, c.Collect(context.Background(), app))
	assert.Len(t, app.tasks, 1)
	p, err := params.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), p.NextBlock)
}

func TestCollectEmptyRange(t *testing.T) {
	logs := &fakeLogs{safe: 20}
	c, params := newCollector(t, 10, logs)
	app := &memAppender{}

	require.NoError(t, c.Collect(context.Background(), app))
	p, err := params.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(21), p.NextBlock)
	assert.Empty(t, app.tasks)

	// nothing new is safe yet
	require.NoError(t, c.Collect(context.Background(), app))
	assert.Equal(t, 1, logs.calls)
}

func TestCollectBoundsRange(t *testing.T) {
	logs := &fakeLogs{safe: 100_000}
	c, _ := newCollector(t, 1, logs)
	c.cfg.MaxBlockRange = 100

	require.NoError(t, c.Collect(context.Background(), &memAppender{}))
	assert.Equal(t, uint64(1), logs.from)
	assert.Equal(t, uint64(100), logs.to)
}

func TestCollectBeforeInit(t *testing.T) {
	logs := &fakeLogs{safe: 20, logs: []types.Log{burntLog(t, 10, true, 1)}}
	c := New(&Config{}, logs, swapper.NewEvmParamsHolder(nil))
	app := &memAppender{}

	require.NoError(t, c.Collect(context.Background(), app))
	assert.Empty(t, app.tasks)
	assert.Zero(t, logs.calls)
}

func TestCheckChainID(t *testing.T) {
	c, _ := newCollector(t, 1, &fakeLogs{})
	assert.NoError(t, c.CheckChainID(&agreement.EvmParams{ChainID: big.NewInt(1337)}))

	err := c.CheckChainID(&agreement.EvmParams{ChainID: big.NewInt(1)})
	assert.Error(t, err)
	assert.True(t, errs.IsPermanent(err))
}
