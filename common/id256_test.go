package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestId256FromEvmAddress(t *testing.T) {
	addr := RandEthAddress()
	id := Id256FromEvmAddress(addr, 355113)

	got, chainID, ok := id.EvmAddress()
	assert.True(t, ok)
	assert.Equal(t, addr, got)
	assert.Equal(t, uint32(355113), chainID)

	parsed, err := ParseId256(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestId256FromAsset(t *testing.T) {
	a := Id256FromAsset("brc20", "ordi")
	b := Id256FromAsset("brc20", "ordi")
	c := Id256FromAsset("rune", "840000:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, _, ok := a.EvmAddress()
	assert.False(t, ok)
}

func TestId256FromSlice(t *testing.T) {
	_, ok := Id256FromSlice([]byte{1, 2, 3})
	assert.False(t, ok)

	raw := make([]byte, 32)
	_, ok = Id256FromSlice(raw)
	assert.False(t, ok, "kind 0 is not a known kind")

	raw[0] = Id256KindAsset
	_, ok = Id256FromSlice(raw)
	assert.True(t, ok)

	_, err := ParseId256("0xzz")
	assert.Error(t, err)
}

func TestIsHexString(t *testing.T) {
	assert.True(t, IsHexString("0xdeadBEEF"))
	assert.False(t, IsHexString("0xabc"))
	assert.False(t, IsHexString("xyz0"))
	assert.False(t, IsHexString(""))
}
