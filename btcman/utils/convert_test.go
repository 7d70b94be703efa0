package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	assert.Equal(t, 0.1, SatoshiToBtc(10_000_000))

	sat, err := BtcToSatoshi(0.00001)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), sat)

	assert.Equal(t, int64(300), FeeFor(150, 2))
	assert.Equal(t, int64(150), FeeFor(150, 0))
}
