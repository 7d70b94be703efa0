package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivationPathEncoding(t *testing.T) {
	p := DerivationPath{[]byte("bridge"), {0x00, 0x01}, {}}
	b, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodeDerivationPath(b)
	require.NoError(t, err)
	assert.Equal(t, p.String(), decoded.String())

	_, err = DecodeDerivationPath(b[:len(b)-2])
	assert.Error(t, err)

	_, err = DecodeDerivationPath(append(b, 0x00))
	assert.Error(t, err)
}

func TestDerivationPathTooLong(t *testing.T) {
	p := DerivationPath{bytes.Repeat([]byte{1}, 200), bytes.Repeat([]byte{2}, 100)}
	_, err := p.Encode()
	assert.Error(t, err)
}

func TestParseDerivationPath(t *testing.T) {
	p, err := ParseDerivationPath("627269646765/0001")
	require.NoError(t, err)
	assert.Equal(t, DerivationPath{[]byte("bridge"), {0x00, 0x01}}, p)

	empty, err := ParseDerivationPath("")
	require.NoError(t, err)
	assert.Len(t, empty, 0)

	_, err = ParseDerivationPath("zz")
	assert.Error(t, err)
}
