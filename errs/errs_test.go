package errs

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindWrapping(t *testing.T) {
	err := errors.Wrapf(ValueTooSmall, "amount=%d fee=%d", 5, 10)
	assert.True(t, errors.Is(err, ValueTooSmall))
	assert.False(t, errors.Is(err, NotFound))
	assert.Contains(t, err.Error(), "amount=5 fee=10")
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.Wrap(MalformedAddress, "recipient")
	assert.False(t, IsPermanent(base))

	perm := Permanent(base)
	assert.True(t, IsPermanent(perm))
	assert.True(t, errors.Is(perm, MalformedAddress))

	wrapped := errors.Wrap(perm, "withdraw")
	assert.True(t, IsPermanent(wrapped))
}
