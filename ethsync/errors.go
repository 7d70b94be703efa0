package ethsync

import (
	"math/big"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/errs"
)

func ErrChainIDUnmatched(expected, actual *big.Int) error {
	return errs.Permanent(errors.Newf("chain ID mismatch: expected=%v, actual=%v", expected, actual))
}
