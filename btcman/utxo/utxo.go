/*
This file contains filter/select operations on UTXO.
*/
package utxo

import (
	"errors"
)

var ErrNotEnoughUtxo = errors.New("cannot satisfy requirement")

// Choose some UTXO(s) for future spending.
// Collect several UTXO, the sum to be at least (amount + fee).
// Error if cannot collect enough satisfy the requriement.
func SelectUtxo(inputs []*UTXO, amount int64, fee int64) ([]*UTXO, error) {
	var sum int64
	for idx, item := range inputs {
		sum += item.Amount
		if sum >= (amount + fee) {
			return inputs[:idx+1], nil
		}
	}
	return nil, ErrNotEnoughUtxo
}
