package utils

import "github.com/btcsuite/btcd/btcutil"

// SatoshiToBtc renders a satoshi amount in BTC, for display only.
func SatoshiToBtc(satoshi int64) float64 {
	return btcutil.Amount(satoshi).ToBTC()
}

// BtcToSatoshi rounds btc to the nearest satoshi.
func BtcToSatoshi(btc float64) (int64, error) {
	amount, err := btcutil.NewAmount(btc)
	return int64(amount), err
}

// FeeFor is the fee of a tx of vsize virtual bytes at rate sat/vB.
func FeeFor(vsize int64, rate int64) int64 {
	if rate < 1 {
		rate = 1
	}
	return vsize * rate
}
