package assembler

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/errs"
)

// DecodeAddress decodes a string address to btcutil.Address and checks it
// belongs to network.
func DecodeAddress(addressStr string, network *chaincfg.Params) (btcutil.Address, error) {
	address, err := btcutil.DecodeAddress(addressStr, network)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "address %q", addressStr), errs.MalformedAddress)
	}
	if !address.IsForNet(network) {
		return nil, errors.Mark(errors.Newf("address %q is not for %s", addressStr, network.Name), errs.MalformedAddress)
	}
	return address, nil
}

// ChainParams maps a network name (mainnet, testnet, regtest) to its params.
func ChainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, errors.Newf("unknown btc network %q", network)
	}
}
