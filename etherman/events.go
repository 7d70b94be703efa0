package etherman

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TEENet-io/inscription-bridge/agreement"
)

// BridgeABI covers the part of the bridge contract the bridge talks to.
const BridgeABI = `[
	{"type":"event","name":"BurnTokenEvent","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"fromERC20","type":"address","indexed":false},
		{"name":"recipientID","type":"bytes","indexed":false},
		{"name":"toToken","type":"bytes32","indexed":false},
		{"name":"operationID","type":"uint32","indexed":false},
		{"name":"name","type":"bytes32","indexed":false},
		{"name":"symbol","type":"bytes16","indexed":false},
		{"name":"decimals","type":"uint8","indexed":false}]},
	{"type":"event","name":"MintTokenEvent","anonymous":false,"inputs":[
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"fromToken","type":"bytes32","indexed":false},
		{"name":"senderID","type":"bytes32","indexed":false},
		{"name":"toERC20","type":"address","indexed":false},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"nonce","type":"uint32","indexed":false},
		{"name":"chargedFee","type":"uint256","indexed":false}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
		{"name":"encodedOrder","type":"bytes"}],"outputs":[
		{"name":"","type":"uint32"}]}
]`

var (
	// Events
	BurntSignatureHash  = crypto.Keccak256Hash([]byte("BurnTokenEvent(address,uint256,address,bytes,bytes32,uint32,bytes32,bytes16,uint8)"))
	MintedSignatureHash = crypto.Keccak256Hash([]byte("MintTokenEvent(uint256,bytes32,bytes32,address,address,uint32,uint256)"))

	ErrUnknownEvent = errors.New("unknown event")

	bridgeABI = mustParseABI(BridgeABI)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type burnTokenEvent struct {
	Sender      ethcommon.Address
	Amount      *big.Int
	FromERC20   ethcommon.Address
	RecipientID []byte
	ToToken     [32]byte
	OperationID uint32
	Name        [32]byte
	Symbol      [16]byte
	Decimals    uint8
}

type mintTokenEvent struct {
	Amount     *big.Int
	FromToken  [32]byte
	SenderID   [32]byte
	ToERC20    ethcommon.Address
	Recipient  ethcommon.Address
	Nonce      uint32
	ChargedFee *big.Int
}

func blockNumberOf(vlog *types.Log) *uint64 {
	if vlog.BlockHash == (ethcommon.Hash{}) && vlog.BlockNumber == 0 {
		return nil
	}
	n := vlog.BlockNumber
	return &n
}

// BlockNumberOf reports the block of vlog. Logs of pending blocks have none.
func BlockNumberOf(vlog *types.Log) (uint64, bool) {
	n := blockNumberOf(vlog)
	if n == nil {
		return 0, false
	}
	return *n, true
}

// ParseLog decodes a bridge log into *agreement.MintedEvent or
// *agreement.BurntEvent. Logs of other events give ErrUnknownEvent.
func ParseLog(vlog *types.Log) (any, error) {
	if len(vlog.Topics) == 0 {
		return nil, errors.Wrap(ErrUnknownEvent, "log without topics")
	}

	switch vlog.Topics[0] {
	case BurntSignatureHash:
		ev := new(burnTokenEvent)
		if err := bridgeABI.UnpackIntoInterface(ev, "BurnTokenEvent", vlog.Data); err != nil {
			return nil, errors.Wrap(err, "failed to unpack burnt event")
		}
		return &agreement.BurntEvent{
			Sender:      ev.Sender,
			Amount:      ev.Amount,
			FromERC20:   ev.FromERC20,
			RecipientID: ev.RecipientID,
			ToToken:     ev.ToToken,
			OperationID: ev.OperationID,
			Name:        ev.Name,
			Symbol:      ev.Symbol[:],
			Decimals:    ev.Decimals,
			TxHash:      vlog.TxHash,
			BlockNumber: blockNumberOf(vlog),
		}, nil
	case MintedSignatureHash:
		ev := new(mintTokenEvent)
		if err := bridgeABI.UnpackIntoInterface(ev, "MintTokenEvent", vlog.Data); err != nil {
			return nil, errors.Wrap(err, "failed to unpack minted event")
		}
		return &agreement.MintedEvent{
			Amount:      ev.Amount,
			FromToken:   ev.FromToken,
			SenderID:    ev.SenderID,
			ToERC20:     ev.ToERC20,
			Recipient:   ev.Recipient,
			Nonce:       ev.Nonce,
			ChargedFee:  ev.ChargedFee,
			TxHash:      vlog.TxHash,
			BlockNumber: blockNumberOf(vlog),
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "topic %s", vlog.Topics[0])
	}
}

// PackBurntEvent builds the log data of a burn, as the contract emits it.
func PackBurntEvent(ev *agreement.BurntEvent) ([]byte, error) {
	var symbol [16]byte
	copy(symbol[:], ev.Symbol)
	return bridgeABI.Events["BurnTokenEvent"].Inputs.Pack(
		ev.Sender, ev.Amount, ev.FromERC20, []byte(ev.RecipientID), [32]byte(ev.ToToken),
		ev.OperationID, [32]byte(ev.Name), symbol, ev.Decimals)
}

// PackMintedEvent builds the log data of a mint, as the contract emits it.
func PackMintedEvent(ev *agreement.MintedEvent) ([]byte, error) {
	return bridgeABI.Events["MintTokenEvent"].Inputs.Pack(
		ev.Amount, [32]byte(ev.FromToken), [32]byte(ev.SenderID), ev.ToERC20, ev.Recipient,
		ev.Nonce, ev.ChargedFee)
}
