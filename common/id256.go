package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	Id256KindEvm   byte = 0x01
	Id256KindAsset byte = 0x02
)

// Id256 is a chain agnostic 32-byte identifier used by the bridge contract
// for mint order senders and source tokens.
//
// evm:   [0x01][chain id u32 BE][address 20B][zero padding]
// asset: [0x02][keccak256(kind ":" asset id)[:31]]
type Id256 [32]byte

func Id256FromEvmAddress(addr ethcommon.Address, chainID uint32) Id256 {
	var id Id256
	id[0] = Id256KindEvm
	binary.BigEndian.PutUint32(id[1:5], chainID)
	copy(id[5:25], addr.Bytes())
	return id
}

func Id256FromAsset(kind string, assetID string) Id256 {
	var id Id256
	id[0] = Id256KindAsset
	h := crypto.Keccak256([]byte(kind + ":" + assetID))
	copy(id[1:], h[:31])
	return id
}

// Id256FromSlice returns false if b is not exactly 32 bytes of a known kind.
func Id256FromSlice(b []byte) (Id256, bool) {
	var id Id256
	if len(b) != 32 {
		return id, false
	}
	copy(id[:], b)
	if id[0] != Id256KindEvm && id[0] != Id256KindAsset {
		return Id256{}, false
	}
	return id, true
}

func ParseId256(s string) (Id256, error) {
	b, err := hex.DecodeString(Trim0xPrefix(s))
	if err != nil {
		return Id256{}, fmt.Errorf("invalid id256 hex %q: %w", s, err)
	}
	id, ok := Id256FromSlice(b)
	if !ok {
		return Id256{}, fmt.Errorf("invalid id256 %q", s)
	}
	return id, nil
}

// EvmAddress decodes an evm kind id. ok is false for other kinds.
func (id Id256) EvmAddress() (addr ethcommon.Address, chainID uint32, ok bool) {
	if id[0] != Id256KindEvm {
		return ethcommon.Address{}, 0, false
	}
	return ethcommon.BytesToAddress(id[5:25]), binary.BigEndian.Uint32(id[1:5]), true
}

func (id Id256) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id Id256) String() string {
	return "0x" + id.Hex()
}
