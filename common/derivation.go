package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxDerivationPathLen bounds the encoded size of a derivation path.
const MaxDerivationPathLen = 255

// DerivationPath is the list of key derivation segments handed to the
// threshold signer.
type DerivationPath [][]byte

// Encode lays the path out as [count][len][segment]...
func (p DerivationPath) Encode() ([]byte, error) {
	if len(p) > 255 {
		return nil, fmt.Errorf("derivation path has too many segments: %d", len(p))
	}
	out := []byte{byte(len(p))}
	for _, seg := range p {
		if len(seg) > 255 {
			return nil, fmt.Errorf("derivation path segment too long: %d", len(seg))
		}
		out = append(out, byte(len(seg)))
		out = append(out, seg...)
	}
	if len(out) > MaxDerivationPathLen {
		return nil, fmt.Errorf("derivation path too long: %d > %d", len(out), MaxDerivationPathLen)
	}
	return out, nil
}

func DecodeDerivationPath(b []byte) (DerivationPath, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty derivation path encoding")
	}
	n := int(b[0])
	b = b[1:]
	p := make(DerivationPath, 0, n)
	for i := 0; i < n; i++ {
		if len(b) == 0 {
			return nil, fmt.Errorf("truncated derivation path at segment %d", i)
		}
		l := int(b[0])
		if len(b) < 1+l {
			return nil, fmt.Errorf("truncated derivation path segment %d", i)
		}
		p = append(p, append([]byte(nil), b[1:1+l]...))
		b = b[1+l:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("trailing bytes after derivation path")
	}
	return p, nil
}

// String renders the path as hex segments joined by "/".
func (p DerivationPath) String() string {
	segs := make([]string, len(p))
	for i, seg := range p {
		segs[i] = hex.EncodeToString(seg)
	}
	return strings.Join(segs, "/")
}

// ParseDerivationPath is the inverse of DerivationPath.String. An empty
// string is the empty path.
func ParseDerivationPath(s string) (DerivationPath, error) {
	if s == "" {
		return DerivationPath{}, nil
	}
	parts := strings.Split(s, "/")
	p := make(DerivationPath, 0, len(parts))
	for _, part := range parts {
		seg, err := hex.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path segment %q: %w", part, err)
		}
		p = append(p, seg)
	}
	return p, nil
}
