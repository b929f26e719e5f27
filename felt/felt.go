// Package felt encodes Bitcoin data as elements of the STARK prime field,
// the word type of the relay contract's calldata.
package felt

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Felt is an element of the STARK field, p = 2^251 + 17*2^192 + 1.
// The zero value is the field element 0.
type Felt struct {
	v fp.Element
}

// Zero is the field element 0.
var Zero Felt

// FromUint64 returns v as a field element.
func FromUint64(v uint64) Felt {
	var f Felt
	f.v.SetUint64(v)
	return f
}

// FromBig returns b as a field element. b must be in [0, p).
func FromBig(b *big.Int) (Felt, error) {
	var f Felt
	if b == nil || b.Sign() < 0 || b.Cmp(fp.Modulus()) >= 0 {
		return f, fmt.Errorf("%w: %v", ErrOutOfRange, b)
	}
	f.v.SetBigInt(b)
	return f, nil
}

// FromBytes interprets up to 32 bytes as a big-endian integer.
func FromBytes(b []byte) (Felt, error) {
	if len(b) > fp.Bytes {
		return Felt{}, fmt.Errorf("%w: %d bytes", ErrOutOfRange, len(b))
	}
	return FromBig(new(big.Int).SetBytes(b))
}

// FromHex parses a 0x-prefixed hex string. A string without the prefix is
// read as decimal.
func FromHex(s string) (Felt, error) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		s, base = rest, 16
	}
	if s == "" {
		return Felt{}, fmt.Errorf("%w: empty string", ErrInvalidHex)
	}
	b, ok := new(big.Int).SetString(s, base)
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return FromBig(b)
}

// MustHex is FromHex for constants; it panics on malformed input.
func MustHex(s string) Felt {
	f, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Big returns the canonical integer value of f.
func (f Felt) Big() *big.Int {
	return f.v.BigInt(new(big.Int))
}

// Uint64 returns f as a uint64 and whether it fits.
func (f Felt) Uint64() (uint64, bool) {
	b := f.Big()
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// Bytes returns the 32-byte big-endian encoding of f.
func (f Felt) Bytes() [fp.Bytes]byte {
	return f.v.Bytes()
}

func (f Felt) IsZero() bool { return f.v.IsZero() }

func (f Felt) Equal(g Felt) bool { return f.v.Equal(&g.v) }

// Hex returns f as a 0x-prefixed lowercase hex string without leading zeros.
func (f Felt) Hex() string {
	return "0x" + f.Big().Text(16)
}

func (f Felt) String() string { return f.Hex() }

func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

func (f *Felt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidHex, data)
	}
	v, err := FromHex(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Hexes formats a word sequence the way JSON-RPC calldata is written.
func Hexes(fs []Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Hex()
	}
	return out
}
