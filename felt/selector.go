package felt

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector returns the entry-point selector of a contract function:
// keccak256(name) truncated to 250 bits.
func Selector(name string) Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(big.Int).SetBytes(h.Sum(nil))
	f, _ := FromBig(v.And(v, selectorMask))
	return f
}
