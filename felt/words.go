package felt

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashWords is the number of 32-bit words a hash is split into.
const HashWords = chainhash.HashSize / 4

// LittleEndian32 returns the little-endian bytes of v.
func LittleEndian32(v uint32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

// FromWord reads four bytes as a big-endian unsigned integer.
func FromWord(w [4]byte) Felt {
	return FromUint64(uint64(binary.BigEndian.Uint32(w[:])))
}

// U32LE encodes a header integer field the way the relay stores it: the
// little-endian wire bytes read back as a big-endian word. Version 1 becomes
// 0x01000000.
func U32LE(v uint32) Felt {
	return FromWord(LittleEndian32(v))
}

// FromHash splits a hash into eight words. Word i is the big-endian value of
// internal-order bytes 4i..4i+4, so the display-order hex is read in 4-byte
// groups from the end, each group byte-reversed.
func FromHash(h chainhash.Hash) [HashWords]Felt {
	var out [HashWords]Felt
	for i := range out {
		out[i] = FromWord([4]byte(h[4*i : 4*i+4]))
	}
	return out
}

// HashFromWords is the inverse of FromHash.
func HashFromWords(words []Felt) (chainhash.Hash, error) {
	var h chainhash.Hash
	if len(words) != HashWords {
		return h, fmt.Errorf("%w: hash needs %d, got %d", ErrWordCount, HashWords, len(words))
	}
	for i, w := range words {
		v, ok := w.Uint64()
		if !ok || v > 0xffffffff {
			return h, fmt.Errorf("%w: word %d is %s", ErrWordOverflow, i, w)
		}
		binary.BigEndian.PutUint32(h[4*i:], uint32(v))
	}
	return h, nil
}

// AppendHash appends the eight words of h to dst.
func AppendHash(dst []Felt, h chainhash.Hash) []Felt {
	words := FromHash(h)
	return append(dst, words[:]...)
}
