package relay

import (
	"fmt"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/spv"
)

// HeaderWords is the length of a serialized header.
const HeaderWords = 1 + 2*felt.HashWords + 3

// SerializeHeader encodes a header as calldata words:
//
//	[u32le(version), prev(8), merkleRoot(8), u32le(time), bits, u32le(nonce)]
//
// bits is passed through as a raw word; the other integers are byte-swapped.
func SerializeHeader(h *spv.BlockHeader) ([]felt.Felt, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: header", spv.ErrNilParam)
	}
	if err := h.Missing(); err != nil {
		return nil, err
	}
	out := make([]felt.Felt, 0, HeaderWords)
	out = append(out, felt.U32LE(uint32(h.Version)))
	out = felt.AppendHash(out, h.PrevBlock)
	out = felt.AppendHash(out, h.MerkleRoot)
	return append(out,
		felt.U32LE(h.Time),
		felt.FromUint64(uint64(h.Bits)),
		felt.U32LE(h.Nonce),
	), nil
}
