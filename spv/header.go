package spv

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockHeaderSize is the size of a serialized block header in bytes.
const BlockHeaderSize = wire.MaxBlockHeaderPayload

// HeaderField identifies one of the six serialized header fields.
type HeaderField uint8

const (
	FieldVersion HeaderField = 1 << iota
	FieldPrevBlock
	FieldMerkleRoot
	FieldTime
	FieldBits
	FieldNonce

	// AllHeaderFields is the presence set of a fully populated header.
	AllHeaderFields = FieldVersion | FieldPrevBlock | FieldMerkleRoot | FieldTime | FieldBits | FieldNonce
)

// Has reports whether every field in f is also set in s.
func (s HeaderField) Has(f HeaderField) bool { return s&f == f }

// String returns the Bitcoin Core RPC name of a single field.
func (s HeaderField) String() string {
	switch s {
	case FieldVersion:
		return "version"
	case FieldPrevBlock:
		return "previousblockhash"
	case FieldMerkleRoot:
		return "merkleroot"
	case FieldTime:
		return "time"
	case FieldBits:
		return "bits"
	case FieldNonce:
		return "nonce"
	}
	return fmt.Sprintf("HeaderField(%#x)", uint8(s))
}

// headerFieldOrder is the wire order of the serialized fields.
var headerFieldOrder = []HeaderField{
	FieldVersion, FieldPrevBlock, FieldMerkleRoot, FieldTime, FieldBits, FieldNonce,
}

// BlockHeader is a Bitcoin block header plus the metadata the relay needs.
// Hashes are kept in internal (wire) byte order.
type BlockHeader struct {
	Hash       chainhash.Hash
	Height     uint32 // not part of the serialized header
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32

	// Fields records which serialized fields were supplied by the source.
	Fields HeaderField
}

// Missing returns the first absent field in wire order, or nil when the
// header is complete.
func (h *BlockHeader) Missing() error {
	for _, f := range headerFieldOrder {
		if !h.Fields.Has(f) {
			return &MissingFieldError{Field: f.String()}
		}
	}
	return nil
}

func (h *BlockHeader) wire() *wire.BlockHeader {
	return &wire.BlockHeader{
		Version:    h.Version,
		PrevBlock:  h.PrevBlock,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  time.Unix(int64(h.Time), 0),
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// SerializeHeader serializes a BlockHeader to its 80-byte wire format.
//
// Layout: version(4) | prevBlock(32) | merkleRoot(32) | time(4) | bits(4) | nonce(4)
func SerializeHeader(h *BlockHeader) []byte {
	if h == nil {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(BlockHeaderSize)
	// Writing to a bytes.Buffer cannot fail.
	_ = h.wire().Serialize(&buf)
	return buf.Bytes()
}

// DeserializeHeader parses an 80-byte wire header. The Hash field is
// computed from the data and every field is marked present.
func DeserializeHeader(data []byte) (*BlockHeader, error) {
	if len(data) < BlockHeaderSize {
		return nil, &FormatError{Field: "block header", Need: BlockHeaderSize, Have: len(data)}
	}
	var wh wire.BlockHeader
	if err := wh.Deserialize(bytes.NewReader(data[:BlockHeaderSize])); err != nil {
		return nil, &FormatError{Field: "block header", Need: BlockHeaderSize, Have: len(data), Err: err}
	}
	return &BlockHeader{
		Hash:       chainhash.DoubleHashH(data[:BlockHeaderSize]),
		Version:    wh.Version,
		PrevBlock:  wh.PrevBlock,
		MerkleRoot: wh.MerkleRoot,
		Time:       uint32(wh.Timestamp.Unix()),
		Bits:       wh.Bits,
		Nonce:      wh.Nonce,
		Fields:     AllHeaderFields,
	}, nil
}

// ComputeHeaderHash returns the double-SHA256 of the serialized header.
func ComputeHeaderHash(h *BlockHeader) chainhash.Hash {
	return chainhash.DoubleHashH(SerializeHeader(h))
}

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// CompactToBig converts a Bitcoin compact (nBits) representation to a big.Int target value:
// the low three bytes scaled by 256^(exponent-3). The coefficient is read as
// unsigned, so bit 23 adds to the target rather than negating it.
func CompactToBig(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := int64(bits & 0x00ffffff)

	target := big.NewInt(mantissa)
	if exponent <= 3 {
		target.Rsh(target, uint(8*(3-exponent)))
	} else {
		target.Lsh(target, uint(8*(exponent-3)))
	}
	return target
}

// WorkForBits computes floor((2^256 - 1) / target) for the given compact
// difficulty. Returns zero work for a zero target.
func WorkForBits(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Div(maxUint256, target)
}

// VerifyHeaderChain checks that a sequence of headers links together: each
// header's PrevBlock must match the previous header's Hash. Headers must be
// in ascending order. Proof of work is not checked.
func VerifyHeaderChain(headers []*BlockHeader) error {
	for i := 1; i < len(headers); i++ {
		prev, curr := headers[i-1], headers[i]
		if prev == nil || curr == nil {
			return fmt.Errorf("%w: nil header at index %d", ErrNilParam, i)
		}
		if curr.PrevBlock != prev.Hash {
			return fmt.Errorf("%w: header %d PrevBlock does not match header %d hash", ErrChainBroken, i, i-1)
		}
	}
	return nil
}
