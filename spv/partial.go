package spv

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxBlockTransactions bounds the transaction count a proof may claim: the
// smallest transaction is 60 bytes, so a 4MB block holds at most this many.
const maxBlockTransactions = 4_000_000 / 60

var errTrailingData = errors.New("unexpected trailing bytes")

// MerkleBlock is a decoded gettxoutproof blob: a block header followed by a
// partial merkle tree.
type MerkleBlock struct {
	Header  *BlockHeader
	TxCount uint32
	Hashes  []chainhash.Hash
	Flags   []byte
}

// ParseMerkleBlock decodes the serialized form of a merkle block:
//
//	header(80) | txCount(4, LE) | CompactSize n | n * hash(32) | CompactSize m | m * flag byte
func ParseMerkleBlock(data []byte) (*MerkleBlock, error) {
	c := NewCursor(data)
	raw, err := c.Next(BlockHeaderSize, "block header")
	if err != nil {
		return nil, err
	}
	header, err := DeserializeHeader(raw)
	if err != nil {
		return nil, err
	}

	mb := &MerkleBlock{Header: header}
	if mb.TxCount, err = c.Uint32("transaction count"); err != nil {
		return nil, err
	}

	n, err := c.CompactSize("hash count")
	if err != nil {
		return nil, err
	}
	if n > uint64(c.Len())/chainhash.HashSize {
		need := n * chainhash.HashSize
		if n > uint64(len(data)) {
			need = math.MaxUint64
		}
		return nil, c.truncated("hashes", need)
	}
	mb.Hashes = make([]chainhash.Hash, n)
	for i := range mb.Hashes {
		if mb.Hashes[i], err = c.Hash("hash"); err != nil {
			return nil, err
		}
	}

	m, err := c.CompactSize("flag byte count")
	if err != nil {
		return nil, err
	}
	flags, err := c.Next(m, "flag bytes")
	if err != nil {
		return nil, err
	}
	mb.Flags = append([]byte(nil), flags...)

	if c.Len() != 0 {
		return nil, &FormatError{Field: "merkle block", Offset: c.Offset(), Have: c.Len(), Err: errTrailingData}
	}
	return mb, nil
}

type proofOptions struct {
	hash Hasher
}

// ProofOption configures ReconstructInclusionProof.
type ProofOption func(*proofOptions)

// WithHasher replaces the double-SHA256 node hash.
func WithHasher(h Hasher) ProofOption {
	return func(o *proofOptions) { o.hash = h }
}

// ReconstructInclusionProof decodes a gettxoutproof blob and extracts the
// merkle path of txid. totalTx is the block's transaction count; zero means
// trust the count carried by the proof.
//
// The partial tree is walked depth-first the way Bitcoin Core builds it: one
// flag bit per visited node, and a stored hash for every node whose bit is 0
// or that is a leaf. The reconstructed root must equal the header's merkle
// root and every hash and flag byte must be consumed.
func ReconstructInclusionProof(txid chainhash.Hash, proof []byte, totalTx uint32, opts ...ProofOption) (*InclusionProof, error) {
	o := proofOptions{hash: DoubleHash}
	for _, opt := range opts {
		opt(&o)
	}

	mb, err := ParseMerkleBlock(proof)
	if err != nil {
		return nil, err
	}

	t := &partialTree{
		txCount: mb.TxCount,
		hashes:  mb.Hashes,
		flags:   mb.Flags,
		target:  txid,
		hash:    o.hash,
	}

	var start treeCursor
	switch {
	case totalTx != 0 && totalTx != mb.TxCount:
		return nil, t.errorAt(fmt.Sprintf("proof claims %d transactions, block has %d", mb.TxCount, totalTx), start)
	case mb.TxCount == 0:
		return nil, t.errorAt("no transactions", start)
	case mb.TxCount > maxBlockTransactions:
		return nil, t.errorAt("transaction count too large", start)
	case uint64(len(mb.Hashes)) > uint64(mb.TxCount):
		return nil, t.errorAt("more hashes than transactions", start)
	case len(mb.Flags)*8 < len(mb.Hashes):
		return nil, t.errorAt("fewer flag bits than hashes", start)
	}

	root, cur, err := t.traverse(start, t.height(), 0)
	if err != nil {
		return nil, err
	}
	switch {
	case (cur.bit+7)/8 != len(t.flags):
		return nil, t.errorAt("unused flag bytes", cur)
	case cur.hash != len(t.hashes):
		return nil, t.errorAt("unused hashes", cur)
	case root.hash != mb.Header.MerkleRoot:
		return nil, t.errorAt(fmt.Sprintf("root %s does not match header merkle root %s", root.hash, mb.Header.MerkleRoot), cur)
	case !root.hasTarget:
		return nil, t.errorAt(fmt.Sprintf("transaction %s not matched by proof", txid), cur)
	}

	return &InclusionProof{
		TxID:       txid,
		BlockHash:  mb.Header.Hash,
		MerkleRoot: mb.Header.MerkleRoot,
		TxCount:    mb.TxCount,
		Siblings:   cur.path,
	}, nil
}

// partialTree is the immutable input of a traversal.
type partialTree struct {
	txCount uint32
	hashes  []chainhash.Hash
	flags   []byte
	target  chainhash.Hash
	hash    Hasher
}

// treeCursor is the traversal state: how many flag bits and hashes have
// been consumed, and the target's sibling path so far.
type treeCursor struct {
	bit  int
	hash int
	path []Sibling
}

type treeNode struct {
	hash      chainhash.Hash
	hasTarget bool
}

// width returns the number of nodes at the given height, leaves being height 0.
func (t *partialTree) width(height uint) uint64 {
	return (uint64(t.txCount) + (1 << height) - 1) >> height
}

func (t *partialTree) height() uint {
	var h uint
	for t.width(h) > 1 {
		h++
	}
	return h
}

func (t *partialTree) traverse(cur treeCursor, height uint, pos uint64) (treeNode, treeCursor, error) {
	if cur.bit >= len(t.flags)*8 {
		return treeNode{}, cur, t.errorAt("ran out of flag bits", cur)
	}
	flag := t.flags[cur.bit/8]>>(cur.bit%8)&1 == 1
	cur.bit++

	if height == 0 || !flag {
		if cur.hash >= len(t.hashes) {
			return treeNode{}, cur, t.errorAt("ran out of hashes", cur)
		}
		h := t.hashes[cur.hash]
		cur.hash++
		return treeNode{hash: h, hasTarget: height == 0 && flag && h == t.target}, cur, nil
	}

	left, cur, err := t.traverse(cur, height-1, pos*2)
	if err != nil {
		return treeNode{}, cur, err
	}
	right := left
	mirrored := true
	if pos*2+1 < t.width(height-1) {
		mirrored = false
		right, cur, err = t.traverse(cur, height-1, pos*2+1)
		if err != nil {
			return treeNode{}, cur, err
		}
		if right.hash == left.hash {
			return treeNode{}, cur, t.errorAt(fmt.Sprintf("duplicate hash at height %d", height-1), cur)
		}
	}

	switch {
	case left.hasTarget:
		cur.path = append(cur.path, Sibling{Hash: right.hash, IsRight: true})
	case right.hasTarget && !mirrored:
		cur.path = append(cur.path, Sibling{Hash: left.hash, IsRight: false})
	}

	return treeNode{
		hash:      Combine(t.hash, left.hash, right.hash),
		hasTarget: left.hasTarget || (right.hasTarget && !mirrored),
	}, cur, nil
}

func (t *partialTree) errorAt(reason string, cur treeCursor) error {
	return &ProofError{
		Reason:     reason,
		HashesUsed: cur.hash,
		HashCount:  len(t.hashes),
		BitsUsed:   cur.bit,
		BitCount:   len(t.flags) * 8,
	}
}
