package spv

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hasher is the hash primitive used to combine merkle nodes.
type Hasher func([]byte) []byte

// DoubleHash computes SHA256(SHA256(data)), matching Bitcoin's hash function.
func DoubleHash(data []byte) []byte {
	return chainhash.DoubleHashB(data)
}

// Combine returns hash(left || right) for two nodes in internal byte order.
// Reading the hashes in display order this is reverse(hash(rev(left) || rev(right)))
// with each side reversed, which is how block explorers describe it.
func Combine(hash Hasher, left, right chainhash.Hash) chainhash.Hash {
	var buf [2 * chainhash.HashSize]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	var out chainhash.Hash
	copy(out[:], hash(buf[:]))
	return out
}

// Sibling is one step of a merkle path. IsRight is true when the sibling
// sits to the right of the running hash.
type Sibling struct {
	Hash    chainhash.Hash
	IsRight bool
}

// InclusionProof proves that TxID is committed to by the merkle root of
// BlockHash. Siblings are listed leaf-to-root.
type InclusionProof struct {
	TxID       chainhash.Hash
	BlockHash  chainhash.Hash
	MerkleRoot chainhash.Hash
	TxCount    uint32
	Siblings   []Sibling
}

// Root folds the siblings onto TxID and returns the resulting merkle root.
// A nil hasher means double-SHA256.
func (p *InclusionProof) Root(hash Hasher) chainhash.Hash {
	if hash == nil {
		hash = DoubleHash
	}
	cur := p.TxID
	for _, s := range p.Siblings {
		if s.IsRight {
			cur = Combine(hash, cur, s.Hash)
		} else {
			cur = Combine(hash, s.Hash, cur)
		}
	}
	return cur
}

// Branch returns the sibling hashes without their sides, or nil for a
// single-transaction block.
func (p *InclusionProof) Branch() []chainhash.Hash {
	if len(p.Siblings) == 0 {
		return nil
	}
	out := make([]chainhash.Hash, len(p.Siblings))
	for i, s := range p.Siblings {
		out[i] = s.Hash
	}
	return out
}

// VerifyInclusion recomputes the root of an inclusion proof and checks it
// against the expected merkle root from a block header.
func VerifyInclusion(p *InclusionProof, expectedRoot chainhash.Hash) error {
	if p == nil {
		return fmt.Errorf("%w: proof", ErrNilParam)
	}
	if got := p.Root(nil); got != expectedRoot {
		return fmt.Errorf("%w: computed %s, header has %s", ErrMerkleProofInvalid, got, expectedRoot)
	}
	return nil
}

// ComputeMerkleRoot folds a branch of left-or-right siblings onto a leaf,
// using the leaf's index in the block to decide sides.
//
//	hash = leaf
//	for i, node in branch:
//	    if bit i of index is 0:  hash = DoubleHash(hash || node)
//	    else:                     hash = DoubleHash(node || hash)
func ComputeMerkleRoot(leaf chainhash.Hash, index uint32, branch []chainhash.Hash) chainhash.Hash {
	hash := leaf
	for i, node := range branch {
		if (index>>uint(i))&1 == 0 {
			hash = Combine(DoubleHash, hash, node)
		} else {
			hash = Combine(DoubleHash, node, hash)
		}
	}
	return hash
}

// BuildMerkleTree builds a full Merkle tree from a list of transaction hashes.
// Returns all tree levels, where level 0 is the leaves and the last level
// holds only the root. An odd level is padded by duplicating its last element.
func BuildMerkleTree(txHashes []chainhash.Hash) [][]chainhash.Hash {
	if len(txHashes) == 0 {
		return nil
	}

	level := make([]chainhash.Hash, len(txHashes))
	copy(level, txHashes)
	levels := [][]chainhash.Hash{level}

	for len(level) > 1 {
		next := make([]chainhash.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = Combine(DoubleHash, level[i], right)
		}
		level = next
		levels = append(levels, level)
	}

	return levels
}

// ComputeMerkleRootFromTxList computes the Merkle root of a complete block
// transaction list.
func ComputeMerkleRootFromTxList(txIDs []chainhash.Hash) chainhash.Hash {
	tree := BuildMerkleTree(txIDs)
	if tree == nil {
		return chainhash.Hash{}
	}
	return tree[len(tree)-1][0]
}

// MerkleBranch returns the sibling path for the leaf at index, suitable for
// ComputeMerkleRoot.
func MerkleBranch(txIDs []chainhash.Hash, index uint32) []chainhash.Hash {
	if int(index) >= len(txIDs) {
		return nil
	}
	tree := BuildMerkleTree(txIDs)
	var branch []chainhash.Hash
	pos := int(index)
	for _, level := range tree[:max(len(tree)-1, 0)] {
		sib := pos ^ 1
		if sib >= len(level) {
			sib = pos
		}
		branch = append(branch, level[sib])
		pos >>= 1
	}
	return branch
}
