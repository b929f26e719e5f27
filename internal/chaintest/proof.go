package chaintest

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/bitfsorg/utu-go/spv"
)

// BuildPartialProof encodes a merkle block for the leaves selected by match,
// building the partial tree top-down the way bitcoind's gettxoutproof does.
func BuildPartialProof(header *spv.BlockHeader, txids []chainhash.Hash, match func(i int) bool) []byte {
	b := &treeBuilder{txids: txids, match: match}
	b.build(b.height(), 0)
	return EncodeMerkleBlock(header, uint32(len(txids)), b.hashes, PackFlags(b.bits))
}

// EncodeMerkleBlock serializes the parts of a merkle block.
func EncodeMerkleBlock(header *spv.BlockHeader, txCount uint32, hashes []chainhash.Hash, flags []byte) []byte {
	var buf bytes.Buffer
	buf.Write(spv.SerializeHeader(header))
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], txCount)
	buf.Write(n[:])
	_ = wire.WriteVarInt(&buf, 0, uint64(len(hashes)))
	for _, h := range hashes {
		buf.Write(h[:])
	}
	_ = wire.WriteVarInt(&buf, 0, uint64(len(flags)))
	buf.Write(flags)
	return buf.Bytes()
}

// PackFlags packs bits least significant first.
func PackFlags(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

type treeBuilder struct {
	txids  []chainhash.Hash
	match  func(i int) bool
	bits   []bool
	hashes []chainhash.Hash
}

func (b *treeBuilder) width(height uint) int {
	return (len(b.txids) + (1 << height) - 1) >> height
}

func (b *treeBuilder) height() uint {
	var h uint
	for b.width(h) > 1 {
		h++
	}
	return h
}

func (b *treeBuilder) hash(height uint, pos int) chainhash.Hash {
	if height == 0 {
		return b.txids[pos]
	}
	left := b.hash(height-1, pos*2)
	right := left
	if pos*2+1 < b.width(height-1) {
		right = b.hash(height-1, pos*2+1)
	}
	return spv.Combine(spv.DoubleHash, left, right)
}

func (b *treeBuilder) build(height uint, pos int) {
	matched := false
	for i := pos << height; i < (pos+1)<<height && i < len(b.txids); i++ {
		if b.match(i) {
			matched = true
			break
		}
	}
	b.bits = append(b.bits, matched)
	if height == 0 || !matched {
		b.hashes = append(b.hashes, b.hash(height, pos))
		return
	}
	b.build(height-1, pos*2)
	if pos*2+1 < b.width(height-1) {
		b.build(height-1, pos*2+1)
	}
}
