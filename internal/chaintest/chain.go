// Package chaintest builds small deterministic Bitcoin chains for tests:
// segwit transactions, linked headers, and gettxoutproof blobs.
package chaintest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
)

// RegtestBits is the easiest regtest difficulty.
const RegtestBits uint32 = 0x207fffff

// Block is a synthetic block.
type Block struct {
	Header *spv.BlockHeader
	Txs    []*wire.MsgTx
	TxIDs  []chainhash.Hash
}

// Chain is a linear sequence of blocks starting at height 0.
type Chain struct {
	Blocks []*Block
	Bits   uint32

	salt uint32
}

// NewChain builds n blocks. txCount reports how many transactions the block
// at a height holds, coinbase included; nil means one per block.
func NewChain(n int, txCount func(height int) int) *Chain {
	c := &Chain{Bits: RegtestBits}
	c.extend(n, txCount)
	return c
}

// Fork returns a chain sharing this chain's blocks below height and
// continuing with n freshly mined blocks that differ from the original ones.
func (c *Chain) Fork(height, n int, txCount func(height int) int) *Chain {
	f := &Chain{
		Blocks: append([]*Block(nil), c.Blocks[:height]...),
		Bits:   c.Bits,
		salt:   c.salt + 1,
	}
	f.extend(n, txCount)
	return f
}

// Tip returns the last block.
func (c *Chain) Tip() *Block { return c.Blocks[len(c.Blocks)-1] }

// At returns the block at height.
func (c *Chain) At(height uint32) *Block { return c.Blocks[height] }

func (c *Chain) extend(n int, txCount func(height int) int) {
	if txCount == nil {
		txCount = func(int) int { return 1 }
	}
	for i := 0; i < n; i++ {
		height := len(c.Blocks)
		var prev chainhash.Hash
		if height > 0 {
			prev = c.Blocks[height-1].Header.Hash
		}
		c.Blocks = append(c.Blocks, c.mine(height, prev, max(txCount(height), 1)))
	}
}

func (c *Chain) mine(height int, prev chainhash.Hash, n int) *Block {
	b := &Block{}
	b.Txs = append(b.Txs, Coinbase(uint32(height), c.salt))
	for i := 1; i < n; i++ {
		b.Txs = append(b.Txs, spend(uint32(height), uint32(i), c.salt))
	}
	for _, t := range b.Txs {
		b.TxIDs = append(b.TxIDs, t.TxHash())
	}
	h := &spv.BlockHeader{
		Height:     uint32(height),
		Version:    0x20000000,
		PrevBlock:  prev,
		MerkleRoot: spv.ComputeMerkleRootFromTxList(b.TxIDs),
		Time:       1700000000 + uint32(height)*600 + c.salt,
		Bits:       c.Bits,
		Nonce:      uint32(height) ^ c.salt<<16,
		Fields:     spv.AllHeaderFields,
	}
	h.Hash = spv.ComputeHeaderHash(h)
	b.Header = h
	return b
}

// Coinbase returns a segwit coinbase committing to height in its script.
func Coinbase(height, salt uint32) *wire.MsgTx {
	script, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).
		AddData([]byte(fmt.Sprintf("chaintest/%d", salt))).
		Script()
	if err != nil {
		panic(err)
	}
	msg := wire.NewMsgTx(2)
	in := wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), script, nil)
	in.Witness = wire.TxWitness{make([]byte, 32)}
	msg.AddTxIn(in)
	msg.AddTxOut(wire.NewTxOut(50e8, payTo(height)))
	msg.AddTxOut(wire.NewTxOut(0, []byte{txscript.OP_RETURN, txscript.OP_DATA_4, 0xaa, 0x21, 0xa9, 0xed}))
	return msg
}

func spend(height, index, salt uint32) *wire.MsgTx {
	var seed [12]byte
	binary.LittleEndian.PutUint32(seed[0:], height)
	binary.LittleEndian.PutUint32(seed[4:], index)
	binary.LittleEndian.PutUint32(seed[8:], salt)
	prev := chainhash.DoubleHashH(seed[:])

	msg := wire.NewMsgTx(2)
	in := wire.NewTxIn(wire.NewOutPoint(&prev, index%3), nil, nil)
	in.Witness = wire.TxWitness{bytes.Repeat([]byte{byte(index)}, 71), bytes.Repeat([]byte{0x02}, 33)}
	msg.AddTxIn(in)
	msg.AddTxOut(wire.NewTxOut(int64(index)*1000, payTo(height+index)))
	return msg
}

func payTo(seed uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], seed)
	hash := chainhash.HashB(b[:])[:20]
	return append([]byte{txscript.OP_0, txscript.OP_DATA_20}, hash...)
}

// Raw returns the witness serialization of a transaction, as a node returns it.
func Raw(msg *wire.MsgTx) []byte {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Legacy returns the serialization without witness data.
func Legacy(msg *wire.MsgTx) []byte {
	var buf bytes.Buffer
	if err := msg.SerializeNoWitness(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (c *Chain) blockByHash(hash chainhash.Hash) (*Block, bool) {
	for _, b := range c.Blocks {
		if b.Header.Hash == hash {
			return b, true
		}
	}
	return nil, false
}

// Source returns a BlockSource serving the chain. Heights past the tip
// fail with *spv.ChainTipError.
func (c *Chain) Source() *relay.MockBlockSource {
	return &relay.MockBlockSource{
		GetBlockHashFn: func(_ context.Context, height uint32) (chainhash.Hash, error) {
			if int(height) >= len(c.Blocks) {
				return chainhash.Hash{}, &spv.ChainTipError{Height: height}
			}
			return c.Blocks[height].Header.Hash, nil
		},
		GetBlockHeaderFn: func(_ context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
			b, ok := c.blockByHash(hash)
			if !ok {
				return nil, fmt.Errorf("chaintest: unknown block %s", hash)
			}
			h := *b.Header
			return &h, nil
		},
		GetBlockFn: func(_ context.Context, hash chainhash.Hash) (*relay.Block, error) {
			b, ok := c.blockByHash(hash)
			if !ok {
				return nil, fmt.Errorf("chaintest: unknown block %s", hash)
			}
			h := *b.Header
			return &relay.Block{Header: &h, TxIDs: append([]chainhash.Hash(nil), b.TxIDs...)}, nil
		},
		GetRawTransactionFn: func(_ context.Context, txid chainhash.Hash) (*relay.RawTransaction, error) {
			for _, b := range c.Blocks {
				for i, id := range b.TxIDs {
					if id == txid {
						hash := b.Header.Hash
						return &relay.RawTransaction{TxID: id, Raw: Raw(b.Txs[i]), BlockHash: &hash}, nil
					}
				}
			}
			return nil, fmt.Errorf("chaintest: unknown transaction %s", txid)
		},
		GetTxOutProofFn: func(_ context.Context, txids []chainhash.Hash, blockHash *chainhash.Hash) ([]byte, error) {
			if blockHash == nil {
				return nil, fmt.Errorf("chaintest: block hash required")
			}
			b, ok := c.blockByHash(*blockHash)
			if !ok {
				return nil, fmt.Errorf("chaintest: unknown block %s", blockHash)
			}
			want := make(map[chainhash.Hash]bool, len(txids))
			for _, id := range txids {
				want[id] = true
			}
			return BuildPartialProof(b.Header, b.TxIDs, func(i int) bool { return want[b.TxIDs[i]] }), nil
		},
	}
}
