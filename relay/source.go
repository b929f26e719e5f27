// Package relay builds the calldata that keeps a light client of the Bitcoin
// chain, deployed on a field-element based chain, in sync with Bitcoin.
package relay

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitfsorg/utu-go/spv"
)

// BlockSource is the read-only view of the Bitcoin chain the relay needs.
// Implementations return *spv.ChainTipError for heights beyond their tip.
type BlockSource interface {
	// GetBlockHash returns the hash of the block at height on the best chain.
	GetBlockHash(ctx context.Context, height uint32) (chainhash.Hash, error)

	// GetBlockHeader returns the header of the block with the given hash.
	GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error)

	// GetBlock returns the header and transaction ids of a block.
	GetBlock(ctx context.Context, hash chainhash.Hash) (*Block, error)

	// GetRawTransaction returns a transaction's serialized bytes as the
	// node stores them (with witness data when present).
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*RawTransaction, error)

	// GetTxOutProof returns a serialized merkle block proving the txids.
	// blockHash may be nil when the source can locate the block itself.
	GetTxOutProof(ctx context.Context, txids []chainhash.Hash, blockHash *chainhash.Hash) ([]byte, error)
}

// Block is a block header with its transaction ids in block order.
type Block struct {
	Header *spv.BlockHeader
	TxIDs  []chainhash.Hash
}

// RawTransaction is a serialized transaction and, when confirmed, the hash
// of the block containing it.
type RawTransaction struct {
	TxID      chainhash.Hash
	Raw       []byte
	BlockHash *chainhash.Hash
}
