package relay

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitfsorg/utu-go/spv"
)

// MockBlockSource is a test double for BlockSource.
// All function fields must be set before the corresponding method is called.
type MockBlockSource struct {
	GetBlockHashFn      func(ctx context.Context, height uint32) (chainhash.Hash, error)
	GetBlockHeaderFn    func(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error)
	GetBlockFn          func(ctx context.Context, hash chainhash.Hash) (*Block, error)
	GetRawTransactionFn func(ctx context.Context, txid chainhash.Hash) (*RawTransaction, error)
	GetTxOutProofFn     func(ctx context.Context, txids []chainhash.Hash, blockHash *chainhash.Hash) ([]byte, error)
}

func (m *MockBlockSource) GetBlockHash(ctx context.Context, height uint32) (chainhash.Hash, error) {
	return m.GetBlockHashFn(ctx, height)
}
func (m *MockBlockSource) GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
	return m.GetBlockHeaderFn(ctx, hash)
}
func (m *MockBlockSource) GetBlock(ctx context.Context, hash chainhash.Hash) (*Block, error) {
	return m.GetBlockFn(ctx, hash)
}
func (m *MockBlockSource) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*RawTransaction, error) {
	return m.GetRawTransactionFn(ctx, txid)
}
func (m *MockBlockSource) GetTxOutProof(ctx context.Context, txids []chainhash.Hash, blockHash *chainhash.Hash) ([]byte, error) {
	return m.GetTxOutProofFn(ctx, txids, blockHash)
}

// MockOracle is a test double for ChainStateOracle.
type MockOracle struct {
	GetStatusFn func(ctx context.Context, hash chainhash.Hash) (Record, error)
	GetBlockFn  func(ctx context.Context, height uint32) (Record, error)
}

func (m *MockOracle) GetStatus(ctx context.Context, hash chainhash.Hash) (Record, error) {
	return m.GetStatusFn(ctx, hash)
}
func (m *MockOracle) GetBlock(ctx context.Context, height uint32) (Record, error) {
	return m.GetBlockFn(ctx, height)
}

var (
	_ BlockSource      = (*MockBlockSource)(nil)
	_ ChainStateOracle = (*MockOracle)(nil)
)
