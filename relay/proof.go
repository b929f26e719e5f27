package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/spv"
	"github.com/bitfsorg/utu-go/tx"
)

// Prover assembles proofs from a BlockSource.
type Prover struct {
	source BlockSource
	hash   spv.Hasher
	logger zerolog.Logger
}

// ProverOption configures a Prover.
type ProverOption func(*Prover)

// WithProverLogger sets the logger.
func WithProverLogger(l zerolog.Logger) ProverOption {
	return func(p *Prover) { p.logger = l }
}

// WithProofHasher replaces the merkle node hash.
func WithProofHasher(h spv.Hasher) ProverOption {
	return func(p *Prover) { p.hash = h }
}

// NewProver creates a Prover over source.
func NewProver(source BlockSource, opts ...ProverOption) *Prover {
	p := &Prover{
		source: source,
		hash:   spv.DoubleHash,
		logger: log.With().Str("module", "relay_prover").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HeightProof proves the height of the block at height on the source's best
// chain:
//  1. getblockhash and getblock for the coinbase txid
//  2. gettxoutproof for the coinbase and getrawtransaction, concurrently
//  3. strip the coinbase to its legacy form and extract its merkle branch
func (p *Prover) HeightProof(ctx context.Context, height uint32) (*HeightProof, error) {
	hash, err := p.source.GetBlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("relay: block hash at height %d: %w", height, err)
	}
	return p.heightProofAt(ctx, hash)
}

func (p *Prover) heightProofAt(ctx context.Context, hash chainhash.Hash) (*HeightProof, error) {
	block, err := p.source.GetBlock(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("relay: block %s: %w", hash, err)
	}
	if len(block.TxIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBlock, hash)
	}
	coinbase := block.TxIDs[0]

	var (
		blob []byte
		raw  *RawTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blob, err = p.source.GetTxOutProof(gctx, []chainhash.Hash{coinbase}, &hash)
		if err != nil {
			return fmt.Errorf("relay: coinbase proof for block %s: %w", hash, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		raw, err = p.source.GetRawTransaction(gctx, coinbase)
		if err != nil {
			return fmt.Errorf("relay: coinbase %s: %w", coinbase, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	legacy, err := tx.Canonicalize(raw.Raw, coinbase)
	if err != nil {
		if errors.Is(err, tx.ErrTxIDMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrCoinbaseMismatch, err)
		}
		return nil, fmt.Errorf("relay: coinbase %s: %w", coinbase, err)
	}

	proof, err := spv.ReconstructInclusionProof(coinbase, blob, uint32(len(block.TxIDs)), spv.WithHasher(p.hash))
	if err != nil {
		return nil, fmt.Errorf("relay: coinbase proof for block %s: %w", hash, err)
	}
	if proof.BlockHash != hash {
		return nil, fmt.Errorf("%w: proof is for block %s, want %s", spv.ErrMerkleProofInvalid, proof.BlockHash, hash)
	}

	p.logger.Debug().
		Stringer("block", hash).
		Int("coinbase_bytes", len(legacy)).
		Int("branch", len(proof.Siblings)).
		Msg("built height proof")

	return &HeightProof{
		Header:       block.Header,
		CoinbaseTx:   legacy,
		MerkleBranch: proof.Branch(),
	}, nil
}

// TxProof is a transaction's inclusion proof together with its block header.
type TxProof struct {
	Header *spv.BlockHeader
	Proof  *spv.InclusionProof
}

// Calldata returns [count, (sibling(8), isRight)...].
func (tp *TxProof) Calldata() []felt.Felt {
	out := make([]felt.Felt, 0, 1+len(tp.Proof.Siblings)*(felt.HashWords+1))
	out = append(out, felt.FromUint64(uint64(len(tp.Proof.Siblings))))
	for _, s := range tp.Proof.Siblings {
		out = felt.AppendHash(out, s.Hash)
		dir := uint64(0)
		if s.IsRight {
			dir = 1
		}
		out = append(out, felt.FromUint64(dir))
	}
	return out
}

// TxInclusionProof proves that a confirmed transaction is in its block.
func (p *Prover) TxInclusionProof(ctx context.Context, txid chainhash.Hash) (*TxProof, error) {
	raw, err := p.source.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("relay: transaction %s: %w", txid, err)
	}
	if raw.BlockHash == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnconfirmed, txid)
	}
	block, err := p.source.GetBlock(ctx, *raw.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("relay: block %s: %w", raw.BlockHash, err)
	}
	blob, err := p.source.GetTxOutProof(ctx, []chainhash.Hash{txid}, raw.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("relay: proof for %s: %w", txid, err)
	}
	proof, err := spv.ReconstructInclusionProof(txid, blob, uint32(len(block.TxIDs)), spv.WithHasher(p.hash))
	if err != nil {
		return nil, fmt.Errorf("relay: proof for %s: %w", txid, err)
	}
	return &TxProof{Header: block.Header, Proof: proof}, nil
}

// Header fetches the header at height.
func (p *Prover) Header(ctx context.Context, height uint32) (*spv.BlockHeader, error) {
	hash, err := p.source.GetBlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("relay: block hash at height %d: %w", height, err)
	}
	h, err := p.source.GetBlockHeader(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("relay: header %s: %w", hash, err)
	}
	return h, nil
}

// RegisterBlocks builds a registration of the blocks at heights [from, to].
func (p *Prover) RegisterBlocks(ctx context.Context, from, to uint32) (*RegisterBlocks, error) {
	if to < from {
		return nil, fmt.Errorf("%w: empty height range [%d, %d]", ErrNoHeaders, from, to)
	}
	op := &RegisterBlocks{}
	for h := from; ; h++ {
		header, err := p.Header(ctx, h)
		if err != nil {
			return nil, err
		}
		if err := header.Missing(); err != nil {
			return nil, fmt.Errorf("relay: header at height %d: %w", h, err)
		}
		op.Headers = append(op.Headers, header)
		if h == to {
			return op, nil
		}
	}
}

// CanonicalChainUpdate builds an update of [begin, end], with a height proof
// for begin when withProof is set.
func (p *Prover) CanonicalChainUpdate(ctx context.Context, begin, end uint32, withProof bool) (*UpdateCanonicalChain, error) {
	if end < begin {
		return nil, fmt.Errorf("relay: empty height range [%d, %d]", begin, end)
	}
	endHash, err := p.source.GetBlockHash(ctx, end)
	if err != nil {
		return nil, fmt.Errorf("relay: block hash at height %d: %w", end, err)
	}
	op := &UpdateCanonicalChain{BeginHeight: begin, EndHeight: end, EndBlockHash: endHash}
	if withProof {
		if op.Proof, err = p.HeightProof(ctx, begin); err != nil {
			return nil, err
		}
	}
	return op, nil
}
