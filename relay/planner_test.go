package relay_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/utu-go/internal/chaintest"
	"github.com/bitfsorg/utu-go/metrics"
	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
	"github.com/bitfsorg/utu-go/tx"
)

// relayState is an in-memory view of the relay contract's storage.
type relayState struct {
	registered map[chainhash.Hash]bool
	canonical  map[uint32]chainhash.Hash
	statusErr  error
	blockErr   error
	blockCalls []uint32
}

func newRelayState() *relayState {
	return &relayState{
		registered: make(map[chainhash.Hash]bool),
		canonical:  make(map[uint32]chainhash.Hash),
	}
}

// sync marks the blocks at heights [from, to] of chain as registered and canonical.
func (s *relayState) sync(chain *chaintest.Chain, from, to uint32) {
	for h := from; h <= to; h++ {
		hash := chain.At(h).Header.Hash
		s.registered[hash] = true
		s.canonical[h] = hash
	}
}

func (s *relayState) oracle() *relay.MockOracle {
	return &relay.MockOracle{
		GetStatusFn: func(_ context.Context, hash chainhash.Hash) (relay.Record, error) {
			if s.statusErr != nil {
				return nil, s.statusErr
			}
			if !s.registered[hash] {
				return make(relay.Record, 10), nil
			}
			return (&relay.BlockStatus{RegistrationTimestamp: 1, Pow: big.NewInt(2)}).Record()
		},
		GetBlockFn: func(_ context.Context, height uint32) (relay.Record, error) {
			s.blockCalls = append(s.blockCalls, height)
			if s.blockErr != nil {
				return nil, s.blockErr
			}
			hash, ok := s.canonical[height]
			if !ok {
				return make(relay.Record, 8), nil
			}
			return relay.DigestRecord(hash), nil
		},
	}
}

func fiveTxs(int) int { return 5 }

func registeredHashes(t *testing.T, plan *relay.Plan) []chainhash.Hash {
	t.Helper()
	for _, op := range plan.Ops {
		if rb, ok := op.(*relay.RegisterBlocks); ok {
			return rb.Hashes()
		}
	}
	return nil
}

func update(t *testing.T, plan *relay.Plan) *relay.UpdateCanonicalChain {
	t.Helper()
	require.NotEmpty(t, plan.Ops)
	u, ok := plan.Ops[len(plan.Ops)-1].(*relay.UpdateCanonicalChain)
	require.True(t, ok, "last operation is a canonical chain update")
	return u
}

func TestPlan_FreshRelay_ZeroWork(t *testing.T) {
	chain := chaintest.NewChain(10, fiveTxs)
	state := newRelayState()
	p := relay.NewPlanner(chain.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 3, big.NewInt(0))
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)

	assert.Equal(t, []chainhash.Hash{chain.At(3).Header.Hash}, registeredHashes(t, plan))

	u := update(t, plan)
	assert.Equal(t, uint32(3), u.BeginHeight)
	assert.Equal(t, uint32(3), u.EndHeight)
	assert.Equal(t, chain.At(3).Header.Hash, u.EndBlockHash)
	require.True(t, u.WithProof(), "nothing canonical below the first height")

	proof := u.Proof
	assert.Equal(t, chain.At(3).Header.Hash, proof.Header.Hash)
	assert.Equal(t, chaintest.Legacy(chain.At(3).Txs[0]), proof.CoinbaseTx)
	coinbase, err := tx.LegacyTxID(proof.CoinbaseTx)
	require.NoError(t, err)
	assert.Equal(t, proof.Header.MerkleRoot, spv.ComputeMerkleRoot(coinbase, 0, proof.MerkleBranch))
	assert.Equal(t, []uint32{2}, state.blockCalls, "only the height below is queried")
}

func TestPlan_Synced(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 9)
	p := relay.NewPlanner(chain.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 5, big.NewInt(6))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, []uint32{5, 6, 7}, state.blockCalls)
}

func TestPlan_AccumulatesWork(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 3)
	p := relay.NewPlanner(chain.Source(), state.oracle())

	// Regtest blocks carry 2 units of work each.
	plan, err := p.Plan(context.Background(), 4, big.NewInt(5))
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	assert.Equal(t, []chainhash.Hash{
		chain.At(4).Header.Hash,
		chain.At(5).Header.Hash,
		chain.At(6).Header.Hash,
	}, registeredHashes(t, plan))

	u := update(t, plan)
	assert.Equal(t, uint32(4), u.BeginHeight)
	assert.Equal(t, uint32(6), u.EndHeight)
	assert.Equal(t, chain.At(6).Header.Hash, u.EndBlockHash)
	assert.False(t, u.WithProof(), "height 3 is canonical")
}

func TestPlan_RegisteredNotCanonical(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 3)
	for h := uint32(4); h <= 6; h++ {
		state.registered[chain.At(h).Header.Hash] = true
	}
	p := relay.NewPlanner(chain.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 4, big.NewInt(6))
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	u := update(t, plan)
	assert.Equal(t, uint32(4), u.BeginHeight)
	assert.Equal(t, uint32(6), u.EndHeight)
	assert.False(t, u.WithProof())
}

func TestPlan_Mixed(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 4)
	state.registered[chain.At(5).Header.Hash] = true
	p := relay.NewPlanner(chain.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 4, big.NewInt(6))
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	_, first := plan.Ops[0].(*relay.RegisterBlocks)
	assert.True(t, first, "registration precedes the chain update")
	assert.Equal(t, []chainhash.Hash{chain.At(6).Header.Hash}, registeredHashes(t, plan))

	u := update(t, plan)
	assert.Equal(t, uint32(5), u.BeginHeight)
	assert.Equal(t, uint32(6), u.EndHeight)
	assert.False(t, u.WithProof(), "height 3 is canonical")
}

func TestPlan_StaleCanonicalEntry(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 9)

	// The source has reorganized from height 5; the relay already knows the
	// new block at 5 but still holds the old one as canonical.
	fork := chain.Fork(5, 5, nil)
	require.NotEqual(t, chain.At(5).Header.Hash, fork.At(5).Header.Hash)
	state.registered[fork.At(5).Header.Hash] = true
	p := relay.NewPlanner(fork.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 5, nil)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	u := update(t, plan)
	assert.Equal(t, uint32(5), u.BeginHeight)
	assert.Equal(t, uint32(5), u.EndHeight)
	assert.Equal(t, fork.At(5).Header.Hash, u.EndBlockHash)
	assert.False(t, u.WithProof())
}

func TestPlan_Genesis(t *testing.T) {
	chain := chaintest.NewChain(3, nil)
	state := newRelayState()
	p := relay.NewPlanner(chain.Source(), state.oracle())

	plan, err := p.Plan(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	u := update(t, plan)
	assert.Equal(t, uint32(0), u.BeginHeight)
	assert.False(t, u.WithProof(), "no height below genesis")
	assert.Empty(t, state.blockCalls)
}

func TestPlan_ChainTip(t *testing.T) {
	chain := chaintest.NewChain(5, nil)
	p := relay.NewPlanner(chain.Source(), newRelayState().oracle())

	plan, err := p.Plan(context.Background(), 3, big.NewInt(100))
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, spv.ErrChainTip)
	var tip *spv.ChainTipError
	require.ErrorAs(t, err, &tip)
	assert.Equal(t, uint32(5), tip.Height)
}

func TestPlan_OracleFailure(t *testing.T) {
	chain := chaintest.NewChain(5, nil)

	t.Run("get_status", func(t *testing.T) {
		state := newRelayState()
		state.statusErr = errors.New("connection reset")
		plan, err := relay.NewPlanner(chain.Source(), state.oracle()).Plan(context.Background(), 1, nil)
		assert.Nil(t, plan)
		assert.ErrorIs(t, err, relay.ErrOracle)
		var oe *relay.OracleError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, relay.EntryGetStatus, oe.Op)
		assert.Equal(t, chain.At(1).Header.Hash.String(), oe.Arg)
	})

	t.Run("get_block", func(t *testing.T) {
		state := newRelayState()
		state.sync(chain, 0, 4)
		state.blockErr = errors.New("timeout")
		plan, err := relay.NewPlanner(chain.Source(), state.oracle()).Plan(context.Background(), 2, nil)
		assert.Nil(t, plan)
		var oe *relay.OracleError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, relay.EntryGetBlock, oe.Op)
		assert.Equal(t, "2", oe.Arg)
	})
}

func TestPlan_SourceFailure(t *testing.T) {
	chain := chaintest.NewChain(5, nil)
	src := chain.Source()
	src.GetBlockHeaderFn = func(context.Context, chainhash.Hash) (*spv.BlockHeader, error) {
		return nil, assert.AnError
	}
	plan, err := relay.NewPlanner(src, newRelayState().oracle()).Plan(context.Background(), 1, nil)
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPlan_MissingHeaderField(t *testing.T) {
	chain := chaintest.NewChain(5, nil)
	src := chain.Source()
	getHeader := src.GetBlockHeaderFn
	src.GetBlockHeaderFn = func(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
		h, err := getHeader(ctx, hash)
		if err != nil {
			return nil, err
		}
		h.Fields &^= spv.FieldNonce
		return h, nil
	}
	_, err := relay.NewPlanner(src, newRelayState().oracle()).Plan(context.Background(), 1, nil)
	var mf *spv.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "nonce", mf.Field)
}

func TestPlan_ReorgDuringScan(t *testing.T) {
	chain := chaintest.NewChain(8, nil)
	fork := chain.Fork(4, 4, nil)
	src := chain.Source()
	forkSrc := fork.Source()
	getHash := src.GetBlockHashFn
	src.GetBlockHashFn = func(ctx context.Context, height uint32) (chainhash.Hash, error) {
		if height >= 5 {
			return forkSrc.GetBlockHash(ctx, height)
		}
		return getHash(ctx, height)
	}
	getHeader := src.GetBlockHeaderFn
	src.GetBlockHeaderFn = func(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
		if h, err := getHeader(ctx, hash); err == nil {
			return h, nil
		}
		return forkSrc.GetBlockHeader(ctx, hash)
	}

	plan, err := relay.NewPlanner(src, newRelayState().oracle()).Plan(context.Background(), 2, big.NewInt(12))
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, spv.ErrChainBroken)
	assert.ErrorContains(t, err, "height 5")
}

func TestPlan_HighCoefficientBits(t *testing.T) {
	chain := chaintest.NewChain(6, nil)
	src := chain.Source()
	getHeader := src.GetBlockHeaderFn
	src.GetBlockHeaderFn = func(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
		h, err := getHeader(ctx, hash)
		if err != nil {
			return nil, err
		}
		h.Bits = 0x1d800000
		return h, nil
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	// Bit 23 belongs to the coefficient, so the block carries work and one
	// probe satisfies a zero minimum.
	plan, err := relay.NewPlanner(src, newRelayState().oracle(), relay.WithMetrics(m)).Plan(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []chainhash.Hash{chain.At(2).Header.Hash}, registeredHashes(t, plan))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter(metrics.MetricNameBlocksProbed)))
}

func TestPlan_Cancelled(t *testing.T) {
	chain := chaintest.NewChain(5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan, err := relay.NewPlanner(chain.Source(), newRelayState().oracle()).Plan(ctx, 1, nil)
	assert.Nil(t, plan)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlan_Metrics(t *testing.T) {
	chain := chaintest.NewChain(10, nil)
	state := newRelayState()
	state.sync(chain, 0, 3)
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)
	p := relay.NewPlanner(chain.Source(), state.oracle(), relay.WithMetrics(m))

	_, err = p.Plan(context.Background(), 4, big.NewInt(6))
	require.NoError(t, err)
	_, err = p.Plan(context.Background(), 20, nil)
	require.Error(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Counter(metrics.MetricNameBlocksProbed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Counter(metrics.MetricNameBlocksRegistered)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Counter(metrics.MetricNameHeightsRewritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter(metrics.MetricNamePlansBuilt)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Counter(metrics.MetricNamePlanFailures)))
}
