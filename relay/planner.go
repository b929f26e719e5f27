package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bitfsorg/utu-go/metrics"
	"github.com/bitfsorg/utu-go/spv"
)

// Planner computes the operations that bring a relay contract in sync with
// the Bitcoin chain served by a BlockSource.
type Planner struct {
	source  BlockSource
	oracle  ChainStateOracle
	prover  *Prover
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithLogger sets the planner's logger.
func WithLogger(l zerolog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = l }
}

// WithMetrics records planning counters in m.
func WithMetrics(m *metrics.Metrics) PlannerOption {
	return func(p *Planner) { p.metrics = m }
}

// WithProver replaces the prover used for height proofs.
func WithProver(pr *Prover) PlannerOption {
	return func(p *Planner) { p.prover = pr }
}

// NewPlanner creates a Planner.
func NewPlanner(source BlockSource, oracle ChainStateOracle, opts ...PlannerOption) *Planner {
	p := &Planner{
		source: source,
		oracle: oracle,
		logger: log.With().Str("module", "relay_planner").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.prover == nil {
		p.prover = NewProver(source, WithProverLogger(p.logger))
	}
	return p
}

// planState is the accumulator of one Plan call.
type planState struct {
	acc        *big.Int
	headers    []*spv.BlockHeader // indexed by height - start
	toRegister []*spv.BlockHeader
	seen       map[chainhash.Hash]bool
	hasRange   bool
	min, max   uint32
}

func (s *planState) extend(height uint32) {
	if !s.hasRange {
		s.min, s.max, s.hasRange = height, height, true
		return
	}
	s.min = min(s.min, height)
	s.max = max(s.max, height)
}

// Plan scans forward from height until at least minWork of proof of work
// has been seen (and always at least one block), collecting the blocks the
// relay has not registered and the heights whose canonical entry is absent
// or stale. A nil minWork is treated as zero.
//
// Any BlockSource or oracle failure aborts the scan without a plan.
// A height beyond the source's tip fails with *spv.ChainTipError, and a
// header that does not link to the one probed before it (the source's best
// chain moved mid-scan) fails with spv.ErrChainBroken.
func (p *Planner) Plan(ctx context.Context, height uint32, minWork *big.Int) (*Plan, error) {
	plan, err := p.plan(ctx, height, minWork)
	if err != nil {
		p.metrics.PlanFailed()
		return nil, err
	}
	p.metrics.PlanBuilt()
	return plan, nil
}

func (p *Planner) plan(ctx context.Context, start uint32, minWork *big.Int) (*Plan, error) {
	if minWork == nil {
		minWork = new(big.Int)
	}
	st := &planState{acc: new(big.Int), seen: make(map[chainhash.Hash]bool)}

	for h := start; st.acc.Cmp(minWork) < 0 || st.acc.Sign() == 0; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.probe(ctx, st, h); err != nil {
			return nil, err
		}
		if h == ^uint32(0) {
			return nil, &spv.ChainTipError{Height: h}
		}
	}

	plan := &Plan{}
	if len(st.toRegister) > 0 {
		plan.Ops = append(plan.Ops, &RegisterBlocks{Headers: st.toRegister})
		p.metrics.BlocksRegistered(len(st.toRegister))
	}
	if !st.hasRange {
		p.logger.Debug().Uint32("height", start).Int("register", len(st.toRegister)).Msg("no canonical chain update")
		return plan, nil
	}

	update := &UpdateCanonicalChain{
		BeginHeight:  st.min,
		EndHeight:    st.max,
		EndBlockHash: st.headers[st.max-start].Hash,
	}
	withProof, err := p.needsProof(ctx, start)
	if err != nil {
		return nil, err
	}
	if withProof {
		first := st.headers[st.min-start]
		if update.Proof, err = p.prover.heightProofAt(ctx, first.Hash); err != nil {
			return nil, err
		}
	}
	plan.Ops = append(plan.Ops, update)
	p.metrics.HeightsRewritten(int(st.max-st.min) + 1)

	p.logger.Debug().
		Uint32("begin", update.BeginHeight).
		Uint32("end", update.EndHeight).
		Bool("with_proof", withProof).
		Int("register", len(st.toRegister)).
		Msg("planned canonical chain update")
	return plan, nil
}

// probe examines the block at height and folds it into st.
func (p *Planner) probe(ctx context.Context, st *planState, height uint32) error {
	hash, err := p.source.GetBlockHash(ctx, height)
	if err != nil {
		return fmt.Errorf("relay: block hash at height %d: %w", height, err)
	}
	header, err := p.source.GetBlockHeader(ctx, hash)
	if err != nil {
		return fmt.Errorf("relay: header %s: %w", hash, err)
	}
	header.Height = height
	if n := len(st.headers); n > 0 {
		if err := spv.VerifyHeaderChain([]*spv.BlockHeader{st.headers[n-1], header}); err != nil {
			return fmt.Errorf("relay: header at height %d: %w", height, err)
		}
	}
	st.headers = append(st.headers, header)
	st.acc.Add(st.acc, spv.WorkForBits(header.Bits))
	p.metrics.BlockProbed()

	status, err := p.oracle.GetStatus(ctx, hash)
	if err != nil {
		return oracleErr(EntryGetStatus, hash.String(), err)
	}
	if status.IsEmpty() {
		if err := header.Missing(); err != nil {
			return fmt.Errorf("relay: header at height %d: %w", height, err)
		}
		if !st.seen[hash] {
			st.seen[hash] = true
			st.toRegister = append(st.toRegister, header)
		}
		st.extend(height)
		p.logger.Debug().Uint32("height", height).Stringer("hash", hash).Msg("block unregistered")
		return nil
	}

	canonical, err := p.oracle.GetBlock(ctx, height)
	if err != nil {
		return oracleErr(EntryGetBlock, fmt.Sprint(height), err)
	}
	if canonical.IsEmpty() {
		st.extend(height)
		p.logger.Debug().Uint32("height", height).Stringer("hash", hash).Msg("block not canonical")
		return nil
	}
	digest, err := canonical.Digest()
	if err != nil {
		return oracleErr(EntryGetBlock, fmt.Sprint(height), err)
	}
	if digest != hash {
		st.extend(height)
		p.logger.Debug().
			Uint32("height", height).
			Stringer("hash", hash).
			Stringer("stored", digest).
			Msg("stale canonical entry")
	}
	return nil
}

// needsProof reports whether the relay has no canonical block just below
// start, in which case the update must prove its first height directly.
func (p *Planner) needsProof(ctx context.Context, start uint32) (bool, error) {
	if start == 0 {
		return false, nil
	}
	below, err := p.oracle.GetBlock(ctx, start-1)
	if err != nil {
		return false, oracleErr(EntryGetBlock, fmt.Sprint(start-1), err)
	}
	return below.IsEmpty(), nil
}

// oracleErr wraps err in an OracleError unless the oracle already did.
func oracleErr(op, arg string, err error) error {
	var oe *OracleError
	if errors.As(err, &oe) {
		return err
	}
	return &OracleError{Op: op, Arg: arg, Err: err}
}
