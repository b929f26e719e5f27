package oracle

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
	"github.com/bitfsorg/utu-go/tx"
)

var (
	bucketStatus    = []byte("status")
	bucketCanonical = []byte("canonical")
)

var (
	// ErrUnregistered indicates a canonical chain update referencing a block
	// that was never registered.
	ErrUnregistered = errors.New("oracle: block not registered")

	// ErrBrokenLink indicates a canonical chain update that does not connect
	// to the canonical block below it.
	ErrBrokenLink = errors.New("oracle: chain update does not link to canonical chain")

	// ErrInvalidHeightProof indicates a height proof that does not prove the
	// first block of an update.
	ErrInvalidHeightProof = errors.New("oracle: invalid height proof")
)

// storedStatus is the gob form of a block status.
type storedStatus struct {
	Timestamp uint64
	Prev      chainhash.Hash
	Pow       []byte
}

// BoltOracle is a local replica of relay contract storage. Applying a plan
// performs the checks the contract would and records the result, so a
// replica can stand in for a deployed relay in dry runs and tests.
type BoltOracle struct {
	db     *bbolt.DB
	now    func() time.Time
	logger zerolog.Logger
}

var _ relay.ChainStateOracle = (*BoltOracle)(nil)

// BoltOption configures a BoltOracle.
type BoltOption func(*BoltOracle)

// WithClock sets the source of registration timestamps.
func WithClock(now func() time.Time) BoltOption {
	return func(o *BoltOracle) { o.now = now }
}

// OpenBoltOracle opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltOracle(dbPath string, opts ...BoltOption) (*BoltOracle, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("oracle: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("oracle: open bolt db: %w", err)
	}

	err = db.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketStatus, bucketCanonical} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("oracle: create buckets: %w", err)
	}

	o := &BoltOracle{
		db:     db,
		now:    time.Now,
		logger: log.With().Str("module", "oracle_bolt").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Close closes the underlying database.
func (o *BoltOracle) Close() error { return o.db.Close() }

// heightKey encodes a block height as a 4-byte big-endian key for sorted storage.
func heightKey(h uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, h)
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func getStatus(btx *bbolt.Tx, hash chainhash.Hash) (*relay.BlockStatus, error) {
	data := btx.Bucket(bucketStatus).Get(hash[:])
	if data == nil {
		return nil, nil
	}
	var s storedStatus
	if err := decodeGob(data, &s); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", hash, err)
	}
	return &relay.BlockStatus{
		RegistrationTimestamp: s.Timestamp,
		PrevBlockDigest:       s.Prev,
		Pow:                   new(big.Int).SetBytes(s.Pow),
	}, nil
}

func getCanonical(btx *bbolt.Tx, height uint32) (chainhash.Hash, bool) {
	data := btx.Bucket(bucketCanonical).Get(heightKey(height))
	if data == nil {
		return chainhash.Hash{}, false
	}
	var h chainhash.Hash
	copy(h[:], data)
	return h, true
}

// GetStatus returns the registration record of hash, or an all-zero record.
func (o *BoltOracle) GetStatus(_ context.Context, hash chainhash.Hash) (relay.Record, error) {
	var rec relay.Record
	err := o.db.View(func(btx *bbolt.Tx) error {
		s, err := getStatus(btx, hash)
		if err != nil || s == nil {
			return err
		}
		rec, err = s.Record()
		return err
	})
	if err != nil {
		return nil, &relay.OracleError{Op: relay.EntryGetStatus, Arg: hash.String(), Err: err}
	}
	if rec == nil {
		rec = make(relay.Record, relay.StatusWords)
	}
	return rec, nil
}

// GetBlock returns the canonical digest at height, or an all-zero record.
func (o *BoltOracle) GetBlock(_ context.Context, height uint32) (relay.Record, error) {
	var (
		hash chainhash.Hash
		ok   bool
	)
	err := o.db.View(func(btx *bbolt.Tx) error {
		hash, ok = getCanonical(btx, height)
		return nil
	})
	if err != nil {
		return nil, &relay.OracleError{Op: relay.EntryGetBlock, Arg: fmt.Sprint(height), Err: err}
	}
	if !ok {
		return make(relay.Record, felt.HashWords), nil
	}
	return relay.DigestRecord(hash), nil
}

// Apply executes a plan's operations in order, in a single transaction.
// Nothing is written if any operation fails.
func (o *BoltOracle) Apply(plan *relay.Plan) error {
	if plan.Empty() {
		return nil
	}
	return o.db.Update(func(btx *bbolt.Tx) error {
		for _, op := range plan.Ops {
			var err error
			switch op := op.(type) {
			case *relay.RegisterBlocks:
				err = o.registerBlocks(btx, op)
			case *relay.UpdateCanonicalChain:
				err = o.updateCanonicalChain(btx, op)
			default:
				err = fmt.Errorf("oracle: unsupported operation %s", op.Kind())
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *BoltOracle) registerBlocks(btx *bbolt.Tx, op *relay.RegisterBlocks) error {
	if len(op.Headers) == 0 {
		return relay.ErrNoHeaders
	}
	ts := uint64(o.now().Unix())
	for _, h := range op.Headers {
		if err := h.Missing(); err != nil {
			return fmt.Errorf("oracle: register %s: %w", h.Hash, err)
		}
		hash := spv.ComputeHeaderHash(h)
		if hash != h.Hash {
			return fmt.Errorf("oracle: register %s: header hashes to %s", h.Hash, hash)
		}
		existing, err := getStatus(btx, hash)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		pow := spv.WorkForBits(h.Bits)
		prev, err := getStatus(btx, h.PrevBlock)
		if err != nil {
			return err
		}
		if prev != nil {
			pow.Add(pow, prev.Pow)
		}
		data, err := encodeGob(storedStatus{Timestamp: ts, Prev: h.PrevBlock, Pow: pow.Bytes()})
		if err != nil {
			return fmt.Errorf("oracle: encode status: %w", err)
		}
		if err := btx.Bucket(bucketStatus).Put(hash[:], data); err != nil {
			return fmt.Errorf("oracle: put status: %w", err)
		}
		o.logger.Debug().Stringer("hash", hash).Msg("registered block")
	}
	return nil
}

func (o *BoltOracle) updateCanonicalChain(btx *bbolt.Tx, op *relay.UpdateCanonicalChain) error {
	if op.EndHeight < op.BeginHeight {
		return fmt.Errorf("oracle: empty height range [%d, %d]", op.BeginHeight, op.EndHeight)
	}

	// Walk back from the end block to the first height of the update.
	n := int(op.EndHeight-op.BeginHeight) + 1
	hashes := make([]chainhash.Hash, n)
	cur := op.EndBlockHash
	var first *relay.BlockStatus
	for i := n - 1; i >= 0; i-- {
		s, err := getStatus(btx, cur)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("%w: %s at height %d", ErrUnregistered, cur, op.BeginHeight+uint32(i))
		}
		hashes[i] = cur
		first = s
		cur = s.PrevBlockDigest
	}

	if op.Proof != nil {
		if err := verifyHeightProof(op.Proof, hashes[0], op.BeginHeight); err != nil {
			return err
		}
	} else if op.BeginHeight > 0 {
		below, ok := getCanonical(btx, op.BeginHeight-1)
		if !ok || below != first.PrevBlockDigest {
			return fmt.Errorf("%w: block %s at height %d", ErrBrokenLink, hashes[0], op.BeginHeight)
		}
	}

	b := btx.Bucket(bucketCanonical)
	for i, h := range hashes {
		if err := b.Put(heightKey(op.BeginHeight+uint32(i)), append([]byte(nil), h[:]...)); err != nil {
			return fmt.Errorf("oracle: put canonical: %w", err)
		}
	}
	o.logger.Debug().
		Uint32("begin", op.BeginHeight).
		Uint32("end", op.EndHeight).
		Bool("with_proof", op.Proof != nil).
		Msg("updated canonical chain")
	return nil
}

// verifyHeightProof checks that p proves hash is the block at height: the
// header hashes to hash, the coinbase is the first leaf of its merkle tree,
// and the coinbase script commits to height.
func verifyHeightProof(p *relay.HeightProof, hash chainhash.Hash, height uint32) error {
	if p.Header == nil {
		return fmt.Errorf("%w: no header", ErrInvalidHeightProof)
	}
	if got := spv.ComputeHeaderHash(p.Header); got != hash {
		return fmt.Errorf("%w: header %s, want %s", ErrInvalidHeightProof, got, hash)
	}
	txid, err := tx.LegacyTxID(p.CoinbaseTx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeightProof, err)
	}
	if root := spv.ComputeMerkleRoot(txid, 0, p.MerkleBranch); root != p.Header.MerkleRoot {
		return fmt.Errorf("%w: coinbase branch gives root %s", ErrInvalidHeightProof, root)
	}
	got, err := coinbaseHeight(p.CoinbaseTx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeightProof, err)
	}
	if got != height {
		return fmt.Errorf("%w: coinbase commits to height %d, want %d", ErrInvalidHeightProof, got, height)
	}
	return nil
}

// coinbaseHeight reads the height pushed first in a coinbase input script.
func coinbaseHeight(legacy []byte) (uint32, error) {
	var msg wire.MsgTx
	if err := msg.DeserializeNoWitness(bytes.NewReader(legacy)); err != nil {
		return 0, err
	}
	if len(msg.TxIn) != 1 || msg.TxIn[0].PreviousOutPoint.Index != wire.MaxPrevOutIndex {
		return 0, errors.New("not a coinbase")
	}
	script := msg.TxIn[0].SignatureScript
	if len(script) == 0 {
		return 0, errors.New("empty coinbase script")
	}
	switch op := script[0]; {
	case op == txscript.OP_0:
		return 0, nil
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return uint32(op-txscript.OP_1) + 1, nil
	}
	tok := txscript.MakeScriptTokenizer(0, script)
	if !tok.Next() {
		return 0, fmt.Errorf("coinbase script: %v", tok.Err())
	}
	data := tok.Data()
	if len(data) == 0 || len(data) > 5 {
		return 0, fmt.Errorf("coinbase height push of %d bytes", len(data))
	}
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	if v > uint64(^uint32(0)) {
		return 0, fmt.Errorf("coinbase height %d out of range", v)
	}
	return uint32(v), nil
}
