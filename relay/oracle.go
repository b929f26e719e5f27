package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitfsorg/utu-go/felt"
)

// ChainStateOracle answers queries about what the relay contract has stored.
// Both queries return an all-zero (or empty) record for "nothing stored".
type ChainStateOracle interface {
	// GetStatus returns the registration record of a block hash.
	GetStatus(ctx context.Context, hash chainhash.Hash) (Record, error)

	// GetBlock returns the canonical block digest stored at height.
	GetBlock(ctx context.Context, height uint32) (Record, error)
}

// Record is a raw oracle response.
type Record []felt.Felt

// StatusWords is the width of a block status record:
// registration timestamp, previous block digest, accumulated work.
const StatusWords = 1 + felt.HashWords + 1

// IsEmpty reports whether the record is the "nothing stored" sentinel.
func (r Record) IsEmpty() bool {
	for _, f := range r {
		if !f.IsZero() {
			return false
		}
	}
	return true
}

// Digest decodes a get_block record.
func (r Record) Digest() (chainhash.Hash, error) {
	return felt.HashFromWords(r)
}

// DigestRecord encodes a block hash as a get_block record.
func DigestRecord(h chainhash.Hash) Record {
	return felt.AppendHash(nil, h)
}

// BlockStatus is the decoded form of a get_status record.
type BlockStatus struct {
	RegistrationTimestamp uint64
	PrevBlockDigest       chainhash.Hash
	Pow                   *big.Int
}

// BlockStatus decodes a get_status record.
func (r Record) BlockStatus() (*BlockStatus, error) {
	if len(r) != StatusWords {
		return nil, fmt.Errorf("%w: status record has %d words, want %d", felt.ErrWordCount, len(r), StatusWords)
	}
	ts, ok := r[0].Uint64()
	if !ok {
		return nil, fmt.Errorf("relay: registration timestamp %s overflows", r[0])
	}
	prev, err := felt.HashFromWords(r[1 : 1+felt.HashWords])
	if err != nil {
		return nil, err
	}
	return &BlockStatus{
		RegistrationTimestamp: ts,
		PrevBlockDigest:       prev,
		Pow:                   r[StatusWords-1].Big(),
	}, nil
}

// Record encodes the status as a get_status record.
func (s *BlockStatus) Record() (Record, error) {
	pow := s.Pow
	if pow == nil {
		pow = new(big.Int)
	}
	w, err := felt.FromBig(pow)
	if err != nil {
		return nil, err
	}
	r := make(Record, 0, StatusWords)
	r = append(r, felt.FromUint64(s.RegistrationTimestamp))
	r = felt.AppendHash(r, s.PrevBlockDigest)
	return append(r, w), nil
}
