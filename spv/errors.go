package spv

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat indicates a byte buffer could not be decoded (truncated data,
	// CompactSize overrun, non-canonical encoding).
	ErrFormat = errors.New("spv: malformed encoding")

	// ErrProof indicates a partial merkle tree is internally inconsistent.
	ErrProof = errors.New("spv: invalid partial merkle proof")

	// ErrMissingField indicates a block header lacks a field required for serialization.
	ErrMissingField = errors.New("spv: block header field missing")

	// ErrChainTip indicates a height beyond the source's known chain tip was requested.
	ErrChainTip = errors.New("spv: height beyond chain tip")

	// ErrMerkleProofInvalid indicates the computed Merkle root does not match the expected root.
	ErrMerkleProofInvalid = errors.New("spv: merkle proof invalid")

	// ErrChainBroken indicates headers do not form a chain (PrevBlock mismatch).
	ErrChainBroken = errors.New("spv: header chain broken")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("spv: required parameter is nil")
)

// FormatError reports a decoding failure together with the byte offset at
// which it happened.
type FormatError struct {
	Field  string // what was being decoded
	Offset int    // offset of the field within the buffer
	Need   int    // bytes required, when the buffer was too short
	Have   int    // bytes remaining at Offset
	Err    error  // underlying decoder error, if any
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spv: malformed %s at offset %d: %v", e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("spv: truncated %s at offset %d: need %d bytes, have %d",
		e.Field, e.Offset, e.Need, e.Have)
}

// Is reports ErrFormat as a match so callers can use errors.Is.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.Err }

// ProofError reports an inconsistent partial merkle tree along with how far
// traversal got through the hash and flag streams.
type ProofError struct {
	Reason     string
	HashesUsed int
	HashCount  int
	BitsUsed   int
	BitCount   int
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("spv: invalid partial merkle proof: %s (hashes %d/%d, flag bits %d/%d)",
		e.Reason, e.HashesUsed, e.HashCount, e.BitsUsed, e.BitCount)
}

// Is reports ErrProof as a match so callers can use errors.Is.
func (e *ProofError) Is(target error) bool { return target == ErrProof }

// MissingFieldError names the header field that was absent. Field uses the
// Bitcoin Core RPC spelling ("previousblockhash", "merkleroot", ...).
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("spv: block header missing field %q", e.Field)
}

// Is reports ErrMissingField as a match so callers can use errors.Is.
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// ChainTipError reports a request for a height the block source does not have yet.
type ChainTipError struct {
	Height uint32
	Err    error
}

func (e *ChainTipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spv: height %d is beyond the chain tip: %v", e.Height, e.Err)
	}
	return fmt.Sprintf("spv: height %d is beyond the chain tip", e.Height)
}

// Is reports ErrChainTip as a match so callers can use errors.Is.
func (e *ChainTipError) Is(target error) bool { return target == ErrChainTip }

func (e *ChainTipError) Unwrap() error { return e.Err }
