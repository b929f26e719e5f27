package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrOracle indicates the chain-state oracle could not answer a query.
	ErrOracle = errors.New("relay: chain state oracle failed")

	// ErrEmptyBlock indicates a block without transactions; it has no coinbase to prove height with.
	ErrEmptyBlock = errors.New("relay: block has no transactions")

	// ErrCoinbaseMismatch indicates the canonicalized coinbase does not hash to the block's first txid.
	ErrCoinbaseMismatch = errors.New("relay: coinbase does not match block")

	// ErrUnconfirmed indicates a transaction that is not in a block.
	ErrUnconfirmed = errors.New("relay: transaction is unconfirmed")

	// ErrUnknownSelector indicates an entry point that is neither a hex value nor a name.
	ErrUnknownSelector = errors.New("relay: invalid entry point selector")

	// ErrNoHeaders indicates a RegisterBlocks operation without headers.
	ErrNoHeaders = errors.New("relay: no headers to register")
)

// OracleError wraps a failed oracle query with the operation and argument.
type OracleError struct {
	Op  string // "get_status" or "get_block"
	Arg string
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("relay: %s(%s): %v", e.Op, e.Arg, e.Err)
}

// Is reports ErrOracle as a match so callers can use errors.Is.
func (e *OracleError) Is(target error) bool { return target == ErrOracle }

func (e *OracleError) Unwrap() error { return e.Err }
