package tx

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrMalformedTx indicates the bytes do not parse as a legacy transaction.
	ErrMalformedTx = errors.New("tx: malformed transaction")

	// ErrTxIDMismatch indicates the transaction bytes do not hash to the expected txid.
	ErrTxIDMismatch = errors.New("tx: txid mismatch")
)
