package tx

import (
	"bytes"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// LegacyTxID parses a legacy-serialized transaction and returns its txid.
// The bytes must be exactly one transaction.
func LegacyTxID(legacy []byte) (chainhash.Hash, error) {
	if len(legacy) == 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: empty transaction", ErrNilParam)
	}
	t, err := transaction.NewTransactionFromBytes(legacy)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %w", ErrMalformedTx, err)
	}
	if !bytes.Equal(t.Bytes(), legacy) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d bytes do not re-serialize", ErrMalformedTx, len(legacy))
	}
	return chainhash.Hash(*t.TxID()), nil
}

// VerifyLegacy checks that legacy bytes hash to txid.
func VerifyLegacy(legacy []byte, txid chainhash.Hash) error {
	got, err := LegacyTxID(legacy)
	if err != nil {
		return err
	}
	if got != txid {
		return fmt.Errorf("%w: bytes hash to %s, want %s", ErrTxIDMismatch, got, txid)
	}
	return nil
}

// Canonicalize strips raw and checks that the result hashes to txid.
func Canonicalize(raw []byte, txid chainhash.Hash) ([]byte, error) {
	legacy, err := Strip(raw)
	if err != nil {
		return nil, err
	}
	if err := VerifyLegacy(legacy, txid); err != nil {
		return nil, err
	}
	return legacy, nil
}
