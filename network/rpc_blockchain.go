package network

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
)

// Compile-time interface check.
var _ Service = (*RPCClient)(nil)

// rpcHeader maps the header fields of getblockheader and getblock (verbose).
// Pointers distinguish absent fields from zero values.
type rpcHeader struct {
	Hash         string  `json:"hash"`
	Height       *int64  `json:"height"`
	Version      *int32  `json:"version"`
	PreviousHash *string `json:"previousblockhash"`
	MerkleRoot   *string `json:"merkleroot"`
	Time         *int64  `json:"time"`
	Bits         *string `json:"bits"`
	Nonce        *uint64 `json:"nonce"`
}

// toHeader validates the RPC fields and converts them to a BlockHeader.
// Absent fields are left unset in Fields; the genesis block, which has no
// previousblockhash, gets the all-zero hash.
func (r *rpcHeader) toHeader() (*spv.BlockHeader, error) {
	hash, err := parseHash("hash", r.Hash)
	if err != nil {
		return nil, err
	}
	h := &spv.BlockHeader{Hash: hash}
	if r.Height != nil {
		if *r.Height < 0 || *r.Height > int64(^uint32(0)) {
			return nil, fmt.Errorf("%w: height %d", ErrInvalidResponse, *r.Height)
		}
		h.Height = uint32(*r.Height)
	}
	if r.Version != nil {
		h.Version = *r.Version
		h.Fields |= spv.FieldVersion
	}
	switch {
	case r.PreviousHash != nil:
		if h.PrevBlock, err = parseHash("previousblockhash", *r.PreviousHash); err != nil {
			return nil, err
		}
		h.Fields |= spv.FieldPrevBlock
	case r.Height != nil && *r.Height == 0:
		h.Fields |= spv.FieldPrevBlock
	}
	if r.MerkleRoot != nil {
		if h.MerkleRoot, err = parseHash("merkleroot", *r.MerkleRoot); err != nil {
			return nil, err
		}
		h.Fields |= spv.FieldMerkleRoot
	}
	if r.Time != nil {
		if *r.Time < 0 || *r.Time > int64(^uint32(0)) {
			return nil, fmt.Errorf("%w: time %d", ErrInvalidResponse, *r.Time)
		}
		h.Time = uint32(*r.Time)
		h.Fields |= spv.FieldTime
	}
	if r.Bits != nil {
		bits, err := strconv.ParseUint(*r.Bits, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bits %q: %v", ErrInvalidResponse, *r.Bits, err)
		}
		h.Bits = uint32(bits)
		h.Fields |= spv.FieldBits
	}
	if r.Nonce != nil {
		if *r.Nonce > uint64(^uint32(0)) {
			return nil, fmt.Errorf("%w: nonce %d", ErrInvalidResponse, *r.Nonce)
		}
		h.Nonce = uint32(*r.Nonce)
		h.Fields |= spv.FieldNonce
	}

	if h.Fields == spv.AllHeaderFields {
		if got := spv.ComputeHeaderHash(h); got != hash {
			return nil, fmt.Errorf("%w: header fields hash to %s, node says %s", ErrInvalidResponse, got, hash)
		}
	}
	return h, nil
}

func parseHash(field, s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil || len(s) != 2*chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("%w: %s %q", ErrInvalidResponse, field, s)
	}
	return *h, nil
}

func decodeHex(field, s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s hex: %v", ErrInvalidResponse, field, err)
	}
	return data, nil
}

// GetBlockHash returns the hash of the block at height on the node's best
// chain. It calls `getblockhash height`; a height past the tip is reported
// as *spv.ChainTipError.
func (c *RPCClient) GetBlockHash(ctx context.Context, height uint32) (chainhash.Hash, error) {
	var s string
	if err := c.Call(ctx, "getblockhash", []interface{}{height}, &s); err != nil {
		if code, ok := rpcErrorCode(err); ok && code == btcjson.ErrRPCInvalidParameter {
			return chainhash.Hash{}, &spv.ChainTipError{Height: height, Err: err}
		}
		return chainhash.Hash{}, err
	}
	return parseHash("block hash", s)
}

// GetBlockHeader calls `getblockheader "hash" true`.
func (c *RPCClient) GetBlockHeader(ctx context.Context, hash chainhash.Hash) (*spv.BlockHeader, error) {
	var r rpcHeader
	if err := c.Call(ctx, "getblockheader", []interface{}{hash.String(), true}, &r); err != nil {
		return nil, blockErr(hash, err)
	}
	return r.toHeader()
}

// getblockResult is `getblock "hash" 1`: the header fields plus txids.
type getblockResult struct {
	rpcHeader
	Tx []string `json:"tx"`
}

// GetBlock calls `getblock "hash" 1` and returns the header and txids in
// block order.
func (c *RPCClient) GetBlock(ctx context.Context, hash chainhash.Hash) (*relay.Block, error) {
	var r getblockResult
	if err := c.Call(ctx, "getblock", []interface{}{hash.String(), 1}, &r); err != nil {
		return nil, blockErr(hash, err)
	}
	header, err := r.toHeader()
	if err != nil {
		return nil, err
	}
	block := &relay.Block{Header: header, TxIDs: make([]chainhash.Hash, len(r.Tx))}
	for i, s := range r.Tx {
		if block.TxIDs[i], err = parseHash("txid", s); err != nil {
			return nil, err
		}
	}
	return block, nil
}

// GetRawTransaction calls `getrawtransaction "txid" true` and returns the
// node's serialization of the transaction together with its block hash
// when confirmed.
func (c *RPCClient) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*relay.RawTransaction, error) {
	var r btcjson.TxRawResult
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid.String(), true}, &r); err != nil {
		if code, ok := rpcErrorCode(err); ok && code == btcjson.ErrRPCInvalidAddressOrKey {
			return nil, fmt.Errorf("%w: %s: %w", ErrTxNotFound, txid, err)
		}
		return nil, err
	}
	raw, err := decodeHex("transaction", r.Hex)
	if err != nil {
		return nil, err
	}
	out := &relay.RawTransaction{TxID: txid, Raw: raw}
	if r.BlockHash != "" {
		bh, err := parseHash("blockhash", r.BlockHash)
		if err != nil {
			return nil, err
		}
		out.BlockHash = &bh
	}
	return out, nil
}

// GetTxOutProof calls `gettxoutproof ["txid",...] ("blockhash")` and
// returns the serialized merkle block.
func (c *RPCClient) GetTxOutProof(ctx context.Context, txids []chainhash.Hash, blockHash *chainhash.Hash) ([]byte, error) {
	ids := make([]string, len(txids))
	for i, id := range txids {
		ids[i] = id.String()
	}
	params := []interface{}{ids}
	if blockHash != nil {
		params = append(params, blockHash.String())
	}
	var proofHex string
	if err := c.Call(ctx, "gettxoutproof", params, &proofHex); err != nil {
		return nil, err
	}
	return decodeHex("proof", proofHex)
}

// GetBlockCount returns the height of the current chain tip.
func (c *RPCClient) GetBlockCount(ctx context.Context) (uint32, error) {
	var height int64
	if err := c.Call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	if height < 0 || height > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: block count %d", ErrInvalidResponse, height)
	}
	return uint32(height), nil
}

func blockErr(hash chainhash.Hash, err error) error {
	if code, ok := rpcErrorCode(err); ok && code == btcjson.ErrRPCBlockNotFound {
		return fmt.Errorf("%w: %s: %w", ErrBlockNotFound, hash, err)
	}
	return err
}
