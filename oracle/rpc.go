// Package oracle answers relay contract state queries, either from a
// deployed contract over JSON-RPC or from a local bbolt replica.
package oracle

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bitfsorg/utu-go/felt"
	"github.com/bitfsorg/utu-go/relay"
)

// BlockLatest is the default block id queries are evaluated against.
const BlockLatest = "latest"

// FunctionCall is the request object of starknet_call.
type FunctionCall struct {
	ContractAddress    felt.Felt   `json:"contract_address"`
	EntryPointSelector felt.Felt   `json:"entry_point_selector"`
	Calldata           []felt.Felt `json:"calldata"`
}

// RPCOracle reads relay state from a deployed contract with starknet_call.
type RPCOracle struct {
	client  *rpc.Client
	dep     relay.Deployment
	blockID interface{}
	logger  zerolog.Logger
}

var _ relay.ChainStateOracle = (*RPCOracle)(nil)

// RPCOption configures an RPCOracle.
type RPCOption func(*RPCOracle)

// WithBlockID evaluates calls against a specific block id instead of "latest".
func WithBlockID(id interface{}) RPCOption {
	return func(o *RPCOracle) { o.blockID = id }
}

// DialRPCOracle connects to a node's JSON-RPC endpoint.
func DialRPCOracle(ctx context.Context, url string, dep relay.Deployment, opts ...RPCOption) (*RPCOracle, error) {
	c, err := rpc.DialOptions(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", url, err)
	}
	return NewRPCOracle(c, dep, opts...), nil
}

// NewRPCOracle wraps an existing client.
func NewRPCOracle(client *rpc.Client, dep relay.Deployment, opts ...RPCOption) *RPCOracle {
	o := &RPCOracle{
		client:  client,
		dep:     dep,
		blockID: BlockLatest,
		logger:  log.With().Str("module", "oracle_rpc").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close releases the underlying client.
func (o *RPCOracle) Close() {
	o.client.Close()
}

// Call invokes a view entry point of the relay contract.
func (o *RPCOracle) Call(ctx context.Context, selector felt.Felt, calldata []felt.Felt) ([]felt.Felt, error) {
	req := FunctionCall{
		ContractAddress:    o.dep.ContractAddress,
		EntryPointSelector: selector,
		Calldata:           calldata,
	}
	if req.Calldata == nil {
		req.Calldata = []felt.Felt{}
	}
	var out []felt.Felt
	if err := o.client.CallContext(ctx, &out, "starknet_call", req, o.blockID); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStatus calls get_status with the hash words of hash.
func (o *RPCOracle) GetStatus(ctx context.Context, hash chainhash.Hash) (relay.Record, error) {
	out, err := o.Call(ctx, o.dep.GetStatus, felt.AppendHash(nil, hash))
	if err != nil {
		return nil, &relay.OracleError{Op: relay.EntryGetStatus, Arg: hash.String(), Err: err}
	}
	o.logger.Debug().Stringer("hash", hash).Int("words", len(out)).Msg("get_status")
	return out, nil
}

// GetBlock calls get_block with height.
func (o *RPCOracle) GetBlock(ctx context.Context, height uint32) (relay.Record, error) {
	out, err := o.Call(ctx, o.dep.GetBlock, []felt.Felt{felt.FromUint64(uint64(height))})
	if err != nil {
		return nil, &relay.OracleError{Op: relay.EntryGetBlock, Arg: fmt.Sprint(height), Err: err}
	}
	o.logger.Debug().Uint32("height", height).Int("words", len(out)).Msg("get_block")
	return out, nil
}
