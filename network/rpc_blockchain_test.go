package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/utu-go/internal/chaintest"
	"github.com/bitfsorg/utu-go/relay"
	"github.com/bitfsorg/utu-go/spv"
)

type rpcHandler func(params []interface{}) (interface{}, *btcjson.RPCError)

// rpcTestServer creates a mock JSON-RPC server for testing RPCClient methods.
// handlers maps RPC method names to handler functions that receive the request params
// and return either a result or an RPC error.
func rpcTestServer(t *testing.T, handlers map[string]rpcHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected RPC method: %s", req.Method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, rpcErr := handler(req.Params)
		resp := rpcResponse{ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			resp.Result, _ = json.Marshal(result)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// nodeServer serves a chaintest chain the way bitcoind does.
func nodeServer(t *testing.T, chain *chaintest.Chain) *httptest.Server {
	t.Helper()
	return httptest.NewServer(chaintest.NodeHandler(chain))
}

func TestGetBlockHashAndHeader(t *testing.T) {
	chain := chaintest.NewChain(3, nil)
	server := nodeServer(t, chain)
	defer server.Close()
	client := NewRPCClient(RPCConfig{URL: server.URL})
	ctx := context.Background()

	for h := uint32(0); h < 3; h++ {
		hash, err := client.GetBlockHash(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, chain.At(h).Header.Hash, hash)

		header, err := client.GetBlockHeader(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, chain.At(h).Header, header)
	}
}

func TestGetBlockHash_BeyondTip(t *testing.T) {
	server := nodeServer(t, chaintest.NewChain(3, nil))
	defer server.Close()
	client := NewRPCClient(RPCConfig{URL: server.URL})

	_, err := client.GetBlockHash(context.Background(), 3)
	assert.ErrorIs(t, err, spv.ErrChainTip)
	var tip *spv.ChainTipError
	require.ErrorAs(t, err, &tip)
	assert.Equal(t, uint32(3), tip.Height)
}

func TestGetBlockHeader_MissingFields(t *testing.T) {
	chain := chaintest.NewChain(2, nil)
	tests := []struct {
		drop  string
		field string
	}{
		{"bits", "bits"},
		{"nonce", "nonce"},
		{"merkleroot", "merkleroot"},
		{"previousblockhash", "previousblockhash"},
	}
	for _, tt := range tests {
		t.Run(tt.drop, func(t *testing.T) {
			server := rpcTestServer(t, map[string]rpcHandler{
				"getblockheader": func([]interface{}) (interface{}, *btcjson.RPCError) {
					m := chaintest.HeaderJSON(chain.At(1).Header)
					delete(m, tt.drop)
					return m, nil
				},
			})
			defer server.Close()

			h, err := NewRPCClient(RPCConfig{URL: server.URL}).GetBlockHeader(context.Background(), chain.At(1).Header.Hash)
			require.NoError(t, err)
			var mf *spv.MissingFieldError
			require.ErrorAs(t, h.Missing(), &mf)
			assert.Equal(t, tt.field, mf.Field)
		})
	}
}

func TestGetBlockHeader_Invalid(t *testing.T) {
	chain := chaintest.NewChain(2, nil)
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"hash mismatch", func(m map[string]interface{}) { m["nonce"] = 7 }},
		{"bad bits", func(m map[string]interface{}) { m["bits"] = "zz" }},
		{"bad hash", func(m map[string]interface{}) { m["hash"] = "00ff" }},
		{"negative time", func(m map[string]interface{}) { m["time"] = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rpcTestServer(t, map[string]rpcHandler{
				"getblockheader": func([]interface{}) (interface{}, *btcjson.RPCError) {
					m := chaintest.HeaderJSON(chain.At(1).Header)
					tt.mutate(m)
					return m, nil
				},
			})
			defer server.Close()

			_, err := NewRPCClient(RPCConfig{URL: server.URL}).GetBlockHeader(context.Background(), chain.At(1).Header.Hash)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestGetBlock(t *testing.T) {
	chain := chaintest.NewChain(3, func(int) int { return 4 })
	server := nodeServer(t, chain)
	defer server.Close()
	client := NewRPCClient(RPCConfig{URL: server.URL})

	b, err := client.GetBlock(context.Background(), chain.At(2).Header.Hash)
	require.NoError(t, err)
	assert.Equal(t, chain.At(2).Header, b.Header)
	assert.Equal(t, chain.At(2).TxIDs, b.TxIDs)

	_, err = client.GetBlock(context.Background(), chainhash.Hash{1})
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestGetRawTransaction(t *testing.T) {
	chain := chaintest.NewChain(2, func(int) int { return 2 })
	server := nodeServer(t, chain)
	defer server.Close()
	client := NewRPCClient(RPCConfig{URL: server.URL})

	b := chain.At(1)
	raw, err := client.GetRawTransaction(context.Background(), b.TxIDs[1])
	require.NoError(t, err)
	assert.Equal(t, chaintest.Raw(b.Txs[1]), raw.Raw)
	require.NotNil(t, raw.BlockHash)
	assert.Equal(t, b.Header.Hash, *raw.BlockHash)

	_, err = client.GetRawTransaction(context.Background(), chainhash.Hash{9})
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestGetRawTransaction_Mempool(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"getrawtransaction": func([]interface{}) (interface{}, *btcjson.RPCError) {
			return map[string]interface{}{"hex": "0100", "txid": "00"}, nil
		},
	})
	defer server.Close()

	raw, err := NewRPCClient(RPCConfig{URL: server.URL}).GetRawTransaction(context.Background(), chainhash.Hash{})
	require.NoError(t, err)
	assert.Nil(t, raw.BlockHash)
	assert.Equal(t, []byte{0x01, 0x00}, raw.Raw)
}

func TestGetTxOutProof(t *testing.T) {
	chain := chaintest.NewChain(2, func(int) int { return 6 })
	server := nodeServer(t, chain)
	defer server.Close()
	client := NewRPCClient(RPCConfig{URL: server.URL})

	b := chain.At(1)
	blob, err := client.GetTxOutProof(context.Background(), []chainhash.Hash{b.TxIDs[4]}, &b.Header.Hash)
	require.NoError(t, err)

	proof, err := spv.ReconstructInclusionProof(b.TxIDs[4], blob, 6)
	require.NoError(t, err)
	assert.Equal(t, b.Header.Hash, proof.BlockHash)
	assert.NoError(t, spv.VerifyInclusion(proof, b.Header.MerkleRoot))
}

func TestGetTxOutProof_InvalidHex(t *testing.T) {
	server := rpcTestServer(t, map[string]rpcHandler{
		"gettxoutproof": func(params []interface{}) (interface{}, *btcjson.RPCError) {
			require.Len(t, params, 1)
			return "xyz", nil
		},
	})
	defer server.Close()

	_, err := NewRPCClient(RPCConfig{URL: server.URL}).GetTxOutProof(context.Background(), []chainhash.Hash{{}}, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGetBlockCount(t *testing.T) {
	server := nodeServer(t, chaintest.NewChain(5, nil))
	defer server.Close()

	n, err := NewRPCClient(RPCConfig{URL: server.URL}).GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)
}

func TestRPCClient_HeightProof(t *testing.T) {
	chain := chaintest.NewChain(4, func(h int) int { return 3 + h })
	server := nodeServer(t, chain)
	defer server.Close()

	p := relay.NewProver(NewRPCClient(RPCConfig{URL: server.URL}))
	proof, err := p.HeightProof(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, chaintest.Legacy(chain.At(3).Txs[0]), proof.CoinbaseTx)
	assert.Equal(t, spv.MerkleBranch(chain.At(3).TxIDs, 0), proof.MerkleBranch)
}
