package chaintest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/bitfsorg/utu-go/spv"
)

type nodeRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type nodeResponse struct {
	Result interface{}       `json:"result"`
	Error  *btcjson.RPCError `json:"error"`
	ID     interface{}       `json:"id"`
}

// HeaderJSON renders h the way getblockheader does with verbose=true.
func HeaderJSON(h *spv.BlockHeader) map[string]interface{} {
	m := map[string]interface{}{
		"hash":       h.Hash.String(),
		"height":     h.Height,
		"version":    h.Version,
		"merkleroot": h.MerkleRoot.String(),
		"time":       h.Time,
		"bits":       fmt.Sprintf("%08x", h.Bits),
		"nonce":      h.Nonce,
	}
	if h.Height > 0 {
		m["previousblockhash"] = h.PrevBlock.String()
	}
	return m
}

func invalidParams(method string) *btcjson.RPCError {
	return &btcjson.RPCError{Code: btcjson.ErrRPCInvalidParameter, Message: "invalid parameters for " + method}
}

// NodeHandler serves the chain over bitcoind's JSON-RPC: getblockcount,
// getblockhash, getblockheader (verbose), getblock (verbosity 1),
// getrawtransaction (verbose) and gettxoutproof.
func NodeHandler(c *Chain) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req nodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := c.serve(req.Method, req.Params)
		if rpcErr != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(nodeResponse{Result: result, Error: rpcErr, ID: req.ID})
	})
}

func (c *Chain) byHash(params []interface{}) (*Block, *btcjson.RPCError) {
	s, _ := params[0].(string)
	for _, b := range c.Blocks {
		if b.Header.Hash.String() == s {
			return b, nil
		}
	}
	return nil, &btcjson.RPCError{Code: btcjson.ErrRPCBlockNotFound, Message: "Block not found"}
}

func (c *Chain) serve(method string, params []interface{}) (interface{}, *btcjson.RPCError) {
	switch method {
	case "getblockcount":
		return len(c.Blocks) - 1, nil

	case "getblockhash":
		if len(params) != 1 {
			return nil, invalidParams(method)
		}
		h, ok := params[0].(float64)
		if !ok {
			return nil, invalidParams(method)
		}
		if int(h) >= len(c.Blocks) {
			return nil, &btcjson.RPCError{Code: btcjson.ErrRPCInvalidParameter, Message: "Block height out of range"}
		}
		return c.Blocks[int(h)].Header.Hash.String(), nil

	case "getblockheader":
		if len(params) != 2 || params[1] != true {
			return nil, invalidParams(method)
		}
		b, rpcErr := c.byHash(params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return HeaderJSON(b.Header), nil

	case "getblock":
		if len(params) != 2 || params[1] != float64(1) {
			return nil, invalidParams(method)
		}
		b, rpcErr := c.byHash(params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		m := HeaderJSON(b.Header)
		txs := make([]string, len(b.TxIDs))
		for i, id := range b.TxIDs {
			txs[i] = id.String()
		}
		m["tx"] = txs
		return m, nil

	case "getrawtransaction":
		if len(params) != 2 || params[1] != true {
			return nil, invalidParams(method)
		}
		for _, b := range c.Blocks {
			for i, id := range b.TxIDs {
				if id.String() == params[0] {
					return btcjson.TxRawResult{
						Hex:       hex.EncodeToString(Raw(b.Txs[i])),
						Txid:      id.String(),
						BlockHash: b.Header.Hash.String(),
					}, nil
				}
			}
		}
		return nil, &btcjson.RPCError{Code: btcjson.ErrRPCInvalidAddressOrKey, Message: "No such mempool or blockchain transaction"}

	case "gettxoutproof":
		if len(params) != 2 {
			return nil, invalidParams(method)
		}
		ids, ok := params[0].([]interface{})
		if !ok {
			return nil, invalidParams(method)
		}
		b, rpcErr := c.byHash(params[1:])
		if rpcErr != nil {
			return nil, rpcErr
		}
		want := make(map[string]bool)
		for _, id := range ids {
			s, _ := id.(string)
			want[s] = true
		}
		proof := BuildPartialProof(b.Header, b.TxIDs, func(i int) bool { return want[b.TxIDs[i].String()] })
		return hex.EncodeToString(proof), nil
	}
	return nil, &btcjson.RPCError{Code: btcjson.ErrRPCMethodNotFound.Code, Message: "Method not found"}
}
