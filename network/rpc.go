package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RPCClient is a JSON-RPC 1.0 client for a Bitcoin node.
// All blockchain methods are built on top of the Call method.
type RPCClient struct {
	url    string
	client *resty.Client
	nextID atomic.Int64
	logger zerolog.Logger
}

// rpcRequest represents a JSON-RPC 1.0 request payload.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse represents a JSON-RPC 1.0 response payload.
type rpcResponse struct {
	ID     int64             `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  *btcjson.RPCError `json:"error"`
}

// NewRPCClient creates a JSON-RPC client. Basic auth is sent when User is
// set, unless the endpoint is a proxy that authenticates on its own.
func NewRPCClient(cfg RPCConfig) *RPCClient {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.User != "" && !cfg.Proxy {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}
	return &RPCClient{
		url:    cfg.URL,
		client: client,
		logger: log.With().Str("module", "network_rpc").Logger(),
	}
}

// Call invokes a JSON-RPC method and decodes the result into result.
//
// If params is nil, an empty params array is sent. If result is nil, the
// response result is discarded.
//
// Call returns ErrConnectionFailed if the HTTP request fails, ErrAuthFailed
// when the node rejects the credentials, and ErrInvalidResponse if the
// response cannot be decoded. RPC-level errors (e.g., -8 "Block height out of
// range") are returned wrapping a *btcjson.RPCError.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailed, resp.StatusCode())
	}

	// Bitcoin Core reports RPC errors with a non-2xx status and a JSON body.
	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		if resp.IsError() {
			return fmt.Errorf("%w: HTTP %d: %s", ErrConnectionFailed, resp.StatusCode(), truncate(resp.Body(), 1024))
		}
		return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
	}

	if rpcResp.Error != nil {
		c.logger.Debug().Str("method", method).Int("code", int(rpcResp.Error.Code)).Msg(rpcResp.Error.Message)
		return fmt.Errorf("network: %s: %w", method, rpcResp.Error)
	}

	if rpcResp.ID != reqBody.ID {
		return fmt.Errorf("%w: response ID mismatch: expected %d, got %d",
			ErrInvalidResponse, reqBody.ID, rpcResp.ID)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal result: %w", ErrInvalidResponse, err)
		}
	}
	return nil
}

// rpcErrorCode returns the RPC error code carried by err, if any.
func rpcErrorCode(err error) (btcjson.RPCErrorCode, bool) {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
