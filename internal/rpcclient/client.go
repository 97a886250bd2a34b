// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// near-indexer-for-explorer-sub000 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with near-indexer-for-explorer-sub000. If not, see <http://www.gnu.org/licenses/>.

// Package rpcclient is a thin JSON-RPC 2.0 client for the handful of
// view-call methods the circulating-supply engine (C12) needs to read
// lockup contract state directly, rather than through the indexed state
// change stream. It is one CallContext primitive with thin typed
// wrappers for NEAR's query/block methods on top.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Client is a JSON-RPC 2.0 client over HTTP, rate-limited to stay under
// the endpoint's request budget.
type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	nextID  int
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// timeouts or transport-level retries).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outbound requests to r per second with the given
// burst allowance.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// New builds a Client against the given JSON-RPC endpoint URL.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		http:    http.DefaultClient,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpcclient: server error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// CallContext invokes method with params, decoding the result into result.
// result must be a pointer, or nil to discard the response body.
func (c *Client) CallContext(ctx context.Context, result interface{}, method string, params interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rpcclient: rate limiter: %w", err)
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpcclient: marshal params: %w", err)
	}

	c.nextID++
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("rpcclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: read body: %w", method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("rpcclient: %s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("rpcclient: %s: decode result: %w", method, err)
	}
	return nil
}

// ViewAccountResult is the subset of the query.ViewAccount response the
// circulating-supply engine reads.
type ViewAccountResult struct {
	Amount      string `json:"amount"`
	Locked      string `json:"locked"`
	CodeHash    string `json:"code_hash"`
	StorageUsage uint64 `json:"storage_usage"`
	BlockHeight  uint64 `json:"block_height"`
	BlockHash    string `json:"block_hash"`
}

// ViewAccount calls query with request_type=view_account, at the given
// finality ("final" is what the engine always uses).
func (c *Client) ViewAccount(ctx context.Context, accountID, finality string) (*ViewAccountResult, error) {
	params := map[string]interface{}{
		"request_type": "view_account",
		"finality":     finality,
		"account_id":   accountID,
	}
	var result ViewAccountResult
	if err := c.CallContext(ctx, &result, "query", params); err != nil {
		return nil, err
	}
	return &result, nil
}

// ViewStateResult is the subset of query.ViewState the lockup decoder
// needs: raw (key, value) pairs from the contract's storage trie.
type ViewStateResult struct {
	Values []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"values"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// ViewState calls query with request_type=view_state, restricted to keys
// under prefixBase64 (base64-encoded, per the upstream RPC contract).
func (c *Client) ViewState(ctx context.Context, accountID, prefixBase64, finality string) (*ViewStateResult, error) {
	params := map[string]interface{}{
		"request_type": "view_state",
		"finality":     finality,
		"account_id":   accountID,
		"prefix_base64": prefixBase64,
	}
	var result ViewStateResult
	if err := c.CallContext(ctx, &result, "query", params); err != nil {
		return nil, err
	}
	return &result, nil
}

// ViewAccountAtHeight is ViewAccount pinned to a specific historical
// block height rather than the latest finalized block -- the
// circulating-supply engine always reads state as of the target day's
// boundary block, never "now".
func (c *Client) ViewAccountAtHeight(ctx context.Context, accountID string, blockHeight uint64) (*ViewAccountResult, error) {
	params := map[string]interface{}{
		"request_type": "view_account",
		"block_id":     blockHeight,
		"account_id":   accountID,
	}
	var result ViewAccountResult
	if err := c.CallContext(ctx, &result, "query", params); err != nil {
		return nil, err
	}
	return &result, nil
}

// ViewStateAtHeight is ViewState pinned to a specific historical block
// height, used to read a lockup contract's full persisted state as of
// the target day's boundary block.
func (c *Client) ViewStateAtHeight(ctx context.Context, accountID string, blockHeight uint64, prefixBase64 string) (*ViewStateResult, error) {
	params := map[string]interface{}{
		"request_type":  "view_state",
		"block_id":      blockHeight,
		"account_id":    accountID,
		"prefix_base64": prefixBase64,
	}
	var result ViewStateResult
	if err := c.CallContext(ctx, &result, "query", params); err != nil {
		return nil, err
	}
	return &result, nil
}

// BlockResult is the subset of the block RPC method the supply engine
// needs.
type BlockResult struct {
	Header struct {
		Height      uint64 `json:"height"`
		Hash        string `json:"hash"`
		PrevHash    string `json:"prev_hash"`
		TimestampNS uint64 `json:"timestamp_nanosec,string"`
	} `json:"header"`
}

// BlockByFinality calls block with finality=finality ("final" or
// "optimistic").
func (c *Client) BlockByFinality(ctx context.Context, finality string) (*BlockResult, error) {
	params := map[string]interface{}{"finality": finality}
	var result BlockResult
	if err := c.CallContext(ctx, &result, "block", params); err != nil {
		return nil, err
	}
	return &result, nil
}
