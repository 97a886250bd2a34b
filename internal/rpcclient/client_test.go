// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestCallContext_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query", req.Method)

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"amount":"1000","locked":"0","code_hash":"abc","storage_usage":182,"block_height":1,"block_hash":"h"}`)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(rate.Inf, 1))
	out, err := c.ViewAccount(context.Background(), "alice.near", "final")
	require.NoError(t, err)
	assert.Equal(t, "1000", out.Amount)
	assert.Equal(t, "abc", out.CodeHash)
}

func TestCallContext_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "account not found"}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(rate.Inf, 1))
	_, err := c.ViewAccount(context.Background(), "ghost.near", "final")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account not found")
}

func TestViewStateAtHeight_SendsBlockIDNotFinality(t *testing.T) {
	var gotParams map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NoError(t, json.Unmarshal(req.Params, &gotParams))
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"values":[],"block_height":42,"block_hash":"h"}`)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(rate.Inf, 1))
	_, err := c.ViewStateAtHeight(context.Background(), "lockup.near", 42, "")
	require.NoError(t, err)
	assert.Equal(t, float64(42), gotParams["block_id"])
	assert.NotContains(t, gotParams, "finality")
}

func TestCallContext_AssignsIncrementingIDs(t *testing.T) {
	var seenIDs []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seenIDs = append(seenIDs, req.ID)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(rate.Inf, 1))
	_, err := c.BlockByFinality(context.Background(), "final")
	require.NoError(t, err)
	_, err = c.BlockByFinality(context.Background(), "final")
	require.NoError(t, err)

	require.Len(t, seenIDs, 2)
	assert.NotEqual(t, seenIDs[0], seenIDs[1])
}
