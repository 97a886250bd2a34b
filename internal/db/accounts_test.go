// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingQuerier records every Exec call's arguments and reports success.
type recordingQuerier struct {
	execs [][]interface{}
}

func (r *recordingQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error) {
	r.execs = append(r.execs, args)
	return pgx.CommandTag{}, nil
}

func (r *recordingQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (r *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func TestAccountWriter_Store_MergesSameBlockCreateAndDelete(t *testing.T) {
	q := &recordingQuerier{}
	w := NewAccountWriter(q)

	err := w.Store(context.Background(), "100",
		map[string]string{"alice.near": "create-receipt"},
		map[string]string{"alice.near": "delete-receipt"},
		nil,
	)
	require.NoError(t, err)

	require.Len(t, q.execs, 1, "a same-block create+delete on one account must land in a single upsert")
	args := q.execs[0]
	createdByReceipt := args[1].(*string)
	deletedByReceipt := args[3].(*string)
	assert.Equal(t, "create-receipt", *createdByReceipt)
	assert.Equal(t, "delete-receipt", *deletedByReceipt)
}

func TestAccountWriter_Store_CreateOnlyLeavesDeleteColumnsNil(t *testing.T) {
	q := &recordingQuerier{}
	w := NewAccountWriter(q)

	err := w.Store(context.Background(), "100",
		map[string]string{"alice.near": "create-receipt"},
		nil,
		nil,
	)
	require.NoError(t, err)

	require.Len(t, q.execs, 1)
	args := q.execs[0]
	assert.NotNil(t, args[1])
	assert.Nil(t, args[3])
	assert.Nil(t, args[4])
}

func TestAccountWriter_Store_IndependentAccountsGetSeparateUpserts(t *testing.T) {
	q := &recordingQuerier{}
	w := NewAccountWriter(q)

	err := w.Store(context.Background(), "100",
		map[string]string{"alice.near": "create-receipt"},
		map[string]string{"bob.near": "delete-receipt"},
		nil,
	)
	require.NoError(t, err)
	assert.Len(t, q.execs, 2)
}
