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

package db

import (
	"context"
	"fmt"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// AccessKeyID is the composite (public_key, account_id) identity an access
// key row is keyed by.
type AccessKeyID struct {
	PublicKey string
	AccountID string
}

// accessKeyCandidate is one batch of proposed updates for a single access
// key, built up from this block's AddKey/DeleteKey actions before being
// partitioned and applied.
type accessKeyCandidate struct {
	id               AccessKeyID
	permissionKind   models.AccessKeyPermissionKind
	createdByReceipt *string
	deletedByReceipt *string
}

// AccessKeyWriter maintains the access_keys table's creation/deletion
// lifecycle (C8, access-key half). Same monotonicity invariant as
// AccountWriter.
type AccessKeyWriter struct {
	q Querier
}

// NewAccessKeyWriter builds an AccessKeyWriter over q.
func NewAccessKeyWriter(q Querier) *AccessKeyWriter {
	return &AccessKeyWriter{q: q}
}

// Store applies this block's access-key lifecycle candidates. adds maps an
// access key id to (permission kind, causing receipt id); deletes maps an
// access key id to the causing receipt id of its deletion. A key present
// in both adds and deletes within the same block (added then deleted, or
// vice versa, across different receipts) gets both fields set in one row.
func (w *AccessKeyWriter) Store(ctx context.Context, blockHeight string, adds map[AccessKeyID]AccessKeyAdd, deletes map[AccessKeyID]string) error {
	merged := make(map[AccessKeyID]accessKeyCandidate)
	for id, add := range adds {
		merged[id] = accessKeyCandidate{id: id, permissionKind: add.PermissionKind, createdByReceipt: strPtr(add.ReceiptID)}
	}
	for id, receiptID := range deletes {
		receiptID := receiptID
		if c, ok := merged[id]; ok {
			c.deletedByReceipt = strPtr(receiptID)
			merged[id] = c
			continue
		}
		merged[id] = accessKeyCandidate{id: id, deletedByReceipt: strPtr(receiptID)}
	}

	// Updates first (existing rows), then inserts (new rows); finally a
	// guarded re-apply pass for rows that needed both an insert and an
	// update this block (e.g. a key added then deleted in the same
	// block, arriving with only a bare insert the first time through).
	var toInsert []accessKeyCandidate
	for _, c := range merged {
		updated, err := w.tryUpdate(ctx, c, blockHeight)
		if err != nil {
			return err
		}
		if !updated {
			toInsert = append(toInsert, c)
		}
	}
	for _, c := range toInsert {
		if err := w.insert(ctx, c, blockHeight); err != nil {
			return err
		}
	}
	for _, c := range toInsert {
		if c.createdByReceipt != nil && c.deletedByReceipt != nil {
			if err := w.reapplyBoth(ctx, c, blockHeight); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *AccessKeyWriter) tryUpdate(ctx context.Context, c accessKeyCandidate, blockHeight string) (bool, error) {
	var updated bool
	err := retry.Do(ctx, "db.UpdateAccessKey", 0, nil, func(ctx context.Context) error {
		tag, err := w.q.Exec(ctx, `
UPDATE access_keys
SET created_by_receipt_id = COALESCE($3, created_by_receipt_id),
    deleted_by_receipt_id = COALESCE($4, deleted_by_receipt_id),
    permission_kind = CASE WHEN $3 IS NOT NULL THEN $5 ELSE permission_kind END,
    last_update_block_height = $6::numeric
WHERE public_key = $1 AND account_id = $2 AND last_update_block_height < $6::numeric
`, c.id.PublicKey, c.id.AccountID, c.createdByReceipt, c.deletedByReceipt, string(c.permissionKind), blockHeight)
		if err != nil {
			return fmt.Errorf("db: update access key %s/%s: %w", c.id.AccountID, c.id.PublicKey, err)
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	return updated, err
}

func (w *AccessKeyWriter) insert(ctx context.Context, c accessKeyCandidate, blockHeight string) error {
	return retry.Do(ctx, "db.InsertAccessKey", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO access_keys (public_key, account_id, created_by_receipt_id, deleted_by_receipt_id, permission_kind, last_update_block_height)
VALUES ($1, $2, $3, $4, $5, $6::numeric)
ON CONFLICT (public_key, account_id) DO NOTHING
`, c.id.PublicKey, c.id.AccountID, c.createdByReceipt, c.deletedByReceipt, string(c.permissionKind), blockHeight)
		if err != nil {
			return fmt.Errorf("db: insert access key %s/%s: %w", c.id.AccountID, c.id.PublicKey, err)
		}
		return nil
	})
}

func (w *AccessKeyWriter) reapplyBoth(ctx context.Context, c accessKeyCandidate, blockHeight string) error {
	return retry.Do(ctx, "db.ReapplyAccessKeyCreateDelete", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
UPDATE access_keys
SET created_by_receipt_id = $3, deleted_by_receipt_id = $4, last_update_block_height = $5::numeric
WHERE public_key = $1 AND account_id = $2 AND last_update_block_height < $5::numeric
`, c.id.PublicKey, c.id.AccountID, c.createdByReceipt, c.deletedByReceipt, blockHeight)
		if err != nil {
			return fmt.Errorf("db: reapply access key create+delete %s/%s: %w", c.id.AccountID, c.id.PublicKey, err)
		}
		return nil
	})
}

// AccessKeyAdd is a proposed AddKey effect: the permission it grants and
// the receipt that caused it.
type AccessKeyAdd struct {
	PermissionKind models.AccessKeyPermissionKind
	ReceiptID      string
}

func strPtr(s string) *string { return &s }
