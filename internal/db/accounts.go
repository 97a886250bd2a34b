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
	"regexp"

	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// implicitAccountPattern matches NEAR's 64-hex implicit account ids.
var implicitAccountPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// AccountWriter maintains the accounts table's creation/deletion lifecycle
// (C8, account half). All updates are monotonic on last_update_block_height.
type AccountWriter struct {
	q Querier
}

// NewAccountWriter builds an AccountWriter over q.
func NewAccountWriter(q Querier) *AccountWriter {
	return &AccountWriter{q: q}
}

// IsImplicitAccount reports whether accountID is a 64-hex implicit
// account id (as opposed to a named account).
func IsImplicitAccount(accountID string) bool {
	return implicitAccountPattern.MatchString(accountID)
}

// accountCandidate is one account id's merged create/delete effect for a
// single block. An id present in both created and deleted (created and
// deleted by different receipts within the same block) carries both
// fields, so the two effects land in one upsert instead of two
// sequential ones that would race the same monotonicity guard.
type accountCandidate struct {
	accountID        string
	createdByReceipt *string
	deletedByReceipt *string
}

// Store applies account lifecycle candidates derived from this block's
// action receipts. created and deleted map account id to the causing
// receipt id; implicitTransferTargets holds 64-hex receivers of a plain
// Transfer action, which look like creations but aren't guaranteed ones.
func (w *AccountWriter) Store(ctx context.Context, blockHeight string, created, deleted map[string]string, implicitTransferTargets map[string]string) error {
	merged := make(map[string]accountCandidate)
	for accountID, receiptID := range created {
		receiptID := receiptID
		merged[accountID] = accountCandidate{accountID: accountID, createdByReceipt: &receiptID}
	}
	for accountID, receiptID := range deleted {
		receiptID := receiptID
		if c, ok := merged[accountID]; ok {
			c.deletedByReceipt = &receiptID
			merged[accountID] = c
			continue
		}
		merged[accountID] = accountCandidate{accountID: accountID, deletedByReceipt: &receiptID}
	}

	for _, c := range merged {
		if err := w.upsertCandidate(ctx, c, blockHeight); err != nil {
			return err
		}
	}

	// Implicit-account rule: a 64-hex transfer target only gets a
	// creation effect applied if the account is currently recorded as
	// deleted (resurrection), never to a live row, since the chain
	// doesn't guarantee the account didn't already exist.
	for accountID, receiptID := range implicitTransferTargets {
		receiptID := receiptID
		if err := w.resurrectIfDeleted(ctx, accountID, blockHeight, receiptID); err != nil {
			return err
		}
	}
	return nil
}

func (w *AccountWriter) upsertCandidate(ctx context.Context, c accountCandidate, blockHeight string) error {
	var createdAtHeight, deletedAtHeight *string
	if c.createdByReceipt != nil {
		createdAtHeight = &blockHeight
	}
	if c.deletedByReceipt != nil {
		deletedAtHeight = &blockHeight
	}
	return retry.Do(ctx, "db.StoreAccount", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO accounts (
	account_id, created_by_receipt_id, created_at_block_height,
	deleted_by_receipt_id, deleted_at_block_height, last_update_block_height
)
VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric)
ON CONFLICT (account_id) DO UPDATE
SET created_by_receipt_id = COALESCE(excluded.created_by_receipt_id, accounts.created_by_receipt_id),
    created_at_block_height = COALESCE(excluded.created_at_block_height, accounts.created_at_block_height),
    deleted_by_receipt_id = COALESCE(excluded.deleted_by_receipt_id, accounts.deleted_by_receipt_id),
    deleted_at_block_height = COALESCE(excluded.deleted_at_block_height, accounts.deleted_at_block_height),
    last_update_block_height = excluded.last_update_block_height
WHERE accounts.last_update_block_height < excluded.last_update_block_height
`, c.accountID, c.createdByReceipt, createdAtHeight, c.deletedByReceipt, deletedAtHeight, blockHeight)
		if err != nil {
			return fmt.Errorf("db: upsert account %s: %w", c.accountID, err)
		}
		return nil
	})
}

// LiveLockupsAtHeight lists lockup account ids created at or before
// height and not yet deleted as of height, read from the
// aggregated__lockups view (C12's per-day lockup enumeration).
func (w *AccountWriter) LiveLockupsAtHeight(ctx context.Context, height string) ([]string, error) {
	rows, err := w.q.Query(ctx, `
SELECT account_id FROM aggregated__lockups
WHERE created_at_block_height IS NOT NULL
  AND created_at_block_height <= $1::numeric
  AND (deleted_at_block_height IS NULL OR deleted_at_block_height > $1::numeric)
`, height)
	if err != nil {
		return nil, fmt.Errorf("db: query live lockups at height %s: %w", height, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: scan lockup account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (w *AccountWriter) resurrectIfDeleted(ctx context.Context, accountID, blockHeight, receiptID string) error {
	return retry.Do(ctx, "db.ResurrectImplicitAccount", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
UPDATE accounts
SET created_by_receipt_id = $2,
    created_at_block_height = $3::numeric,
    deleted_by_receipt_id = NULL,
    deleted_at_block_height = NULL,
    last_update_block_height = $3::numeric
WHERE account_id = $1
  AND deleted_by_receipt_id IS NOT NULL
  AND last_update_block_height < $3::numeric
`, accountID, receiptID, blockHeight)
		if err != nil {
			return fmt.Errorf("db: resurrect implicit account %s: %w", accountID, err)
		}
		return nil
	})
}
