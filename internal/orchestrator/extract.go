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

package orchestrator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/near/near-indexer-for-explorer-sub000/internal/db"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/xerrors"
)

// DefaultExtract is the production Extractor: it derives every row set the
// write DAG needs from one raw StreamerMessage. Block/chunk/transaction
// rows are a direct reshape of the stream's own views; account and
// access-key lifecycle are derived from each shard's action receipts
// (CreateAccount/DeleteAccount/AddKey/DeleteKey/Transfer), and
// account_changes rows are a direct reshape of each shard's
// state_changes_with_cause, numbered sequentially across the whole block.
func DefaultExtract(msg models.StreamerMessage) (Extracted, error) {
	block, err := extractBlock(msg.Block)
	if err != nil {
		return Extracted{}, err
	}

	out := Extracted{
		Block:                   block,
		CreatedAccounts:         map[string]string{},
		DeletedAccounts:         map[string]string{},
		ImplicitTransferTargets: map[string]string{},
		AccessKeyAdds:           map[db.AccessKeyID]db.AccessKeyAdd{},
		AccessKeyDeletes:        map[db.AccessKeyID]string{},
	}

	indexInBlock := 0
	for _, shard := range msg.Shards {
		if shard.Chunk != nil {
			chunk, err := extractChunk(*shard.Chunk, msg.Block.Hash)
			if err != nil {
				return Extracted{}, err
			}
			out.Chunks = append(out.Chunks, chunk)

			for _, itx := range shard.Chunk.Transactions {
				tx, actions, err := extractTransaction(itx, msg.Block, chunk.Hash)
				if err != nil {
					return Extracted{}, err
				}
				out.Transactions = append(out.Transactions, tx)
				out.TransactionActions = append(out.TransactionActions, actions...)
			}
		}

		for _, reo := range shard.ReceiptExecutionOutcomes {
			applyActionReceiptLifecycle(reo.Receipt, &out)
		}

		for _, sc := range shard.StateChangesWithCause {
			applyStateChange(sc, &out)
			row, ok, err := extractAccountChange(sc, msg.Block.Hash, indexInBlock)
			if err != nil {
				return Extracted{}, err
			}
			if ok {
				out.AccountChanges = append(out.AccountChanges, row)
				indexInBlock++
			}
		}
	}

	return out, nil
}

func extractBlock(h models.BlockHeaderView) (models.Block, error) {
	totalSupply, err := decimal.NewFromString(h.TotalSupply)
	if err != nil {
		return models.Block{}, fmt.Errorf("extract: parse block total_supply %q: %w", h.TotalSupply, err)
	}
	gasPrice, err := decimal.NewFromString(h.GasPrice)
	if err != nil {
		return models.Block{}, fmt.Errorf("extract: parse block gas_price %q: %w", h.GasPrice, err)
	}
	return models.Block{
		Height:          h.Height,
		Hash:            h.Hash,
		PrevHash:        h.PrevHash,
		TimestampNS:     h.TimestampNS,
		TotalSupply:     totalSupply,
		GasPrice:        gasPrice,
		AuthorAccountID: h.AuthorAccountID,
	}, nil
}

func extractChunk(c models.ChunkView, blockHash string) (models.Chunk, error) {
	return models.Chunk{
		Hash:            c.Header.Hash,
		BlockHash:       blockHash,
		ShardID:         c.Header.ShardID,
		GasUsed:         c.Header.GasUsed,
		GasLimit:        c.Header.GasLimit,
		AuthorAccountID: c.Header.AuthorAccountID,
		Signature:       c.Header.Signature,
	}, nil
}

func extractTransaction(itx models.IndexedTransactionView, block models.BlockHeaderView, chunkHash string) (models.Transaction, []models.TransactionAction, error) {
	tx := itx.Transaction
	if len(tx.Outcome.ReceiptIDs) == 0 {
		return models.Transaction{}, nil, fmt.Errorf("extract: transaction %s has no outcome receipt ids: %w", tx.Hash, xerrors.ErrFatalPrecondition)
	}
	conversionTokensBurnt, err := decimal.NewFromString(tx.ConversionTokensBurnt)
	if err != nil {
		return models.Transaction{}, nil, fmt.Errorf("extract: parse tx %s conversion_tokens_burnt %q: %w", tx.Hash, tx.ConversionTokensBurnt, err)
	}

	row := models.Transaction{
		Hash:                   tx.Hash,
		BlockHash:              block.Hash,
		ChunkHash:              chunkHash,
		SignerID:               tx.SignerID,
		PublicKey:              tx.PublicKey,
		Nonce:                  tx.Nonce,
		ReceiverID:             tx.ReceiverID,
		Signature:              tx.Signature,
		Status:                 tx.Status,
		ConvertedIntoReceiptID: tx.Outcome.ReceiptIDs[0],
		ConversionGasBurnt:     tx.ConversionGasBurnt,
		ConversionTokensBurnt:  conversionTokensBurnt,
		IndexInChunk:           itx.IndexInChunk,
		BlockHeight:            block.Height,
	}

	// One running counter across outer and inner actions, matching
	// insertActionReceiptActions: restarting the inner counter per outer
	// Delegate action would collide index_in_transaction across multiple
	// Delegate actions in the same transaction.
	actions := make([]models.TransactionAction, 0, len(tx.Actions))
	index := 0
	for _, a := range tx.Actions {
		parentIdx := index
		actions = append(actions, models.TransactionAction{
			TransactionHash:    tx.Hash,
			IndexInTransaction: index,
			ActionKind:         a.Kind,
			Args:               a.Args,
			IsDelegateAction:   a.IsDelegateAction,
			DelegateParameters: a.DelegateParameters,
		})
		index++
		for _, inner := range a.DelegateActions {
			actions = append(actions, models.TransactionAction{
				TransactionHash:     tx.Hash,
				IndexInTransaction:  index,
				ActionKind:          inner.Kind,
				Args:                inner.Args,
				DelegateParentIndex: &parentIdx,
			})
			index++
		}
	}
	return row, actions, nil
}

// applyActionReceiptLifecycle scans one action receipt's actions for
// account-creation/deletion and implicit-transfer effects. The receipt
// carrying the action is always the "cause" recorded for the effect.
func applyActionReceiptLifecycle(r models.ReceiptView, out *Extracted) {
	if !r.Receipt.IsAction {
		return
	}
	for _, a := range r.Receipt.Actions {
		switch a.Kind {
		case models.ActionCreateAccount:
			out.CreatedAccounts[r.ReceiverID] = r.ReceiptID
		case models.ActionDeleteAccount:
			out.DeletedAccounts[r.ReceiverID] = r.ReceiptID
		case models.ActionTransfer:
			if db.IsImplicitAccount(r.ReceiverID) {
				out.ImplicitTransferTargets[r.ReceiverID] = r.ReceiptID
			}
		case models.ActionAddKey:
			pk, _ := a.Args["public_key"].(string)
			permission, _ := a.Args["permission_kind"].(string)
			id := db.AccessKeyID{PublicKey: pk, AccountID: r.ReceiverID}
			out.AccessKeyAdds[id] = db.AccessKeyAdd{
				PermissionKind: models.AccessKeyPermissionKind(permission),
				ReceiptID:      r.ReceiptID,
			}
		case models.ActionDeleteKey:
			pk, _ := a.Args["public_key"].(string)
			id := db.AccessKeyID{PublicKey: pk, AccountID: r.ReceiverID}
			out.AccessKeyDeletes[id] = r.ReceiptID
		}
	}
}

// applyStateChange folds an access-key state change into the same
// adds/deletes maps action scanning populates, in case the upstream
// stream reports it only via state changes (e.g. implicit key rotation
// outside an explicit AddKey/DeleteKey action).
func applyStateChange(sc models.StateChangeWithCauseView, out *Extracted) {
	v := sc.Value
	switch v.Kind {
	case models.ValueAccessKeyUpdate:
		id := db.AccessKeyID{PublicKey: v.PublicKey, AccountID: v.AccountID}
		if _, ok := out.AccessKeyAdds[id]; !ok {
			out.AccessKeyAdds[id] = db.AccessKeyAdd{
				PermissionKind: v.PermissionKind,
				ReceiptID:      sc.CauseReceiptID,
			}
		}
	case models.ValueAccessKeyDeletion:
		id := db.AccessKeyID{PublicKey: v.PublicKey, AccountID: v.AccountID}
		if _, ok := out.AccessKeyDeletes[id]; !ok {
			out.AccessKeyDeletes[id] = sc.CauseReceiptID
		}
	}
}

// extractAccountChange reshapes one state change into an account_changes
// row. Only ACCOUNT_UPDATE/ACCOUNT_DELETION carry the balance/storage
// fields that table needs; access-key changes are tracked separately.
func extractAccountChange(sc models.StateChangeWithCauseView, blockHash string, indexInBlock int) (models.AccountChange, bool, error) {
	v := sc.Value
	if v.Kind != models.ValueAccountUpdate && v.Kind != models.ValueAccountDeletion {
		return models.AccountChange{}, false, nil
	}

	nonStaked := decimal.Zero
	staked := decimal.Zero
	var err error
	if v.NonStakedBalance != "" {
		if nonStaked, err = decimal.NewFromString(v.NonStakedBalance); err != nil {
			return models.AccountChange{}, false, fmt.Errorf("extract: parse account change nonstaked_balance %q: %w", v.NonStakedBalance, err)
		}
	}
	if v.StakedBalance != "" {
		if staked, err = decimal.NewFromString(v.StakedBalance); err != nil {
			return models.AccountChange{}, false, fmt.Errorf("extract: parse account change staked_balance %q: %w", v.StakedBalance, err)
		}
	}

	row := models.AccountChange{
		BlockHash:         blockHash,
		IndexInBlock:      indexInBlock,
		AffectedAccountID: v.AccountID,
		UpdateReason:      v.Kind,
		NonStakedBalance:  nonStaked,
		StakedBalance:     staked,
		StorageUsage:      v.StorageUsage,
	}
	if sc.CauseTransactionHash != "" {
		row.CauseTransactionHash = &sc.CauseTransactionHash
	}
	if sc.CauseReceiptID != "" {
		row.CauseReceiptID = &sc.CauseReceiptID
	}
	return row, true, nil
}
