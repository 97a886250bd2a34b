// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/near/near-indexer-for-explorer-sub000/internal/db"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
)

func TestDefaultExtract_ReshapesBlockAndChunk(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{
			Height:      bigFromInt(100),
			Hash:        "blockhash1",
			PrevHash:    "blockhash0",
			TimestampNS: bigFromInt(1000),
			TotalSupply: "123",
			GasPrice:    "456",
		},
		Shards: []models.ShardView{{
			ShardID: 0,
			Chunk: &models.ChunkView{
				Header: models.ChunkHeaderView{Hash: "chunkhash1", ShardID: 0, GasUsed: 1, GasLimit: 2},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	assert.Equal(t, "blockhash1", out.Block.Hash)
	assert.Equal(t, "123", out.Block.TotalSupply.String())
	assert.Equal(t, "456", out.Block.GasPrice.String())
	require.Len(t, out.Chunks, 1)
	assert.Equal(t, "chunkhash1", out.Chunks[0].Hash)
	assert.Equal(t, "blockhash1", out.Chunks[0].BlockHash)
}

func TestDefaultExtract_TransactionCarriesChunkHashAndConvertedReceipt(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			Chunk: &models.ChunkView{
				Header: models.ChunkHeaderView{Hash: "c1"},
				Transactions: []models.IndexedTransactionView{{
					IndexInChunk: 0,
					Transaction: models.SignedTransactionView{
						Hash:                  "tx1",
						SignerID:              "alice.near",
						ReceiverID:            "bob.near",
						ConversionTokensBurnt: "10",
						Outcome:               models.TransactionOutcomeView{ReceiptIDs: []string{"r1", "r2"}},
						Actions: []models.ActionView{
							{Kind: models.ActionTransfer},
						},
					},
				}},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	require.Len(t, out.Transactions, 1)
	tx := out.Transactions[0]
	assert.Equal(t, "c1", tx.ChunkHash)
	assert.Equal(t, "b1", tx.BlockHash)
	assert.Equal(t, "r1", tx.ConvertedIntoReceiptID)
	assert.Equal(t, "10", tx.ConversionTokensBurnt.String())

	require.Len(t, out.TransactionActions, 1)
	assert.Equal(t, models.ActionTransfer, out.TransactionActions[0].ActionKind)
	assert.False(t, out.TransactionActions[0].IsDelegateAction)
}

func TestDefaultExtract_TransactionWithNoConvertedReceiptFails(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			Chunk: &models.ChunkView{
				Header: models.ChunkHeaderView{Hash: "c1"},
				Transactions: []models.IndexedTransactionView{{
					Transaction: models.SignedTransactionView{Hash: "tx1", ConversionTokensBurnt: "0"},
				}},
			},
		}},
	}

	_, err := DefaultExtract(msg)
	assert.Error(t, err)
}

func TestDefaultExtract_FlattensDelegateActionsWithParentIndex(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			Chunk: &models.ChunkView{
				Header: models.ChunkHeaderView{Hash: "c1"},
				Transactions: []models.IndexedTransactionView{{
					Transaction: models.SignedTransactionView{
						Hash:    "tx1",
						Outcome: models.TransactionOutcomeView{ReceiptIDs: []string{"r1"}},
						ConversionTokensBurnt: "0",
						Actions: []models.ActionView{
							{Kind: models.ActionTransfer},
							{
								Kind:             models.ActionDelegate,
								IsDelegateAction: true,
								DelegateActions: []models.ActionView{
									{Kind: models.ActionTransfer},
									{Kind: models.ActionAddKey},
								},
							},
						},
					},
				}},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)
	require.Len(t, out.TransactionActions, 4)

	outerDelegate := out.TransactionActions[1]
	assert.True(t, outerDelegate.IsDelegateAction)
	assert.Nil(t, outerDelegate.DelegateParentIndex)
	assert.Equal(t, 1, outerDelegate.IndexInTransaction)

	inner0 := out.TransactionActions[2]
	require.NotNil(t, inner0.DelegateParentIndex)
	assert.Equal(t, 1, *inner0.DelegateParentIndex)
	assert.Equal(t, models.ActionTransfer, inner0.ActionKind)

	inner1 := out.TransactionActions[3]
	require.NotNil(t, inner1.DelegateParentIndex)
	assert.Equal(t, 1, *inner1.DelegateParentIndex)
	assert.Equal(t, models.ActionAddKey, inner1.ActionKind)
}

func TestDefaultExtract_TwoDelegateActionsDoNotCollideOnIndex(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			Chunk: &models.ChunkView{
				Header: models.ChunkHeaderView{Hash: "c1"},
				Transactions: []models.IndexedTransactionView{{
					Transaction: models.SignedTransactionView{
						Hash:    "tx1",
						Outcome: models.TransactionOutcomeView{ReceiptIDs: []string{"r1"}},
						ConversionTokensBurnt: "0",
						Actions: []models.ActionView{
							{
								Kind:             models.ActionDelegate,
								IsDelegateAction: true,
								DelegateActions:  []models.ActionView{{Kind: models.ActionTransfer}},
							},
							{
								Kind:             models.ActionDelegate,
								IsDelegateAction: true,
								DelegateActions:  []models.ActionView{{Kind: models.ActionAddKey}},
							},
						},
					},
				}},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)
	require.Len(t, out.TransactionActions, 4)

	seen := make(map[int]bool)
	for _, a := range out.TransactionActions {
		require.False(t, seen[a.IndexInTransaction], "duplicate index_in_transaction %d", a.IndexInTransaction)
		seen[a.IndexInTransaction] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true}, seen)

	firstOuter := out.TransactionActions[0]
	firstInner := out.TransactionActions[1]
	secondOuter := out.TransactionActions[2]
	secondInner := out.TransactionActions[3]

	require.NotNil(t, firstInner.DelegateParentIndex)
	assert.Equal(t, firstOuter.IndexInTransaction, *firstInner.DelegateParentIndex)
	require.NotNil(t, secondInner.DelegateParentIndex)
	assert.Equal(t, secondOuter.IndexInTransaction, *secondInner.DelegateParentIndex)
}

func TestDefaultExtract_DerivesAccountLifecycleFromActionReceipts(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			ReceiptExecutionOutcomes: []models.ReceiptExecutionOutcomeView{
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-create",
					ReceiverID: "new.near",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions:  []models.ActionView{{Kind: models.ActionCreateAccount}},
					},
				}},
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-delete",
					ReceiverID: "old.near",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions:  []models.ActionView{{Kind: models.ActionDeleteAccount}},
					},
				}},
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-transfer",
					ReceiverID: "abababababababababababababababababababababababababababababababab",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions:  []models.ActionView{{Kind: models.ActionTransfer}},
					},
				}},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	assert.Equal(t, "r-create", out.CreatedAccounts["new.near"])
	assert.Equal(t, "r-delete", out.DeletedAccounts["old.near"])
	assert.Equal(t, "r-transfer", out.ImplicitTransferTargets["abababababababababababababababababababababababababababababababab"])
}

func TestDefaultExtract_AddKeyAndDeleteKeyFromActions(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			ReceiptExecutionOutcomes: []models.ReceiptExecutionOutcomeView{
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-addkey",
					ReceiverID: "alice.near",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions: []models.ActionView{{
							Kind: models.ActionAddKey,
							Args: map[string]interface{}{"public_key": "ed25519:abc", "permission_kind": "FULL_ACCESS"},
						}},
					},
				}},
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-deletekey",
					ReceiverID: "alice.near",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions: []models.ActionView{{
							Kind: models.ActionDeleteKey,
							Args: map[string]interface{}{"public_key": "ed25519:def"},
						}},
					},
				}},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	addID := db.AccessKeyID{PublicKey: "ed25519:abc", AccountID: "alice.near"}
	require.Contains(t, out.AccessKeyAdds, addID)
	assert.Equal(t, models.PermissionFullAccess, out.AccessKeyAdds[addID].PermissionKind)
	assert.Equal(t, "r-addkey", out.AccessKeyAdds[addID].ReceiptID)

	delID := db.AccessKeyID{PublicKey: "ed25519:def", AccountID: "alice.near"}
	assert.Equal(t, "r-deletekey", out.AccessKeyDeletes[delID])
}

func TestDefaultExtract_StateChangeFallbackOnlyFillsGapsLeftByActionScan(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{{
			ReceiptExecutionOutcomes: []models.ReceiptExecutionOutcomeView{
				{Receipt: models.ReceiptView{
					ReceiptID:  "r-addkey",
					ReceiverID: "alice.near",
					Receipt: models.ReceiptEnumView{
						IsAction: true,
						Actions: []models.ActionView{{
							Kind: models.ActionAddKey,
							Args: map[string]interface{}{"public_key": "ed25519:abc", "permission_kind": "FULL_ACCESS"},
						}},
					},
				}},
			},
			StateChangesWithCause: []models.StateChangeWithCauseView{
				{
					// Already covered by the action scan above: must NOT override.
					CauseReceiptID: "state-change-should-be-ignored",
					Value: models.StateChangeValueView{
						Kind:           models.ValueAccessKeyUpdate,
						PublicKey:      "ed25519:abc",
						AccountID:      "alice.near",
						PermissionKind: models.PermissionFunctionCall,
					},
				},
				{
					// Not covered by any action: must be filled in.
					CauseReceiptID: "state-change-fills-gap",
					Value: models.StateChangeValueView{
						Kind:           models.ValueAccessKeyUpdate,
						PublicKey:      "ed25519:xyz",
						AccountID:      "carol.near",
						PermissionKind: models.PermissionFullAccess,
					},
				},
			},
		}},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	coveredID := db.AccessKeyID{PublicKey: "ed25519:abc", AccountID: "alice.near"}
	assert.Equal(t, "r-addkey", out.AccessKeyAdds[coveredID].ReceiptID)
	assert.Equal(t, models.PermissionFullAccess, out.AccessKeyAdds[coveredID].PermissionKind)

	gapID := db.AccessKeyID{PublicKey: "ed25519:xyz", AccountID: "carol.near"}
	assert.Equal(t, "state-change-fills-gap", out.AccessKeyAdds[gapID].ReceiptID)
	assert.Equal(t, models.PermissionFullAccess, out.AccessKeyAdds[gapID].PermissionKind)
}

func TestDefaultExtract_AccountChangesNumberedAcrossAllShards(t *testing.T) {
	msg := models.StreamerMessage{
		Block: models.BlockHeaderView{Height: bigFromInt(1), Hash: "b1", TotalSupply: "1", GasPrice: "1"},
		Shards: []models.ShardView{
			{
				ShardID: 0,
				StateChangesWithCause: []models.StateChangeWithCauseView{
					{Value: models.StateChangeValueView{Kind: models.ValueAccountUpdate, AccountID: "a.near", NonStakedBalance: "1"}},
				},
			},
			{
				ShardID: 1,
				StateChangesWithCause: []models.StateChangeWithCauseView{
					{Value: models.StateChangeValueView{Kind: models.ValueAccountUpdate, AccountID: "b.near", NonStakedBalance: "2"}},
					{Value: models.StateChangeValueView{Kind: models.ValueAccessKeyUpdate, AccountID: "b.near"}}, // not an account change row
					{Value: models.StateChangeValueView{Kind: models.ValueAccountDeletion, AccountID: "c.near"}},
				},
			},
		},
	}

	out, err := DefaultExtract(msg)
	require.NoError(t, err)

	require.Len(t, out.AccountChanges, 3)
	assert.Equal(t, 0, out.AccountChanges[0].IndexInBlock)
	assert.Equal(t, "a.near", out.AccountChanges[0].AffectedAccountID)
	assert.Equal(t, 1, out.AccountChanges[1].IndexInBlock)
	assert.Equal(t, "b.near", out.AccountChanges[1].AffectedAccountID)
	assert.Equal(t, 2, out.AccountChanges[2].IndexInBlock)
	assert.Equal(t, "c.near", out.AccountChanges[2].AffectedAccountID)
	assert.Equal(t, models.ValueAccountDeletion, out.AccountChanges[2].UpdateReason)
}
