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

// This file shapes the inbound messages the upstream block stream (an
// external collaborator, out of scope per spec.md §1) hands to the
// streamer. They mirror near-indexer-primitives' StreamerMessage/IndexerShard
// view types closely enough that a real streamer implementation can produce
// them directly.
package models

import "math/big"

// BlockHeaderView is the header portion of a StreamerMessage.
type BlockHeaderView struct {
	Height      *big.Int
	Hash        string
	PrevHash    string
	TimestampNS *big.Int
	TotalSupply string // decimal string, parsed by callers into decimal.Decimal
	GasPrice    string
	AuthorAccountID string
}

// ChunkHeaderView is the header portion of a chunk.
type ChunkHeaderView struct {
	Hash          string
	ShardID       uint64
	GasUsed       uint64
	GasLimit      uint64
	AuthorAccountID string
	Signature     string
}

// ActionView is one action carried by a transaction or action receipt.
type ActionView struct {
	Kind ActionKind
	Args map[string]interface{}

	IsDelegateAction   bool
	DelegateActions    []ActionView // inner actions of a Delegate envelope
	DelegateParameters map[string]interface{}
}

// TransactionOutcomeView carries the bare facts the transaction writer
// needs about a transaction's conversion into its first receipt.
type TransactionOutcomeView struct {
	ReceiptIDs []string // must be non-empty; [0] is converted_into_receipt_id
}

// SignedTransactionView is one transaction as delivered by the stream.
type SignedTransactionView struct {
	Hash       string
	SignerID   string
	PublicKey  string
	Nonce      uint64
	ReceiverID string
	Actions    []ActionView
	Signature  string
	Status     string
	Outcome    TransactionOutcomeView
	ConversionGasBurnt    uint64
	ConversionTokensBurnt string
}

// IndexedTransactionView pairs a transaction with its position in the chunk.
type IndexedTransactionView struct {
	IndexInChunk int
	Transaction  SignedTransactionView
}

// OutputDataReceiverView is one entry of an action receipt's
// output_data_receivers list.
type OutputDataReceiverView struct {
	DataID     string
	ReceiverID string
}

// ReceiptEnumView is the payload of a receipt: exactly one of Action or
// Data is populated, mirroring the upstream tagged union.
type ReceiptEnumView struct {
	IsAction bool

	// Action fields.
	SignerID        string
	SignerPublicKey string
	GasPrice        string
	Actions         []ActionView
	InputDataIDs    []string
	OutputDataReceivers []OutputDataReceiverView

	// Data fields.
	DataID string
	Data   []byte
}

// ReceiptView is one receipt as delivered by the stream.
type ReceiptView struct {
	ReceiptID     string
	PredecessorID string
	ReceiverID    string
	Receipt       ReceiptEnumView
}

// IndexedReceiptView pairs a receipt with its position in the chunk.
type IndexedReceiptView struct {
	IndexInChunk int
	Receipt      ReceiptView
}

// ChunkView bundles a chunk header with its transactions and locally
// originated receipts.
type ChunkView struct {
	Header       ChunkHeaderView
	Transactions []IndexedTransactionView
	Receipts     []IndexedReceiptView
}

// ExecutionOutcomeViewInner is the inner status/logs/burnt-resources record
// of an execution outcome.
type ExecutionOutcomeViewInner struct {
	Logs               []string
	ReceiptIDs         []string // receipts produced by this execution
	GasBurnt           uint64
	TokensBurnt        string
	ExecutorAccountID string
	Status              ExecutionStatus
}

// ExecutionOutcomeWithIDView pairs an outcome with the id of the receipt it
// belongs to and its position in the chunk.
type ExecutionOutcomeWithIDView struct {
	ReceiptID    string
	IndexInChunk int
	Outcome      ExecutionOutcomeViewInner
}

// ReceiptExecutionOutcomeView pairs an execution outcome with the receipt
// view that produced it, as delivered per-shard by the stream.
type ReceiptExecutionOutcomeView struct {
	Receipt ReceiptView
	Outcome ExecutionOutcomeWithIDView
}

// StateChangeValueView is the tagged value of one state change.
type StateChangeValueView struct {
	Kind StateChangeValueKind

	AccountID string

	// AccountUpdate fields.
	NonStakedBalance string
	StakedBalance     string
	StorageUsage      uint64

	// AccessKeyUpdate / AccessKeyDeletion fields.
	PublicKey       string
	PermissionKind AccessKeyPermissionKind
}

// StateChangeWithCauseView is one state change plus the cause and, when the
// cause is receipt processing, the causing receipt/transaction hash.
type StateChangeWithCauseView struct {
	Cause               StateChangeCause
	CauseTransactionHash string
	CauseReceiptID       string
	Value                 StateChangeValueView
}

// ShardView bundles everything the stream delivers for a single shard of a
// single block.
type ShardView struct {
	ShardID                  uint64
	Chunk                     *ChunkView // nil when the shard produced no chunk this block
	ReceiptExecutionOutcomes []ReceiptExecutionOutcomeView
	StateChangesWithCause     []StateChangeWithCauseView
}

// StreamerMessage is one message delivered by the upstream block stream:
// one block header plus its per-shard payloads.
type StreamerMessage struct {
	Block  BlockHeaderView
	Shards []ShardView
}
