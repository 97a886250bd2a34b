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

package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ReceiptIDKind tags a ReceiptOrDataID as keying an action receipt's own id
// or a data receipt's data id. The two hash spaces must never collide in
// the receipt cache (see internal/receiptcache).
type ReceiptIDKind uint8

const (
	KindReceiptID ReceiptIDKind = iota
	KindDataID
)

// ReceiptOrDataID is the sum-type cache key described by the spec: receipts
// produced by an action are looked up by their own id, data receipts by
// their data id, and the two must be kept in separate namespaces.
type ReceiptOrDataID struct {
	Kind ReceiptIDKind
	ID   string
}

func ReceiptID(id string) ReceiptOrDataID { return ReceiptOrDataID{Kind: KindReceiptID, ID: id} }
func DataID(id string) ReceiptOrDataID    { return ReceiptOrDataID{Kind: KindDataID, ID: id} }

// Receipt is the row persisted for every receipt (action or data) once its
// parent transaction hash has been resolved.
type Receipt struct {
	ReceiptID       string
	BlockHash       string
	ChunkHash       string
	IndexInChunk    int
	BlockTimestampNS *big.Int
	PredecessorID   string
	ReceiverID      string
	Kind            ReceiptKind
	OriginatedFromTransactionHash string
}

// ActionReceipt is one-to-one with a Receipt of kind Action.
type ActionReceipt struct {
	ReceiptID string
	SignerID  string
	SignerPublicKey string
	GasPrice  decimal.Decimal
}

// ActionReceiptAction is one (receipt_id, index_in_action_receipt) row. A
// Delegate action flattens into one outer row (DelegateParentIndex == nil)
// plus one row per inner action, whose DelegateParentIndex references the
// outer row's IndexInActionReceipt.
type ActionReceiptAction struct {
	ReceiptID             string
	IndexInActionReceipt int
	ActionKind             ActionKind
	Args                   map[string]interface{}
	PredecessorID         string
	ReceiverID             string
	BlockTimestampNS     *big.Int

	IsDelegateAction     bool
	DelegateParameters   map[string]interface{}
	DelegateParentIndex *int
}

// ActionReceiptInputData declares a data dependency of an action receipt.
type ActionReceiptInputData struct {
	InputDataID string
	InputToReceiptID string
}

// ActionReceiptOutputData declares a data output produced by an action
// receipt, plus the account that will receive the corresponding data
// receipt.
type ActionReceiptOutputData struct {
	OutputDataID       string
	OutputFromReceiptID string
	ReceiverID           string
}

// DataReceipt is one-to-one with a Receipt of kind Data.
type DataReceipt struct {
	DataID    string
	ReceiptID string
	Data      []byte // nil when the data receipt carries no payload
}

// OutputDataReceiver pairs a data id produced by an action receipt with the
// account that will consume it — the shape the resolver needs to seed the
// receipt cache with DataID -> tx hash entries (spec §4.6 write phase, step 2).
type OutputDataReceiver struct {
	DataID     string
	ReceiverID string
}
