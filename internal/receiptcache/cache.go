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

// Package receiptcache is the bounded receipt/data-id lookup cache shared
// by the per-block orchestrator across its lifetime (C2). It holds two
// kinds of fact the receipt resolver (C6) needs fast: "this output data id
// traces back to transaction X" and "this receipt id traces back to
// transaction X" — both keyed through the same table by tagging the
// id's kind, so a receipt id and a data id that happen to collide as raw
// hashes never collide as cache keys.
package receiptcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
)

// DefaultCapacity is the number of entries the cache holds before evicting
// least-recently-used entries. Sized for the receipt-parent lookups of a
// single in-flight block range under normal chain throughput.
const DefaultCapacity = 100_000

// Cache maps a models.ReceiptOrDataID to the hash of the transaction it
// traces back to. Safe for concurrent use; within one block the
// transaction writer (C5) seeds it and the receipt writer (C6) then reads,
// consumes and extends it.
type Cache struct {
	mu sync.Mutex
	lc *lru.Cache[models.ReceiptOrDataID, string]
}

// New builds a Cache with the given capacity. Panics if capacity <= 0,
// mirroring golang-lru's own constructor contract.
func New(capacity int) *Cache {
	lc, err := lru.New[models.ReceiptOrDataID, string](capacity)
	if err != nil {
		panic(err)
	}
	return &Cache{lc: lc}
}

// NewDefault builds a Cache sized at DefaultCapacity.
func NewDefault() *Cache {
	return New(DefaultCapacity)
}

// Set records that key (a receipt id or data id) traces back to the
// transaction hashed parentTxHash.
func (c *Cache) Set(key models.ReceiptOrDataID, parentTxHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lc.Add(key, parentTxHash)
}

// Get returns the parent transaction hash recorded for key, and whether it was
// present. A hit does not evict the entry; callers that consume an entry
// exactly once (e.g. a resolved data id) must call Remove explicitly.
func (c *Cache) Get(key models.ReceiptOrDataID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lc.Get(key)
}

// Remove deletes key from the cache, if present.
func (c *Cache) Remove(key models.ReceiptOrDataID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lc.Remove(key)
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lc.Len()
}
