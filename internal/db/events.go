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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/near/near-indexer-for-explorer-sub000/internal/metrics"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

const eventJSONPrefix = "EVENT_JSON:"

// EventWriter extracts and persists NEP-141/NEP-171 events logged by
// execution outcomes (C9).
type EventWriter struct {
	q       Querier
	metrics *metrics.Registry
}

// NewEventWriter builds an EventWriter over q. reg may be nil, in which
// case indexed events aren't observed.
func NewEventWriter(q Querier, reg *metrics.Registry) *EventWriter {
	return &EventWriter{q: q, metrics: reg}
}

// shardCounter assigns a monotonically increasing per-shard index to every
// event extracted, as required by the spec's index_in_shard column.
type shardCounter struct {
	next map[uint64]int
}

func newShardCounter() *shardCounter { return &shardCounter{next: make(map[uint64]int)} }

func (c *shardCounter) take(shardID uint64) int {
	idx := c.next[shardID]
	c.next[shardID] = idx + 1
	return idx
}

// Store extracts EVENT_JSON lines from every execution outcome's logs and
// persists the resulting fungible/non-fungible token event rows.
func (w *EventWriter) Store(ctx context.Context, shards []models.ShardView) error {
	counter := newShardCounter()
	for _, shard := range shards {
		for _, reo := range shard.ReceiptExecutionOutcomes {
			contractID := reo.Receipt.ReceiverID
			for _, line := range reo.Outcome.Outcome.Logs {
				trimmed := strings.TrimSpace(line)
				if !strings.HasPrefix(trimmed, eventJSONPrefix) {
					continue
				}
				payload := strings.TrimSpace(strings.TrimPrefix(trimmed, eventJSONPrefix))

				var env models.EventEnvelope
				if err := json.Unmarshal([]byte(payload), &env); err != nil {
					logrus.WithError(err).WithField("receipt_id", reo.Outcome.ReceiptID).
						Warn("events: failed to parse EVENT_JSON payload, skipping")
					continue
				}

				shardID := shard.ShardID
				switch env.Standard {
				case models.StandardFungibleToken:
					if err := w.storeFungibleTokenEvents(ctx, env, reo.Outcome.ReceiptID, shardID, contractID, counter); err != nil {
						return err
					}
				case models.StandardNonFungibleToken:
					if err := w.storeNonFungibleTokenEvents(ctx, env, reo.Outcome.ReceiptID, shardID, contractID, counter); err != nil {
						return err
					}
				default:
					logrus.WithField("standard", env.Standard).Warn("events: unknown event standard, skipping")
				}
			}
		}
	}
	return nil
}

// benignConstraint recognizes the two constraint violations the spec
// treats as success: a plain primary-key duplicate (already ingested) and
// a data-inconsistency unique-constraint violation (log and move on).
func benignConstraint(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "violates unique constraint \"assets__fungible_token_events_pkey\"") ||
		strings.Contains(msg, "violates unique constraint \"assets__non_fungible_token_events_pkey\"") {
		return true
	}
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		logrus.WithError(err).Warn("events: data inconsistency, unique constraint violated; skipping")
		return true
	}
	return false
}

func (w *EventWriter) storeFungibleTokenEvents(ctx context.Context, env models.EventEnvelope, receiptID string, shardID uint64, contractID string, counter *shardCounter) error {
	for _, d := range env.Data {
		amountStr, _ := d["amount"].(string)
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			logrus.WithError(err).Warn("events: malformed ft event amount, skipping entry")
			continue
		}
		ev := models.FungibleTokenEvent{
			EmittedForReceiptID: receiptID,
			ShardID:              shardID,
			IndexInShard:          counter.take(shardID),
			ContractAccountID:    contractID,
			Kind:                  env.Event,
			OldOwnerID:           stringField(d, "old_owner_id"),
			NewOwnerID:           stringField(d, "new_owner_id"),
			Amount:                amount,
			Memo:                  stringField(d, "memo"),
		}
		if err := w.insertFungible(ctx, ev); err != nil {
			return err
		}
		if w.metrics != nil {
			w.metrics.EventsIndexed.WithLabelValues(string(models.StandardFungibleToken), string(ev.Kind)).Inc()
		}
	}
	return nil
}

func (w *EventWriter) storeNonFungibleTokenEvents(ctx context.Context, env models.EventEnvelope, receiptID string, shardID uint64, contractID string, counter *shardCounter) error {
	for _, d := range env.Data {
		tokenIDs, _ := d["token_ids"].([]interface{})
		for _, raw := range tokenIDs {
			tokenID, _ := raw.(string)
			ev := models.NonFungibleTokenEvent{
				EmittedForReceiptID: receiptID,
				ShardID:              shardID,
				IndexInShard:          counter.take(shardID),
				ContractAccountID:    contractID,
				Kind:                  env.Event,
				TokenID:               tokenID,
				OldOwnerID:           stringField(d, "old_owner_id"),
				NewOwnerID:           stringField(d, "new_owner_id"),
				AuthorizerID:         stringField(d, "authorized_id"),
				Memo:                  stringField(d, "memo"),
			}
			if err := w.insertNonFungible(ctx, ev); err != nil {
				return err
			}
			if w.metrics != nil {
				w.metrics.EventsIndexed.WithLabelValues(string(models.StandardNonFungibleToken), string(ev.Kind)).Inc()
			}
		}
	}
	return nil
}

func stringField(d map[string]interface{}, key string) string {
	v, _ := d[key].(string)
	return v
}

func (w *EventWriter) insertFungible(ctx context.Context, ev models.FungibleTokenEvent) error {
	return retry.Do(ctx, "db.StoreFungibleTokenEvent", 0, benignConstraint, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO assets__fungible_token_events (
	emitted_for_receipt_id, emitted_at_shard_id, emitted_index_in_shard, emitted_by_contract_id,
	event_kind, token_old_owner_id, token_new_owner_id, amount, memo
)
VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6, $7, $8::numeric, $9)
ON CONFLICT (emitted_for_receipt_id, emitted_at_shard_id, emitted_index_in_shard) DO NOTHING
`,
			ev.EmittedForReceiptID, strconv.FormatUint(ev.ShardID, 10), strconv.Itoa(ev.IndexInShard),
			ev.ContractAccountID, string(ev.Kind), ev.OldOwnerID, ev.NewOwnerID, ev.Amount.String(), ev.Memo,
		)
		if err != nil {
			return fmt.Errorf("db: insert fungible token event for %s: %w", ev.EmittedForReceiptID, err)
		}
		return nil
	})
}

func (w *EventWriter) insertNonFungible(ctx context.Context, ev models.NonFungibleTokenEvent) error {
	return retry.Do(ctx, "db.StoreNonFungibleTokenEvent", 0, benignConstraint, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO assets__non_fungible_token_events (
	emitted_for_receipt_id, emitted_at_shard_id, emitted_index_in_shard, emitted_by_contract_id,
	token_id, event_kind, token_old_owner_id, token_new_owner_id, token_authorizer_id, memo
)
VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (emitted_for_receipt_id, emitted_at_shard_id, emitted_index_in_shard, token_id) DO NOTHING
`,
			ev.EmittedForReceiptID, strconv.FormatUint(ev.ShardID, 10), strconv.Itoa(ev.IndexInShard),
			ev.ContractAccountID, ev.TokenID, string(ev.Kind), ev.OldOwnerID, ev.NewOwnerID,
			nullableString(ev.AuthorizerID), ev.Memo,
		)
		if err != nil {
			return fmt.Errorf("db: insert non-fungible token event for %s: %w", ev.EmittedForReceiptID, err)
		}
		return nil
	})
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
