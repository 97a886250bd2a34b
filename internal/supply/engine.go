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

// Package supply runs the daily circulating-supply computation (C12): a
// long-lived loop that, once a day, locates the chain state at a target
// timestamp, sums every live lockup contract's locked balance plus the
// two foundation-locked accounts, and persists
// total_supply - locked as that day's circulating supply.
package supply

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/near/near-indexer-for-explorer-sub000/internal/db"
	"github.com/near/near-indexer-for-explorer-sub000/internal/metrics"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/rpcclient"
)

// foundationLockedAccounts are summed separately from the lockup
// contract set; their full balance counts as locked.
var foundationLockedAccounts = []string{"lockup.near", "contributors.near"}

// minutesPastMidnight is how far into the target day the engine waits
// before firing, to give the chain time to finalize that day's blocks.
const minutesPastMidnight = 10

// RPC is the subset of rpcclient.Client the engine needs.
type RPC interface {
	ViewAccountAtHeight(ctx context.Context, accountID string, blockHeight uint64) (*rpcclient.ViewAccountResult, error)
	ViewStateAtHeight(ctx context.Context, accountID string, blockHeight uint64, prefixBase64 string) (*rpcclient.ViewStateResult, error)
	BlockByFinality(ctx context.Context, finality string) (*rpcclient.BlockResult, error)
}

// BlockLocator is the subset of db.BlockWriter the engine needs to find a
// day's boundary block.
type BlockLocator interface {
	BlockBeforeTimestamp(ctx context.Context, targetTimestampNS string) (*db.BoundaryBlock, error)
}

// LockupLister is the subset of db.AccountWriter the engine needs to
// enumerate that day's live lockup accounts.
type LockupLister interface {
	LiveLockupsAtHeight(ctx context.Context, height string) ([]string, error)
}

// Writer persists the finished day's row.
type Writer interface {
	Store(ctx context.Context, row models.CirculatingSupplyRow) error
	LatestComputedAt(ctx context.Context) (*string, error)
}

// Engine runs the daily circulating-supply state machine.
type Engine struct {
	rpc     RPC
	blocks  BlockLocator
	lockups LockupLister
	writer  Writer
	metrics *metrics.Registry

	// sleep is a seam for tests; defaults to a context-aware timer wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Engine against its collaborators. reg may be nil, in
// which case computed days aren't observed.
func New(rpc RPC, blocks BlockLocator, lockups LockupLister, writer Writer, reg *metrics.Registry) *Engine {
	return &Engine{
		rpc:     rpc,
		blocks:  blocks,
		lockups: lockups,
		writer:  writer,
		metrics: reg,
		sleep:   ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return nil
}

// Run drives the SLEEPING -> CHECK_CHAIN -> COMPUTING state machine
// forever, starting from whatever day follows the latest persisted row
// (or the day after transfers were enabled, if none exists yet). It
// returns an error if that starting day cannot be determined, nil on
// context cancellation, and never returns otherwise.
func (e *Engine) Run(ctx context.Context) error {
	target, err := e.startingTarget(ctx)
	if err != nil {
		return fmt.Errorf("supply: determine starting target day: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if wait := time.Until(target); wait > 0 {
			if err := e.sleep(ctx, wait); err != nil {
				return nil
			}
		}

		if !e.waitForChainCatchUp(ctx, target) {
			return nil
		}

		if !e.computeDayWithRetry(ctx, target) {
			return nil
		}

		target = target.Add(24 * time.Hour)
	}
}

// waitForChainCatchUp blocks until the chain's latest finalized block is
// at or past target, re-polling every 2h. Returns false on cancellation.
func (e *Engine) waitForChainCatchUp(ctx context.Context, target time.Time) bool {
	for {
		caughtUp, err := e.chainCaughtUpTo(ctx, target)
		if err != nil {
			logrus.WithError(err).Warn("supply: failed to check chain progress, retrying in 2h")
		} else if caughtUp {
			return true
		}
		if err := e.sleep(ctx, 2*time.Hour); err != nil {
			return false
		}
	}
}

// computeDayWithRetry runs computeDay until it succeeds, sleeping 2h
// between attempts. Returns false on cancellation.
func (e *Engine) computeDayWithRetry(ctx context.Context, target time.Time) bool {
	for {
		if err := e.computeDay(ctx, target); err != nil {
			if uerr, ok := err.(*ErrUnknownContractVersion); ok {
				logrus.WithError(uerr).Error("supply: unknown lockup contract version, operator must update the table; retrying in 2h")
			} else {
				logrus.WithError(err).Warn("supply: day computation failed, retrying in 2h")
			}
			if err := e.sleep(ctx, 2*time.Hour); err != nil {
				return false
			}
			continue
		}
		return true
	}
}

// startingTarget resumes the day after the latest persisted row, or the
// day following transfers-enabled if nothing has been computed yet.
func (e *Engine) startingTarget(ctx context.Context) (time.Time, error) {
	latest, err := e.writer.LatestComputedAt(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return dayBoundary(transfersEnabledConstant).Add(24 * time.Hour), nil
	}
	ns, err := strconv.ParseInt(*latest, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("supply: parse latest computed_at timestamp: %w", err)
	}
	return time.Unix(0, ns).UTC().Add(24 * time.Hour), nil
}

// dayBoundary returns midnight UTC of ns's day, plus the
// minutesPastMidnight grace period the schedule always applies.
func dayBoundary(ns uint64) time.Time {
	t := time.Unix(0, int64(ns)).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(minutesPastMidnight * time.Minute)
}

// chainCaughtUpTo reports whether the latest finalized block's timestamp
// is at or past target.
func (e *Engine) chainCaughtUpTo(ctx context.Context, target time.Time) (bool, error) {
	block, err := e.rpc.BlockByFinality(ctx, "final")
	if err != nil {
		return false, fmt.Errorf("supply: query latest finalized block: %w", err)
	}
	latest := time.Unix(0, int64(block.Header.TimestampNS)).UTC()
	return !latest.Before(target), nil
}

// computeDay runs one full day's computation: locate the boundary block,
// sum every live lockup's locked balance plus the foundation-locked
// accounts, and persist the resulting row.
func (e *Engine) computeDay(ctx context.Context, target time.Time) error {
	targetNS := strconv.FormatInt(target.UnixNano(), 10)
	boundary, err := e.blocks.BlockBeforeTimestamp(ctx, targetNS)
	if err != nil {
		return fmt.Errorf("supply: locate boundary block: %w", err)
	}
	if boundary == nil {
		return fmt.Errorf("supply: no block indexed at or before %s yet", targetNS)
	}

	blockHeight, err := strconv.ParseUint(boundary.Height, 10, 64)
	if err != nil {
		return fmt.Errorf("supply: parse boundary block height %s: %w", boundary.Height, err)
	}
	blockTimestamp, err := strconv.ParseUint(boundary.TimestampNS, 10, 64)
	if err != nil {
		return fmt.Errorf("supply: parse boundary block timestamp %s: %w", boundary.TimestampNS, err)
	}
	totalSupply, ok := new(big.Int).SetString(boundary.TotalSupply, 10)
	if !ok {
		return fmt.Errorf("supply: parse boundary block total supply %q", boundary.TotalSupply)
	}

	lockupIDs, err := e.lockups.LiveLockupsAtHeight(ctx, boundary.Height)
	if err != nil {
		return fmt.Errorf("supply: enumerate live lockups at height %s: %w", boundary.Height, err)
	}

	lockupsLocked := big.NewInt(0)
	unfinished := 0
	for _, accountID := range lockupIDs {
		locked, err := e.computeLockupLocked(ctx, accountID, blockHeight, blockTimestamp)
		if err != nil {
			return fmt.Errorf("supply: compute locked amount for %s: %w", accountID, err)
		}
		lockupsLocked.Add(lockupsLocked, locked)
		if locked.Sign() > 0 {
			unfinished++
		}
	}

	foundationLocked := big.NewInt(0)
	for _, accountID := range foundationLockedAccounts {
		acc, err := e.rpc.ViewAccountAtHeight(ctx, accountID, blockHeight)
		if err != nil {
			return fmt.Errorf("supply: view foundation account %s: %w", accountID, err)
		}
		amount, ok := new(big.Int).SetString(acc.Amount, 10)
		if !ok {
			return fmt.Errorf("supply: parse foundation account %s amount %q", accountID, acc.Amount)
		}
		foundationLocked.Add(foundationLocked, amount)
	}

	circulating := new(big.Int).Sub(totalSupply, foundationLocked)
	circulating.Sub(circulating, lockupsLocked)

	row := models.CirculatingSupplyRow{
		ComputedAtBlockTimestampNS: new(big.Int).SetUint64(blockTimestamp),
		BlockHash:                  boundary.Hash,
		TotalSupply:                decimalFromBigInt(totalSupply),
		CirculatingSupply:          decimalFromBigInt(circulating),
		FoundationLockedTokens:     decimalFromBigInt(foundationLocked),
		LockupsLockedTokens:        decimalFromBigInt(lockupsLocked),
		LockupsCount:               len(lockupIDs),
		UnfinishedLockupsCount:     unfinished,
	}
	if err := e.writer.Store(ctx, row); err != nil {
		return fmt.Errorf("supply: store circulating supply row: %w", err)
	}
	if e.metrics != nil {
		e.metrics.CirculatingSupplyComputations.Inc()
		f, _ := row.CirculatingSupply.Float64()
		e.metrics.CirculatingSupplyValue.Set(f)
	}
	return nil
}

// computeLockupLocked fetches one lockup contract's full state, decodes
// it, resolves its bug flag from its code hash, and evaluates the locked
// balance at blockTimestamp.
func (e *Engine) computeLockupLocked(ctx context.Context, accountID string, blockHeight, blockTimestamp uint64) (*big.Int, error) {
	state, err := e.rpc.ViewStateAtHeight(ctx, accountID, blockHeight, "")
	if err != nil {
		return nil, fmt.Errorf("view state: %w", err)
	}
	if len(state.Values) == 0 {
		return nil, fmt.Errorf("no state found for lockup contract %s at height %d", accountID, blockHeight)
	}
	raw, err := base64.StdEncoding.DecodeString(state.Values[0].Value)
	if err != nil {
		return nil, fmt.Errorf("decode base64 contract state: %w", err)
	}

	contract, err := decodeLockupContract(raw)
	if err != nil {
		return nil, err
	}
	// Contracts that never had their owner vote to enable transfers
	// still had transfers enabled chain-wide at TRANSFERS_ENABLED; the
	// original indexer applies the same override before evaluating the
	// locked-amount formula.
	contract.lockupInformation.transfersInformation = transfersInformation{
		enabled:            true,
		transfersTimestamp: transfersEnabledConstant,
	}

	account, err := e.rpc.ViewAccountAtHeight(ctx, accountID, blockHeight)
	if err != nil {
		return nil, fmt.Errorf("view account for code hash: %w", err)
	}
	hasBug, err := lockupHasBug(accountID, account.CodeHash)
	if err != nil {
		return nil, err
	}

	return contract.getLockedAmount(blockTimestamp, hasBug), nil
}

func decimalFromBigInt(v *big.Int) decimal.Decimal {
	return decimal.RequireFromString(v.String())
}
