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

// Package retry is the single retry harness the database writers in this
// indexer go through; the RPC client does not use it. It wraps an exponential backoff with a hard
// attempt ceiling and a caller-supplied "benign" classifier so that
// expected/idempotent failures (e.g. a duplicate key on a concurrent
// upsert) don't burn through the retry budget.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Config controls the shape of the exponential backoff. Every call site in
// this codebase uses the defaults below through the package-level Do.
var defaultConfig = Config{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     120 * time.Second,
	Multiplier:      2,
}

// Config is the tunable shape of a backoff run. Zero value is invalid; use
// DefaultConfig().
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig returns the indexer-wide backoff policy: 100ms initial
// interval, 2x multiplier, capped at 120s, no randomization. No
// randomization is deliberate: retry timing for a single-writer pipeline
// doesn't need jitter, and deterministic timing makes strict-mode test
// runs reproducible.
func DefaultConfig() Config {
	return defaultConfig
}

func (c Config) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// onRetry, when set, is notified with the tag of every call site that
// backs off at least once. It exists so package metrics (which would
// otherwise have to import retry and be imported by every writer in
// turn) can observe retry pressure without retry depending on them;
// wire it once at startup via SetRetryHook.
var onRetry func(tag string)

// SetRetryHook installs fn to be called once per backoff wait, with the
// tag of the retrying operation. Passing nil disables the hook. Not
// safe to call concurrently with in-flight Do calls; intended to be set
// once during process startup.
func SetRetryHook(fn func(tag string)) {
	onRetry = fn
}

// Benign classifies an error returned by an operation as one that should
// end the retry loop successfully rather than being retried or propagated.
// A nil Benign treats every error as retryable.
type Benign func(error) bool

// Op is the operation under retry. Returning nil ends the loop
// successfully; any non-nil, non-benign error is retried until maxAttempts
// is exhausted or ctx is done.
type Op func(ctx context.Context) error

// Do runs op under the package's exponential backoff policy, capped at
// maxAttempts (maxAttempts <= 0 means unlimited, bounded only by ctx).
// tag identifies the call site in logs. If op's error satisfies benign,
// Do returns nil immediately without logging a failure.
func Do(ctx context.Context, tag string, maxAttempts int, benign Benign, op Op) error {
	return DefaultConfig().Do(ctx, tag, maxAttempts, benign, op)
}

// Do is the Config-scoped form of the package-level Do, for call sites
// that need a non-default policy.
func (c Config) Do(ctx context.Context, tag string, maxAttempts int, benign Benign, op Op) error {
	b := backoff.WithContext(c.newBackOff(), ctx)
	attempt := 0
	var lastErr error

	for {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if benign != nil && benign(err) {
			return nil
		}
		lastErr = err

		if maxAttempts > 0 && attempt >= maxAttempts {
			return fmt.Errorf("retry: %s: attempts exhausted (%d): %w", tag, attempt, lastErr)
		}

		d := b.NextBackOff()
		if d == backoff.Stop {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("retry: %s: %w", tag, ctxErr)
			}
			return fmt.Errorf("retry: %s: backoff stopped: %w", tag, lastErr)
		}

		logrus.WithFields(logrus.Fields{
			"tag":     tag,
			"attempt": attempt,
			"wait":    d,
		}).WithError(err).Warn("retry: operation failed, backing off")
		if onRetry != nil {
			onRetry(tag)
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry: %s: %w", tag, ctx.Err())
		case <-t.C:
		}
	}
}
