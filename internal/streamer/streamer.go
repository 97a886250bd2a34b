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

// Package streamer drains an upstream block-message channel into the
// per-block orchestrator, bounding how many blocks are in flight at once
// (C11). The upstream channel closing is the clean-shutdown signal; any
// block-processing error aborts the whole run.
package streamer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
)

// BlockProcessor is anything that can fully process one StreamerMessage.
// *orchestrator.Orchestrator satisfies this; kept as an interface here so
// the loop doesn't need to import the orchestrator package.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, msg models.StreamerMessage) error
}

// Loop pulls messages off in and hands them to proc, running up to
// concurrency blocks at once. concurrency <= 0 is treated as 1 (strictly
// sequential, the default and the only mode that preserves the
// in-order parent-completeness guarantee C6's strict mode depends on).
type Loop struct {
	proc        BlockProcessor
	concurrency int
}

// New builds a Loop.
func New(proc BlockProcessor, concurrency int) *Loop {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Loop{proc: proc, concurrency: concurrency}
}

// Run drains in until it closes or ctx is cancelled or a block fails.
// Returns the first error encountered, or nil if in closed cleanly.
func (l *Loop) Run(ctx context.Context, in <-chan models.StreamerMessage) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, l.concurrency)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case msg, ok := <-in:
			if !ok {
				break loop
			}
			msg := msg
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				break loop
			}
			g.Go(func() error {
				defer func() { <-sem }()
				if err := l.proc.ProcessBlock(gctx, msg); err != nil {
					return fmt.Errorf("streamer: process block %s: %w", msg.Block.Hash, err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("streamer: %w", err)
	}
	return nil
}
