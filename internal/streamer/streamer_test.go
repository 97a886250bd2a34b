// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.

package streamer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	failOn    string
	delay     time.Duration
	inFlight  int32
	maxInFlight int32
}

func (f *fakeProcessor) ProcessBlock(ctx context.Context, msg models.StreamerMessage) error {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.processed = append(f.processed, msg.Block.Hash)
	f.mu.Unlock()

	if f.failOn != "" && msg.Block.Hash == f.failOn {
		return errors.New("boom")
	}
	return nil
}

func msgWithHash(hash string) models.StreamerMessage {
	return models.StreamerMessage{Block: models.BlockHeaderView{Hash: hash}}
}

func TestLoop_ProcessesAllMessagesUntilChannelCloses(t *testing.T) {
	proc := &fakeProcessor{}
	l := New(proc, 1)

	ch := make(chan models.StreamerMessage, 3)
	ch <- msgWithHash("b1")
	ch <- msgWithHash("b2")
	ch <- msgWithHash("b3")
	close(ch)

	require.NoError(t, l.Run(context.Background(), ch))
	assert.Equal(t, []string{"b1", "b2", "b3"}, proc.processed)
}

func TestLoop_PropagatesProcessingError(t *testing.T) {
	proc := &fakeProcessor{failOn: "b2", delay: 5 * time.Millisecond}
	l := New(proc, 1)

	ch := make(chan models.StreamerMessage, 3)
	ch <- msgWithHash("b1")
	ch <- msgWithHash("b2")
	ch <- msgWithHash("b3")
	close(ch)

	err := l.Run(context.Background(), ch)
	require.Error(t, err)
}

func TestLoop_DefaultsZeroOrNegativeConcurrencyToOne(t *testing.T) {
	assert.Equal(t, 1, New(&fakeProcessor{}, 0).concurrency)
	assert.Equal(t, 1, New(&fakeProcessor{}, -5).concurrency)
	assert.Equal(t, 4, New(&fakeProcessor{}, 4).concurrency)
}

func TestLoop_BoundsConcurrencyAtConfiguredLimit(t *testing.T) {
	proc := &fakeProcessor{delay: 10 * time.Millisecond}
	l := New(proc, 2)

	ch := make(chan models.StreamerMessage, 8)
	for i := 0; i < 8; i++ {
		ch <- msgWithHash("b")
	}
	close(ch)

	require.NoError(t, l.Run(context.Background(), ch))
	assert.LessOrEqual(t, proc.maxInFlight, int32(2))
}

func TestLoop_ContextCancellationStopsTheLoop(t *testing.T) {
	proc := &fakeProcessor{delay: 50 * time.Millisecond}
	l := New(proc, 1)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan models.StreamerMessage)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, ch) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
