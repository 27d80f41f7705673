/*
 * Copyright 2025 Kartex Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartexhq/kartex/pkg/logger"
)

// collector is a FlushFunc that records every batch it receives.
type collector struct {
	mu      sync.Mutex
	batches [][]int
	fail    int // fail this many flush attempts before succeeding
}

func (c *collector) flush(_ context.Context, batch []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail > 0 {
		c.fail--
		return errors.New("store unavailable")
	}

	copied := make([]int, len(batch))
	copy(copied, batch)
	c.batches = append(c.batches, copied)

	return nil
}

func (c *collector) snapshot() [][]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]int, len(c.batches))
	copy(out, c.batches)

	return out
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, b := range c.batches {
		n += len(b)
	}

	return n
}

func TestBatcherNoFlushBelowThresholdUntilTimer(t *testing.T) {
	c := &collector{}
	b := New("logs", Config{
		MaxBatchSize:  100,
		FlushInterval: 200 * time.Millisecond,
	}, c.flush, logger.NewTestLogger())
	defer b.Close(context.Background())

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAdd(i))
	}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.snapshot(), "no flush before the timer elapses")

	assert.Eventually(t, func() bool {
		return c.total() == 5
	}, time.Second, 10*time.Millisecond, "timer flush delivers the partial batch")
}

func TestBatcherFlushesAtThresholdWithoutTimer(t *testing.T) {
	c := &collector{}
	b := New("logs", Config{
		MaxBatchSize:  10,
		FlushInterval: time.Hour, // timer never fires during the test
	}, c.flush, logger.NewTestLogger())
	defer b.Close(context.Background())

	for i := 0; i < 10; i++ {
		require.True(t, b.TryAdd(i))
	}

	assert.Eventually(t, func() bool {
		batches := c.snapshot()
		return len(batches) == 1 && len(batches[0]) == 10
	}, time.Second, 10*time.Millisecond)
}

func TestBatcherBufferEmptyAfterFlush(t *testing.T) {
	c := &collector{}
	b := New("logs", Config{
		MaxBatchSize:  3,
		FlushInterval: time.Hour,
	}, c.flush, logger.NewTestLogger())
	defer b.Close(context.Background())

	for i := 0; i < 6; i++ {
		require.True(t, b.TryAdd(i))
	}

	assert.Eventually(t, func() bool {
		batches := c.snapshot()
		return len(batches) == 2 && len(batches[0]) == 3 && len(batches[1]) == 3
	}, time.Second, 10*time.Millisecond, "each flush starts from an empty buffer")
}

func TestBatcherDropsNewestOnFullQueue(t *testing.T) {
	var once sync.Once

	flushing := make(chan struct{})
	blocked := make(chan struct{})

	b := New("logs", Config{
		MaxBatchSize:  1,
		FlushInterval: time.Hour,
		QueueSize:     2,
	}, func(context.Context, []int) error {
		once.Do(func() { close(flushing) })
		<-blocked
		return nil
	}, logger.NewTestLogger())

	// The writer picks up the first item and parks in the blocked flush;
	// the next two fill the queue; everything after is shed.
	require.True(t, b.TryAdd(0))
	<-flushing

	require.True(t, b.TryAdd(1))
	require.True(t, b.TryAdd(2))

	for i := 3; i < 10; i++ {
		assert.False(t, b.TryAdd(i))
	}

	assert.Equal(t, int64(7), b.Dropped())

	close(blocked)
	require.NoError(t, b.Close(context.Background()))
}

func TestBatcherRetriesThenSucceeds(t *testing.T) {
	c := &collector{fail: 2}
	b := New("logs", Config{
		MaxBatchSize:  2,
		FlushInterval: time.Hour,
		MaxRetries:    3,
		RetryBackoff:  time.Millisecond,
	}, c.flush, logger.NewTestLogger())
	defer b.Close(context.Background())

	require.True(t, b.TryAdd(1))
	require.True(t, b.TryAdd(2))

	assert.Eventually(t, func() bool {
		return c.total() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestBatcherDropsBatchAfterExhaustedRetries(t *testing.T) {
	c := &collector{fail: 100}
	b := New("logs", Config{
		MaxBatchSize:  2,
		FlushInterval: time.Hour,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
	}, c.flush, logger.NewTestLogger())

	require.True(t, b.TryAdd(1))
	require.True(t, b.TryAdd(2))

	// All attempts fail; Close must still return promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))

	assert.Empty(t, c.snapshot())
}

func TestBatcherCloseFlushesRemainder(t *testing.T) {
	c := &collector{}
	b := New("logs", Config{
		MaxBatchSize:  100,
		FlushInterval: time.Hour,
	}, c.flush, logger.NewTestLogger())

	for i := 0; i < 7; i++ {
		require.True(t, b.TryAdd(i))
	}

	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 7, c.total())
}

func TestBatcherCloseIsIdempotent(t *testing.T) {
	b := New("logs", Config{}, func(context.Context, []int) error { return nil },
		logger.NewTestLogger())

	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))
}
