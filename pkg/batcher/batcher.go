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

// Package batcher decouples the receive path from storage latency: events
// are queued on a bounded channel and flushed in bulk on size or time
// thresholds by a single writer goroutine per collection.
package batcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/telemetry"
)

const (
	defaultMaxBatchSize  = 100
	defaultFlushInterval = 100 * time.Millisecond
	defaultQueueSize     = 10000
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 250 * time.Millisecond
	defaultFlushTimeout  = 10 * time.Second
)

// Config tunes one batcher. Zero values take the defaults above.
type Config struct {
	MaxBatchSize  int           `json:"max_batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	QueueSize     int           `json:"queue_size"`
	MaxRetries    int           `json:"max_retries"`
	RetryBackoff  time.Duration `json:"retry_backoff"`
	FlushTimeout  time.Duration `json:"flush_timeout"`
}

func (c *Config) withDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}

	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}

	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
}

// FlushFunc writes one batch to the persistence layer.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Batcher buffers items of one collection. TryAdd never blocks; the writer
// goroutine owns the buffer and is the only caller of flush.
type Batcher[T any] struct {
	name      string
	cfg       Config
	flush     FlushFunc[T]
	queue     chan T
	logger    logger.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

// New starts the writer goroutine immediately.
func New[T any](name string, cfg Config, flush FlushFunc[T], log logger.Logger) *Batcher[T] {
	cfg.withDefaults()

	b := &Batcher[T]{
		name:   name,
		cfg:    cfg,
		flush:  flush,
		queue:  make(chan T, cfg.QueueSize),
		logger: log,
	}

	b.wg.Add(1)

	go b.run()

	return b
}

// TryAdd enqueues one item. When the queue is full the item is dropped and
// counted; a listener is never blocked by a slow store.
func (b *Batcher[T]) TryAdd(item T) bool {
	select {
	case b.queue <- item:
		return true
	default:
		b.dropped.Add(1)
		telemetry.EventsDropped.WithLabelValues("queue").Inc()
		return false
	}
}

// Dropped returns the number of items shed on enqueue since start.
func (b *Batcher[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting items, drains the queue, and performs a final
// flush, bounded by ctx.
func (b *Batcher[T]) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.queue)
	})

	done := make(chan struct{})

	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Batcher[T]) run() {
	defer b.wg.Done()

	buf := make([]T, 0, b.cfg.MaxBatchSize)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case item, ok := <-b.queue:
			if !ok {
				// Drain anything still queued, then final flush.
				for item := range b.queue {
					buf = append(buf, item)
				}

				if len(buf) > 0 {
					b.doFlush(buf)
				}

				return
			}

			buf = append(buf, item)

			if len(buf) >= b.cfg.MaxBatchSize {
				buf = b.doFlush(buf)
				ticker.Reset(b.cfg.FlushInterval)
			}
		case <-ticker.C:
			if len(buf) > 0 {
				buf = b.doFlush(buf)
			}
		}
	}
}

// doFlush writes the batch with bounded retries, returning an empty buffer
// that reuses the underlying array. After the last failed retry the batch
// is dropped and counted.
func (b *Batcher[T]) doFlush(buf []T) []T {
	batch := make([]T, len(buf))
	copy(batch, buf)

	var lastErr error

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.cfg.RetryBackoff * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
		lastErr = b.flush(ctx, batch)
		cancel()

		if lastErr == nil {
			return buf[:0]
		}
	}

	telemetry.BatchFlushFailures.Inc()
	telemetry.EventsDropped.WithLabelValues("flush").Add(float64(len(batch)))
	b.logger.Error().
		Err(lastErr).
		Str("collection", b.name).
		Int("batch_size", len(batch)).
		Msg("Dropping batch after exhausting flush retries")

	return buf[:0]
}
