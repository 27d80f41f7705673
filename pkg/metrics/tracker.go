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

package metrics

import (
	"context"
	"time"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

const recordQueueSize = 4096

// Broadcaster receives the periodic snapshot pushed to realtime
// subscribers.
type Broadcaster interface {
	BroadcastMetrics(snapshot models.MetricsSnapshot)
}

// Tracker owns the sliding window. A single goroutine applies records,
// rotates the window every second, and answers snapshot requests, so the
// window itself needs no locking.
type Tracker struct {
	logCh  chan models.LogLevel
	spanCh chan struct{}
	snapCh chan chan models.MetricsSnapshot
	stop   chan struct{}
	logger logger.Logger
}

func NewTracker(log logger.Logger) *Tracker {
	t := &Tracker{
		logCh:  make(chan models.LogLevel, recordQueueSize),
		spanCh: make(chan struct{}, recordQueueSize),
		snapCh: make(chan chan models.MetricsSnapshot),
		stop:   make(chan struct{}),
		logger: log,
	}

	go t.run()

	return t
}

// RecordLog counts one ingested log. Non-blocking: under extreme burst the
// sample is dropped rather than stalling a listener.
func (t *Tracker) RecordLog(level models.LogLevel) {
	select {
	case t.logCh <- level:
	default:
	}
}

// RecordSpan counts one ingested span.
func (t *Tracker) RecordSpan() {
	select {
	case t.spanCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the current window view.
func (t *Tracker) Snapshot() models.MetricsSnapshot {
	reply := make(chan models.MetricsSnapshot, 1)

	select {
	case t.snapCh <- reply:
		return <-reply
	case <-t.stop:
		return models.MetricsSnapshot{Timestamp: time.Now().UTC()}
	}
}

// Stop terminates the tracker goroutine.
func (t *Tracker) Stop() {
	close(t.stop)
}

func (t *Tracker) run() {
	var w window

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case level := <-t.logCh:
			w.RecordLog(level)
		case <-t.spanCh:
			w.RecordSpan()
		case <-ticker.C:
			w.Rotate()
		case reply := <-t.snapCh:
			reply <- w.Snapshot(time.Now().UTC())
		case <-t.stop:
			return
		}
	}
}

// RunBroadcast pushes a snapshot to the hub every interval until ctx is
// canceled.
func (t *Tracker) RunBroadcast(ctx context.Context, interval time.Duration, sink Broadcaster) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Debug().Dur("interval", interval).Msg("Metrics broadcaster started")

	for {
		select {
		case <-ticker.C:
			sink.BroadcastMetrics(t.Snapshot())
		case <-ctx.Done():
			return
		}
	}
}
