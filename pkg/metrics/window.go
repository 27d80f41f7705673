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

// Package metrics maintains the sliding one-minute ingestion window that
// feeds the alert engine and the realtime broadcast.
package metrics

import (
	"time"

	"github.com/kartexhq/kartex/pkg/models"
)

const (
	windowSize   = 60 // one bucket per second
	rateSpan     = 5  // trailing seconds averaged into per-second rates
	levelBuckets = 6
)

var levelOrder = [levelBuckets]models.LogLevel{
	models.LevelTrace, models.LevelDebug, models.LevelInfo,
	models.LevelWarn, models.LevelError, models.LevelFatal,
}

func levelIndex(level models.LogLevel) int {
	for i, l := range levelOrder {
		if l == level {
			return i
		}
	}

	return 2 // INFO
}

type bucket struct {
	logs    int64
	errors  int64
	spans   int64
	byLevel [levelBuckets]int64
}

// window is the circular per-second bucket store. It has no locking: it is
// owned by the Tracker goroutine, which is its only caller.
type window struct {
	buckets [windowSize]bucket
	current int
}

// RecordLog counts one log in the current second.
func (w *window) RecordLog(level models.LogLevel) {
	b := &w.buckets[w.current]
	b.logs++
	b.byLevel[levelIndex(level)]++

	if level.IsError() {
		b.errors++
	}
}

// RecordSpan counts one span in the current second.
func (w *window) RecordSpan() {
	w.buckets[w.current].spans++
}

// Rotate advances to the next second, discarding the oldest bucket.
func (w *window) Rotate() {
	w.current = (w.current + 1) % windowSize
	w.buckets[w.current] = bucket{}
}

// Snapshot derives the metrics view over the full window. ErrorRate is 0,
// never NaN, when the window is empty.
func (w *window) Snapshot(now time.Time) models.MetricsSnapshot {
	var (
		totalLogs, totalErrors, totalSpans    int64
		recentLogs, recentErrors, recentSpans int64
		byLevel                               [levelBuckets]int64
	)

	for i := 0; i < windowSize; i++ {
		b := &w.buckets[i]
		totalLogs += b.logs
		totalErrors += b.errors
		totalSpans += b.spans

		for j := 0; j < levelBuckets; j++ {
			byLevel[j] += b.byLevel[j]
		}
	}

	for i := 0; i < rateSpan; i++ {
		b := &w.buckets[(w.current-i+windowSize)%windowSize]
		recentLogs += b.logs
		recentErrors += b.errors
		recentSpans += b.spans
	}

	snap := models.MetricsSnapshot{
		Timestamp:        now,
		LogsPerSecond:    float64(recentLogs) / rateSpan,
		ErrorsPerSecond:  float64(recentErrors) / rateSpan,
		SpansPerSecond:   float64(recentSpans) / rateSpan,
		LogsLastMinute:   totalLogs,
		ErrorsLastMinute: totalErrors,
		SpansLastMinute:  totalSpans,
		LogsByLevel:      make(map[models.LogLevel]int64, levelBuckets),
	}

	if totalLogs > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(totalLogs)
	}

	for i, level := range levelOrder {
		if byLevel[i] > 0 {
			snap.LogsByLevel[level] = byLevel[i]
		}
	}

	return snap
}
