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

package models

import "time"

// MetricsSnapshot is a point-in-time view of the sliding one-minute window.
// Per-second rates are trailing-5-second averages; ErrorRate is errors over
// total across the full window, 0 when the window is empty.
type MetricsSnapshot struct {
	Timestamp        time.Time          `json:"timestamp"`
	LogsPerSecond    float64            `json:"logs_per_second"`
	ErrorsPerSecond  float64            `json:"errors_per_second"`
	SpansPerSecond   float64            `json:"spans_per_second"`
	ErrorRate        float64            `json:"error_rate"`
	LogsLastMinute   int64              `json:"logs_last_minute"`
	ErrorsLastMinute int64              `json:"errors_last_minute"`
	SpansLastMinute  int64              `json:"spans_last_minute"`
	LogsByLevel      map[LogLevel]int64 `json:"logs_by_level"`
}

// LevelCount returns the windowed count for one level, 0 when absent.
func (s *MetricsSnapshot) LevelCount(level LogLevel) int64 {
	if s.LogsByLevel == nil {
		return 0
	}

	return s.LogsByLevel[level]
}
