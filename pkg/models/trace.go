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

// TraceSummary is the derived, list-friendly view of a trace. It is
// computed from the span collection, never stored verbatim.
type TraceSummary struct {
	TraceID      string         `json:"trace_id"`
	RootSpanName string         `json:"root_span_name"`
	Service      string         `json:"service"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	DurationMS   float64        `json:"duration_ms"`
	SpanCount    int            `json:"span_count"`
	ErrorCount   int            `json:"error_count"`
	Status       SpanStatusCode `json:"status"`
}

// TraceDetail is a full trace: its spans ordered by start time and the log
// events sharing its trace ID ordered by timestamp.
type TraceDetail struct {
	TraceID string      `json:"trace_id"`
	Spans   []*Span     `json:"spans"`
	Logs    []*LogEvent `json:"logs"`
}
