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

// LogEvent is the canonical form every ingest protocol normalizes into.
// A LogEvent is immutable once constructed; the fan-out consumers share a
// pointer and never mutate it.
type LogEvent struct {
	ID              string                 `json:"id,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Level           LogLevel               `json:"level"`
	Service         string                 `json:"service"`
	Message         string                 `json:"message"`
	MessageTemplate string                 `json:"message_template,omitempty"`
	Exception       string                 `json:"exception,omitempty"`
	EventID         string                 `json:"event_id,omitempty"`
	TraceID         string                 `json:"trace_id,omitempty"`
	SpanID          string                 `json:"span_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	SourceIP        string                 `json:"source_ip"`
	CreatedAt       time.Time              `json:"created_at"`
}

// LogFilter narrows a log query against the persistence layer.
type LogFilter struct {
	Level     *LogLevel
	Service   string
	TraceID   string
	Search    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}
