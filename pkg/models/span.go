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

// SpanKind mirrors the OTLP span kinds.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = "UNSPECIFIED"
	SpanKindInternal    SpanKind = "INTERNAL"
	SpanKindServer      SpanKind = "SERVER"
	SpanKindClient      SpanKind = "CLIENT"
	SpanKindProducer    SpanKind = "PRODUCER"
	SpanKindConsumer    SpanKind = "CONSUMER"
)

// SpanKindFromOTLP maps the OTLP numeric span kind to the canonical kind.
func SpanKindFromOTLP(kind int32) SpanKind {
	switch kind {
	case 1:
		return SpanKindInternal
	case 2:
		return SpanKindServer
	case 3:
		return SpanKindClient
	case 4:
		return SpanKindProducer
	case 5:
		return SpanKindConsumer
	default:
		return SpanKindUnspecified
	}
}

// SpanStatusCode mirrors the OTLP status codes.
type SpanStatusCode string

const (
	StatusUnset SpanStatusCode = "UNSET"
	StatusOK    SpanStatusCode = "OK"
	StatusError SpanStatusCode = "ERROR"
)

// StatusCodeFromOTLP maps the OTLP numeric status code to the canonical code.
func StatusCodeFromOTLP(code int32) SpanStatusCode {
	switch code {
	case 1:
		return StatusOK
	case 2:
		return StatusError
	default:
		return StatusUnset
	}
}

type SpanStatus struct {
	Code    SpanStatusCode `json:"code"`
	Message string         `json:"message,omitempty"`
}

// SpanEvent is a timestamped annotation within a span.
type SpanEvent struct {
	Name         string                 `json:"name"`
	Timestamp    time.Time              `json:"timestamp"`
	TimeUnixNano uint64                 `json:"time_unix_nano"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// SpanLink references a span in another trace.
type SpanLink struct {
	TraceID    string                 `json:"trace_id"`
	SpanID     string                 `json:"span_id"`
	TraceState string                 `json:"trace_state,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Span is a single timed operation within a distributed trace. Invariant:
// EndTimeUnixNano >= StartTimeUnixNano.
type Span struct {
	ID                 string                 `json:"id,omitempty"`
	TraceID            string                 `json:"trace_id"`
	SpanID             string                 `json:"span_id"`
	ParentSpanID       string                 `json:"parent_span_id,omitempty"`
	TraceState         string                 `json:"trace_state,omitempty"`
	Name               string                 `json:"name"`
	Service            string                 `json:"service"`
	Kind               SpanKind               `json:"kind"`
	StartTime          time.Time              `json:"start_time"`
	EndTime            time.Time              `json:"end_time"`
	StartTimeUnixNano  uint64                 `json:"start_time_unix_nano"`
	EndTimeUnixNano    uint64                 `json:"end_time_unix_nano"`
	DurationMS         float64                `json:"duration_ms"`
	Status             SpanStatus             `json:"status"`
	Attributes         map[string]interface{} `json:"attributes,omitempty"`
	Events             []SpanEvent            `json:"events,omitempty"`
	Links              []SpanLink             `json:"links,omitempty"`
	ResourceAttributes map[string]interface{} `json:"resource_attributes,omitempty"`
	ScopeName          string                 `json:"scope_name,omitempty"`
	ScopeVersion       string                 `json:"scope_version,omitempty"`
	SourceIP           string                 `json:"source_ip"`
	CreatedAt          time.Time              `json:"created_at"`
}

// IsRoot reports whether the span is a candidate trace root.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}
