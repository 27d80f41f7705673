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

package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/kartexhq/kartex/pkg/models"
)

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func TestParseOTLPLogs(t *testing.T) {
	now := time.Date(2025, 1, 28, 10, 30, 0, 0, time.UTC)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{
					stringAttr("service.name", "orders"),
					stringAttr("deployment.environment", "prod"),
				},
			},
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					TimeUnixNano:   uint64(now.UnixNano()),
					SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_ERROR,
					Body:           &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "order failed"}},
					Attributes:     []*commonpb.KeyValue{stringAttr("order.id", "o-1")},
					TraceId:        []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
					SpanId:         []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
				}},
			}},
		}},
	}

	events := ParseOTLPLogs(req, "10.0.0.5")
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "orders", event.Service)
	assert.Equal(t, models.LevelError, event.Level)
	assert.Equal(t, "order failed", event.Message)
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", event.TraceID)
	assert.Equal(t, "0102030405060708", event.SpanID)
	assert.Equal(t, "o-1", event.Metadata["order.id"])
	assert.Equal(t, "prod", event.Metadata["resource.deployment.environment"])
	assert.NotContains(t, event.Metadata, "resource.service.name")
}

func TestParseOTLPLogsObservedTimeFallback(t *testing.T) {
	observed := time.Date(2025, 1, 28, 10, 31, 0, 0, time.UTC)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					ObservedTimeUnixNano: uint64(observed.UnixNano()),
					Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "m"}},
				}},
			}},
		}},
	}

	events := ParseOTLPLogs(req, "10.0.0.5")
	require.Len(t, events, 1)
	assert.Equal(t, observed, events[0].Timestamp)
	assert.Equal(t, "unknown", events[0].Service)
}

func TestOTLPSeverityBands(t *testing.T) {
	tests := []struct {
		num      logspb.SeverityNumber
		expected models.LogLevel
	}{
		{logspb.SeverityNumber_SEVERITY_NUMBER_TRACE, models.LevelTrace},
		{logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG2, models.LevelDebug},
		{logspb.SeverityNumber_SEVERITY_NUMBER_INFO, models.LevelInfo},
		{logspb.SeverityNumber_SEVERITY_NUMBER_WARN3, models.LevelWarn},
		{logspb.SeverityNumber_SEVERITY_NUMBER_ERROR, models.LevelError},
		{logspb.SeverityNumber_SEVERITY_NUMBER_FATAL4, models.LevelFatal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, otlpLevel(tt.num, ""), "severity %v", tt.num)
	}

	// Unspecified severity falls back to text, then INFO.
	assert.Equal(t, models.LevelWarn, otlpLevel(0, "warn"))
	assert.Equal(t, models.LevelInfo, otlpLevel(0, "mystery"))
}

func TestParseOTLPSpans(t *testing.T) {
	start := time.Date(2025, 1, 28, 10, 30, 0, 0, time.UTC)
	end := start.Add(250 * time.Millisecond)

	req := &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{stringAttr("service.name", "payments")},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: "payments-sdk", Version: "1.2.0"},
				Spans: []*tracepb.Span{{
					TraceId:           []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xaa, 0xbb, 0xcc, 0xdd, 0xaa, 0xbb, 0xcc, 0xdd, 0xaa, 0xbb, 0xcc, 0xdd},
					SpanId:            []byte{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01},
					Name:              "charge",
					Kind:              tracepb.Span_SPAN_KIND_SERVER,
					StartTimeUnixNano: uint64(start.UnixNano()),
					EndTimeUnixNano:   uint64(end.UnixNano()),
					Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR, Message: "card declined"},
					Attributes:        []*commonpb.KeyValue{stringAttr("payment.method", "card")},
					Events: []*tracepb.Span_Event{{
						TimeUnixNano: uint64(start.Add(100 * time.Millisecond).UnixNano()),
						Name:         "gateway.call",
					}},
				}},
			}},
		}},
	}

	spans := ParseOTLPSpans(req, "10.0.0.5")
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "payments", span.Service)
	assert.Equal(t, "charge", span.Name)
	assert.Equal(t, models.SpanKindServer, span.Kind)
	assert.Equal(t, "aabbccddaabbccddaabbccddaabbccdd", span.TraceID)
	assert.Equal(t, "0101010101010101", span.SpanID)
	assert.Empty(t, span.ParentSpanID)
	assert.True(t, span.IsRoot())
	assert.Equal(t, models.StatusError, span.Status.Code)
	assert.Equal(t, "card declined", span.Status.Message)
	assert.InDelta(t, 250.0, span.DurationMS, 0.001)
	assert.Equal(t, "card", span.Attributes["payment.method"])
	assert.Equal(t, "payments-sdk", span.ScopeName)
	assert.Equal(t, "1.2.0", span.ScopeVersion)
	require.Len(t, span.Events, 1)
	assert.Equal(t, "gateway.call", span.Events[0].Name)
}

func TestParseOTLPEmptyRequests(t *testing.T) {
	assert.Empty(t, ParseOTLPLogs(&collogspb.ExportLogsServiceRequest{}, "10.0.0.5"))
	assert.Empty(t, ParseOTLPSpans(&coltracepb.ExportTraceServiceRequest{}, "10.0.0.5"))
}
