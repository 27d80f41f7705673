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
	"encoding/hex"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/kartexhq/kartex/pkg/models"
)

// ParseOTLPLogs flattens an ExportLogsServiceRequest into canonical log
// events: resource → scope → record, with resource attributes folded into
// metadata under a "resource." prefix and service.name promoted to Service.
func ParseOTLPLogs(req *collogspb.ExportLogsServiceRequest, sourceIP string) []*models.LogEvent {
	var events []*models.LogEvent

	for _, rl := range req.GetResourceLogs() {
		service, resourceMeta := resourceInfo(rl.GetResource().GetAttributes())

		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				events = append(events, otlpLogEvent(rec, service, resourceMeta, sourceIP))
			}
		}
	}

	return events
}

func otlpLogEvent(rec *logspb.LogRecord, service string, resourceMeta map[string]interface{}, sourceIP string) *models.LogEvent {
	ts := time.Now().UTC()

	switch {
	case rec.GetTimeUnixNano() > 0:
		ts = time.Unix(0, int64(rec.GetTimeUnixNano())).UTC()
	case rec.GetObservedTimeUnixNano() > 0:
		ts = time.Unix(0, int64(rec.GetObservedTimeUnixNano())).UTC()
	}

	meta := make(map[string]interface{}, len(resourceMeta)+len(rec.GetAttributes()))

	for k, v := range resourceMeta {
		meta[k] = v
	}

	for _, kv := range rec.GetAttributes() {
		meta[kv.GetKey()] = anyValue(kv.GetValue())
	}

	if len(meta) == 0 {
		meta = nil
	}

	return &models.LogEvent{
		Timestamp: ts,
		Level:     otlpLevel(rec.GetSeverityNumber(), rec.GetSeverityText()),
		Service:   service,
		Message:   anyValueString(rec.GetBody()),
		TraceID:   hexID(rec.GetTraceId()),
		SpanID:    hexID(rec.GetSpanId()),
		Metadata:  meta,
		SourceIP:  sourceIP,
		CreatedAt: time.Now().UTC(),
	}
}

// ParseOTLPSpans flattens an ExportTraceServiceRequest into canonical spans.
func ParseOTLPSpans(req *coltracepb.ExportTraceServiceRequest, sourceIP string) []*models.Span {
	var spans []*models.Span

	for _, rs := range req.GetResourceSpans() {
		service, resourceMeta := resourceInfo(rs.GetResource().GetAttributes())

		for _, ss := range rs.GetScopeSpans() {
			scopeName := ss.GetScope().GetName()
			scopeVersion := ss.GetScope().GetVersion()

			for _, sp := range ss.GetSpans() {
				start := time.Unix(0, int64(sp.GetStartTimeUnixNano())).UTC()
				end := time.Unix(0, int64(sp.GetEndTimeUnixNano())).UTC()

				span := &models.Span{
					TraceID:           hexID(sp.GetTraceId()),
					SpanID:            hexID(sp.GetSpanId()),
					ParentSpanID:      hexID(sp.GetParentSpanId()),
					TraceState:        sp.GetTraceState(),
					Name:              sp.GetName(),
					Service:           service,
					Kind:              models.SpanKindFromOTLP(int32(sp.GetKind())),
					StartTime:         start,
					EndTime:           end,
					StartTimeUnixNano: sp.GetStartTimeUnixNano(),
					EndTimeUnixNano:   sp.GetEndTimeUnixNano(),
					DurationMS:        float64(sp.GetEndTimeUnixNano()-sp.GetStartTimeUnixNano()) / 1e6,
					Status: models.SpanStatus{
						Code:    models.StatusCodeFromOTLP(int32(sp.GetStatus().GetCode())),
						Message: sp.GetStatus().GetMessage(),
					},
					Attributes:         attributeMap(sp.GetAttributes()),
					ResourceAttributes: resourceMeta,
					ScopeName:          scopeName,
					ScopeVersion:       scopeVersion,
					SourceIP:           sourceIP,
					CreatedAt:          time.Now().UTC(),
				}

				for _, ev := range sp.GetEvents() {
					span.Events = append(span.Events, models.SpanEvent{
						Name:         ev.GetName(),
						Timestamp:    time.Unix(0, int64(ev.GetTimeUnixNano())).UTC(),
						TimeUnixNano: ev.GetTimeUnixNano(),
						Attributes:   attributeMap(ev.GetAttributes()),
					})
				}

				for _, link := range sp.GetLinks() {
					span.Links = append(span.Links, models.SpanLink{
						TraceID:    hexID(link.GetTraceId()),
						SpanID:     hexID(link.GetSpanId()),
						TraceState: link.GetTraceState(),
						Attributes: attributeMap(link.GetAttributes()),
					})
				}

				spans = append(spans, span)
			}
		}
	}

	return spans
}

// resourceInfo extracts service.name and prefixes the remaining resource
// attributes for the metadata map.
func resourceInfo(attrs []*commonpb.KeyValue) (service string, meta map[string]interface{}) {
	service = "unknown"

	for _, kv := range attrs {
		if kv.GetKey() == "service.name" {
			if s, ok := anyValue(kv.GetValue()).(string); ok && s != "" {
				service = s
			}

			continue
		}

		if meta == nil {
			meta = make(map[string]interface{})
		}

		meta["resource."+kv.GetKey()] = anyValue(kv.GetValue())
	}

	return service, meta
}

func attributeMap(attrs []*commonpb.KeyValue) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}

	out := make(map[string]interface{}, len(attrs))

	for _, kv := range attrs {
		out[kv.GetKey()] = anyValue(kv.GetValue())
	}

	return out
}

func anyValue(v *commonpb.AnyValue) interface{} {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		out := make([]interface{}, 0, len(val.ArrayValue.GetValues()))

		for _, item := range val.ArrayValue.GetValues() {
			out = append(out, anyValue(item))
		}

		return out
	case *commonpb.AnyValue_KvlistValue:
		out := make(map[string]interface{}, len(val.KvlistValue.GetValues()))

		for _, kv := range val.KvlistValue.GetValues() {
			out[kv.GetKey()] = anyValue(kv.GetValue())
		}

		return out
	default:
		return nil
	}
}

func anyValueString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}

	if s, ok := v.GetValue().(*commonpb.AnyValue_StringValue); ok {
		return s.StringValue
	}

	return v.String()
}

func hexID(id []byte) string {
	if len(id) == 0 {
		return ""
	}

	return hex.EncodeToString(id)
}

// otlpLevel maps the OTLP severity number (1-24 in six bands) to the
// canonical level, falling back to the severity text when unspecified.
func otlpLevel(num logspb.SeverityNumber, text string) models.LogLevel {
	n := int32(num)

	switch {
	case n >= 1 && n <= 4:
		return models.LevelTrace
	case n >= 5 && n <= 8:
		return models.LevelDebug
	case n >= 9 && n <= 12:
		return models.LevelInfo
	case n >= 13 && n <= 16:
		return models.LevelWarn
	case n >= 17 && n <= 20:
		return models.LevelError
	case n >= 21 && n <= 24:
		return models.LevelFatal
	}

	if level, err := models.ParseLogLevel(text); err == nil {
		return level
	}

	return models.LevelInfo
}
