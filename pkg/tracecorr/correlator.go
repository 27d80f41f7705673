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

// Package tracecorr assembles spans sharing a trace ID into trace views
// and resolves log-to-trace lookups.
package tracecorr

import (
	"context"
	"fmt"

	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/store"
)

// Correlator reads spans and logs back out of the store. A lookup that
// matches nothing is an empty result, not an error.
type Correlator struct {
	store store.Service
}

func New(s store.Service) *Correlator {
	return &Correlator{store: s}
}

// TraceDetail returns the full trace: spans ordered by start time and the
// log events sharing the trace ID ordered by timestamp.
func (c *Correlator) TraceDetail(ctx context.Context, traceID string) (*models.TraceDetail, error) {
	spans, err := c.store.GetTraceSpans(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace spans: %w", err)
	}

	logs, err := c.store.GetTraceLogs(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace logs: %w", err)
	}

	return &models.TraceDetail{
		TraceID: traceID,
		Spans:   spans,
		Logs:    logs,
	}, nil
}

// TraceForLog resolves the trace a stored log event belongs to. A log
// without a trace ID yields nil, nil.
func (c *Correlator) TraceForLog(ctx context.Context, logID string) (*models.TraceDetail, error) {
	event, err := c.store.GetLogByID(ctx, logID)
	if err != nil {
		return nil, err
	}

	if event.TraceID == "" {
		return nil, nil
	}

	return c.TraceDetail(ctx, event.TraceID)
}

// Summarize derives the list view of a trace from its spans. The root is
// the unique span with no parent; with zero or several candidates the
// earliest-starting span stands in. Duration runs from the earliest start
// to the latest end across all spans, since spans overlap.
func Summarize(spans []*models.Span) *models.TraceSummary {
	if len(spans) == 0 {
		return nil
	}

	var (
		root       *models.Span
		rootCount  int
		earliest   = spans[0]
		latest     = spans[0]
		minStart   = spans[0].StartTimeUnixNano
		maxEnd     = spans[0].EndTimeUnixNano
		errorCount int
	)

	for _, span := range spans {
		if span.IsRoot() {
			root = span
			rootCount++
		}

		if span.StartTimeUnixNano < minStart {
			minStart = span.StartTimeUnixNano
			earliest = span
		}

		if span.EndTimeUnixNano > maxEnd {
			maxEnd = span.EndTimeUnixNano
			latest = span
		}

		if span.Status.Code == models.StatusError {
			errorCount++
		}
	}

	if rootCount != 1 {
		root = earliest
	}

	status := models.StatusOK
	if errorCount > 0 {
		status = models.StatusError
	}

	return &models.TraceSummary{
		TraceID:      root.TraceID,
		RootSpanName: root.Name,
		Service:      root.Service,
		StartTime:    earliest.StartTime,
		EndTime:      latest.EndTime,
		DurationMS:   float64(maxEnd-minStart) / 1e6,
		SpanCount:    len(spans),
		ErrorCount:   errorCount,
		Status:       status,
	}
}
