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

// Package store is the durable sink behind ingestion: bulk inserts from the
// batch writer, indexed reads for trace correlation and alert evaluation.
package store

import (
	"context"
	"time"

	"github.com/kartexhq/kartex/pkg/models"
)

// Service is the persistence interface consumed by the batcher, trace
// correlator, and alert engine. Implementations must be safe for
// concurrent use.
type Service interface {
	// Bulk writes from the batch writer.
	InsertLogs(ctx context.Context, events []*models.LogEvent) error
	InsertSpans(ctx context.Context, spans []*models.Span) error

	// Log queries.
	QueryLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEvent, error)
	GetLogByID(ctx context.Context, id string) (*models.LogEvent, error)
	CountLogsSince(ctx context.Context, level models.LogLevel, since time.Time) (int64, error)

	// Trace queries. Spans come back ordered by start time, logs by
	// timestamp; an unknown trace ID yields empty slices, not an error.
	GetTraceSpans(ctx context.Context, traceID string) ([]*models.Span, error)
	GetTraceLogs(ctx context.Context, traceID string) ([]*models.LogEvent, error)

	// Alerting configuration.
	ListAlertRules(ctx context.Context) ([]*models.AlertRule, error)
	SaveAlertRule(ctx context.Context, rule *models.AlertRule) error
	MarkAlertTriggered(ctx context.Context, ruleID string, at time.Time) error
	ListNotificationChannels(ctx context.Context) ([]*models.NotificationChannel, error)

	Close()
}
