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

package store

import (
	"context"
	"fmt"
)

// Events are stored as JSONB documents with the hot filter columns
// materialized alongside. The full-text index covers the searchable
// string fields of the document.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS logs (
		id UUID PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		service TEXT NOT NULL,
		level TEXT NOT NULL,
		trace_id TEXT,
		doc JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_ts ON logs (ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_service ON logs (service)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_level ON logs (level)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_trace_id ON logs (trace_id) WHERE trace_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_logs_search ON logs USING GIN (
		to_tsvector('english',
			coalesce(doc->>'message', '') || ' ' ||
			coalesce(doc->>'exception', '') || ' ' ||
			coalesce(doc->>'service', '') || ' ' ||
			coalesce(doc->>'message_template', ''))
	)`,
	`CREATE TABLE IF NOT EXISTS spans (
		id UUID PRIMARY KEY,
		trace_id TEXT NOT NULL,
		start_ns BIGINT NOT NULL,
		service TEXT NOT NULL,
		doc JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans (trace_id)`,
	`CREATE INDEX IF NOT EXISTS idx_spans_start_ns ON spans (start_ns DESC)`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		doc JSONB NOT NULL,
		last_triggered TIMESTAMPTZ,
		trigger_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notification_channels (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		doc JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrateFailed, err)
		}
	}

	return nil
}
