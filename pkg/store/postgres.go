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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

// Postgres implements Service on a pgx connection pool, storing events as
// JSONB documents with materialized filter columns.
type Postgres struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Service = (*Postgres)(nil)

// NewPostgres connects, verifies the connection, and applies the schema.
func NewPostgres(ctx context.Context, dsn string, log logger.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	p := &Postgres{pool: pool, logger: log}

	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("Connected to Postgres and applied schema")

	return p, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

const insertLogSQL = `INSERT INTO logs (id, ts, service, level, trace_id, doc)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	ON CONFLICT (id) DO NOTHING`

func (p *Postgres) InsertLogs(ctx context.Context, events []*models.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}

		doc, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("%w: marshal log: %w", ErrInsertFailed, err)
		}

		batch.Queue(insertLogSQL, event.ID, event.Timestamp, event.Service,
			string(event.Level), event.TraceID, doc)
	}

	return p.sendBatch(ctx, batch)
}

const insertSpanSQL = `INSERT INTO spans (id, trace_id, start_ns, service, doc)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

func (p *Postgres) InsertSpans(ctx context.Context, spans []*models.Span) error {
	if len(spans) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, span := range spans {
		if span.ID == "" {
			span.ID = uuid.NewString()
		}

		doc, err := json.Marshal(span)
		if err != nil {
			return fmt.Errorf("%w: marshal span: %w", ErrInsertFailed, err)
		}

		batch.Queue(insertSpanSQL, span.ID, span.TraceID,
			int64(span.StartTimeUnixNano), span.Service, doc)
	}

	return p.sendBatch(ctx, batch)
}

func (p *Postgres) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: %w", ErrInsertFailed, err)
		}
	}

	return nil
}

func (p *Postgres) QueryLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEvent, error) {
	query, args := buildLogQuery(filter)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func (p *Postgres) GetLogByID(ctx context.Context, id string) (*models.LogEvent, error) {
	var doc []byte

	err := p.pool.QueryRow(ctx, `SELECT doc FROM logs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: log %s", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	var event models.LogEvent
	if err := json.Unmarshal(doc, &event); err != nil {
		return nil, fmt.Errorf("%w: decode log: %w", ErrQueryFailed, err)
	}

	return &event, nil
}

func (p *Postgres) CountLogsSince(ctx context.Context, level models.LogLevel, since time.Time) (int64, error) {
	var count int64

	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM logs WHERE level = $1 AND ts >= $2`,
		string(level), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return count, nil
}

func (p *Postgres) GetTraceSpans(ctx context.Context, traceID string) ([]*models.Span, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM spans WHERE trace_id = $1 ORDER BY start_ns ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var spans []*models.Span

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}

		var span models.Span
		if err := json.Unmarshal(doc, &span); err != nil {
			return nil, fmt.Errorf("%w: decode span: %w", ErrQueryFailed, err)
		}

		spans = append(spans, &span)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return spans, nil
}

func (p *Postgres) GetTraceLogs(ctx context.Context, traceID string) ([]*models.LogEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM logs WHERE trace_id = $1 ORDER BY ts ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func scanLogs(rows pgx.Rows) ([]*models.LogEvent, error) {
	var events []*models.LogEvent

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}

		var event models.LogEvent
		if err := json.Unmarshal(doc, &event); err != nil {
			return nil, fmt.Errorf("%w: decode log: %w", ErrQueryFailed, err)
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return events, nil
}

func (p *Postgres) ListAlertRules(ctx context.Context) ([]*models.AlertRule, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, doc, enabled, last_triggered, trigger_count, created_at, updated_at
		 FROM alert_rules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var rules []*models.AlertRule

	for rows.Next() {
		var (
			id            string
			doc           []byte
			enabled       bool
			lastTriggered *time.Time
			triggerCount  int64
			createdAt     time.Time
			updatedAt     time.Time
		)

		if err := rows.Scan(&id, &doc, &enabled, &lastTriggered, &triggerCount,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}

		var rule models.AlertRule
		if err := json.Unmarshal(doc, &rule); err != nil {
			return nil, fmt.Errorf("%w: decode rule: %w", ErrQueryFailed, err)
		}

		// Trigger state lives in its own columns so the engine's updates
		// never race a rule edit rewriting the document.
		rule.ID = id
		rule.Enabled = enabled
		rule.LastTriggered = lastTriggered
		rule.TriggerCount = triggerCount
		rule.CreatedAt = createdAt
		rule.UpdatedAt = updatedAt

		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return rules, nil
}

func (p *Postgres) SaveAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	doc, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("%w: marshal rule: %w", ErrInsertFailed, err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO alert_rules (id, name, enabled, doc)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, enabled = EXCLUDED.enabled,
		     doc = EXCLUDED.doc, updated_at = now()`,
		rule.ID, rule.Name, rule.Enabled, doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}

	return nil
}

func (p *Postgres) MarkAlertTriggered(ctx context.Context, ruleID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE alert_rules
		 SET last_triggered = $2, trigger_count = trigger_count + 1
		 WHERE id = $1`,
		ruleID, at)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rule %s", ErrNotFound, ruleID)
	}

	return nil
}

func (p *Postgres) ListNotificationChannels(ctx context.Context) ([]*models.NotificationChannel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, doc, enabled, created_at, updated_at
		 FROM notification_channels ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	var channels []*models.NotificationChannel

	for rows.Next() {
		var (
			id        string
			doc       []byte
			enabled   bool
			createdAt time.Time
			updatedAt time.Time
		)

		if err := rows.Scan(&id, &doc, &enabled, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}

		var channel models.NotificationChannel
		if err := json.Unmarshal(doc, &channel); err != nil {
			return nil, fmt.Errorf("%w: decode channel: %w", ErrQueryFailed, err)
		}

		channel.ID = id
		channel.Enabled = enabled
		channel.CreatedAt = createdAt
		channel.UpdatedAt = updatedAt

		channels = append(channels, &channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return channels, nil
}
