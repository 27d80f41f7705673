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
	"fmt"
	"strings"

	"github.com/kartexhq/kartex/pkg/models"
)

const defaultQueryLimit = 100

// buildLogQuery assembles the filtered log query. Results come back newest
// first; full-text search matches message, exception, service, and
// message_template via the GIN index.
func buildLogQuery(filter models.LogFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Level != nil {
		clauses = append(clauses, "level = "+arg(string(*filter.Level)))
	}

	if filter.Service != "" {
		clauses = append(clauses, "service = "+arg(filter.Service))
	}

	if filter.TraceID != "" {
		clauses = append(clauses, "trace_id = "+arg(filter.TraceID))
	}

	if filter.StartTime != nil {
		clauses = append(clauses, "ts >= "+arg(*filter.StartTime))
	}

	if filter.EndTime != nil {
		clauses = append(clauses, "ts <= "+arg(*filter.EndTime))
	}

	if filter.Search != "" {
		clauses = append(clauses,
			`to_tsvector('english',
				coalesce(doc->>'message', '') || ' ' ||
				coalesce(doc->>'exception', '') || ' ' ||
				coalesce(doc->>'service', '') || ' ' ||
				coalesce(doc->>'message_template', '')) @@ plainto_tsquery('english', `+arg(filter.Search)+`)`)
	}

	var b strings.Builder

	b.WriteString("SELECT doc FROM logs")

	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	b.WriteString(" ORDER BY ts DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	b.WriteString(" LIMIT " + arg(limit))

	if filter.Offset > 0 {
		b.WriteString(" OFFSET " + arg(filter.Offset))
	}

	return b.String(), args
}
