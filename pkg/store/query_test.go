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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kartexhq/kartex/pkg/models"
)

func TestBuildLogQueryNoFilter(t *testing.T) {
	query, args := buildLogQuery(models.LogFilter{})

	assert.Equal(t, "SELECT doc FROM logs ORDER BY ts DESC LIMIT $1", query)
	assert.Equal(t, []interface{}{defaultQueryLimit}, args)
}

func TestBuildLogQueryAllFilters(t *testing.T) {
	level := models.LevelError
	start := time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	query, args := buildLogQuery(models.LogFilter{
		Level:     &level,
		Service:   "checkout",
		TraceID:   "t-1",
		StartTime: &start,
		EndTime:   &end,
		Limit:     50,
		Offset:    100,
	})

	assert.Contains(t, query, "level = $1")
	assert.Contains(t, query, "service = $2")
	assert.Contains(t, query, "trace_id = $3")
	assert.Contains(t, query, "ts >= $4")
	assert.Contains(t, query, "ts <= $5")
	assert.Contains(t, query, "LIMIT $6")
	assert.Contains(t, query, "OFFSET $7")
	assert.Contains(t, query, "ORDER BY ts DESC")
	assert.Equal(t, []interface{}{"ERROR", "checkout", "t-1", start, end, 50, 100}, args)
}

func TestBuildLogQuerySearch(t *testing.T) {
	query, args := buildLogQuery(models.LogFilter{Search: "timeout"})

	assert.Contains(t, query, "plainto_tsquery('english', $1)")
	assert.Contains(t, query, "to_tsvector")
	assert.Equal(t, []interface{}{"timeout", defaultQueryLimit}, args)
}
