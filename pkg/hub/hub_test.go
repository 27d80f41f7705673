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

package hub

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

func drainConnected(t *testing.T, sub *Subscriber) {
	t.Helper()

	env := <-sub.C
	require.Equal(t, TypeConnected, env.Type)
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	h := New(16, logger.NewTestLogger())

	a := h.Subscribe()
	b := h.Subscribe()
	drainConnected(t, a)
	drainConnected(t, b)

	h.BroadcastLog(&models.LogEvent{Message: "one"})

	for _, sub := range []*Subscriber{a, b} {
		env := <-sub.C
		assert.Equal(t, TypeLog, env.Type)

		event, ok := env.Data.(*models.LogEvent)
		require.True(t, ok)
		assert.Equal(t, "one", event.Message)
	}
}

func TestHubStalledSubscriberDoesNotBlockActiveOne(t *testing.T) {
	h := New(4, logger.NewTestLogger())

	stalled := h.Subscribe() // never reads
	active := h.Subscribe()
	drainConnected(t, active)

	const total = 100

	for i := 0; i < total; i++ {
		h.BroadcastLog(&models.LogEvent{Message: fmt.Sprintf("m-%d", i)})

		// The active subscriber sees every message, in order.
		env := <-active.C
		assert.Equal(t, fmt.Sprintf("m-%d", i), env.Data.(*models.LogEvent).Message)
	}

	// The stalled one kept only its queue's worth, shedding the oldest.
	assert.Equal(t, int64(total+1-4), stalled.dropped.Load())
	assert.Len(t, stalled.C, 4)
}

func TestHubStalledSubscriberDropsOldest(t *testing.T) {
	h := New(2, logger.NewTestLogger())

	sub := h.Subscribe()
	drainConnected(t, sub)

	for i := 0; i < 5; i++ {
		h.BroadcastLog(&models.LogEvent{Message: fmt.Sprintf("m-%d", i)})
	}

	// Queue of 2 holds the newest two messages.
	assert.Equal(t, "m-3", (<-sub.C).Data.(*models.LogEvent).Message)
	assert.Equal(t, "m-4", (<-sub.C).Data.(*models.LogEvent).Message)
}

func TestHubUnsubscribe(t *testing.T) {
	h := New(16, logger.NewTestLogger())

	sub := h.Subscribe()
	require.Equal(t, 1, h.Subscribers())

	h.Unsubscribe(sub.ID)
	assert.Equal(t, 0, h.Subscribers())

	// Channel is closed; broadcasting must not panic.
	h.BroadcastLog(&models.LogEvent{Message: "after"})
	h.Unsubscribe(sub.ID) // idempotent
}

func TestHubBroadcastTypes(t *testing.T) {
	h := New(16, logger.NewTestLogger())

	sub := h.Subscribe()
	drainConnected(t, sub)

	h.BroadcastLog(&models.LogEvent{})
	h.BroadcastSpan(&models.Span{})
	h.BroadcastMetrics(models.MetricsSnapshot{})

	assert.Equal(t, TypeLog, (<-sub.C).Type)
	assert.Equal(t, TypeSpan, (<-sub.C).Type)
	assert.Equal(t, TypeMetrics, (<-sub.C).Type)
}
