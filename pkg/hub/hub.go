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

// Package hub fans newly ingested events out to realtime subscribers.
// Delivery is best-effort and per-subscriber: a stalled subscriber drops
// its own oldest messages and never blocks ingestion or its peers.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/telemetry"
)

// Envelope is the typed frame pushed to subscribers.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Envelope types.
const (
	TypeLog       = "log"
	TypeSpan      = "span"
	TypeMetrics   = "metrics"
	TypeConnected = "connected"
	TypeError     = "error"
)

const defaultQueueSize = 256

// Subscriber is one realtime consumer. Read from C; the hub closes it on
// Unsubscribe.
type Subscriber struct {
	ID string
	C  chan Envelope

	dropped atomic.Int64
}

// Hub is the subscriber registry. Safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	queueSize int
	logger    logger.Logger
}

func New(queueSize int, log logger.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Hub{
		subs:      make(map[string]*Subscriber),
		queueSize: queueSize,
		logger:    log,
	}
}

// Subscribe registers a new consumer and immediately queues the connected
// handshake frame.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.NewString(),
		C:  make(chan Envelope, h.queueSize),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	telemetry.Subscribers.Inc()
	h.logger.Debug().Str("subscriber_id", sub.ID).Msg("Subscriber connected")

	sub.C <- Envelope{Type: TypeConnected, Data: map[string]string{
		"subscriber_id": sub.ID,
		"connected_at":  time.Now().UTC().Format(time.RFC3339),
	}}

	return sub
}

// Unsubscribe removes the consumer and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]

	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	close(sub.C)
	telemetry.Subscribers.Dec()
	h.logger.Debug().
		Str("subscriber_id", id).
		Int64("dropped", sub.dropped.Load()).
		Msg("Subscriber disconnected")
}

// Subscribers returns the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

func (h *Hub) BroadcastLog(event *models.LogEvent) {
	h.broadcast(Envelope{Type: TypeLog, Data: event})
}

func (h *Hub) BroadcastSpan(span *models.Span) {
	h.broadcast(Envelope{Type: TypeSpan, Data: span})
}

func (h *Hub) BroadcastMetrics(snapshot models.MetricsSnapshot) {
	h.broadcast(Envelope{Type: TypeMetrics, Data: snapshot})
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		sub.enqueue(env)
	}
}

// enqueue delivers one frame, shedding the subscriber's oldest undelivered
// frame on overflow so the publisher never blocks.
func (s *Subscriber) enqueue(env Envelope) {
	for {
		select {
		case s.C <- env:
			return
		default:
			select {
			case <-s.C:
				s.dropped.Add(1)
				telemetry.EventsDropped.WithLabelValues("hub").Inc()
			default:
			}
		}
	}
}
