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

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

// NATSNotifier publishes alert firings as CloudEvents onto a JetStream
// stream; channel-specific delivery workers consume them from there.
type NATSNotifier struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	stream  string
	subject string
	logger  logger.Logger
}

type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`
}

// NewNATSNotifier connects and ensures the alert stream exists.
func NewNATSNotifier(url, stream, subjectPrefix string, log logger.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("kartex-alerts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrDispatchFailed, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: jetstream: %w", ErrDispatchFailed, err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{subjectPrefix + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: ensure stream: %w", ErrDispatchFailed, err)
		}
	}

	log.Info().Str("stream", stream).Str("url", url).Msg("Connected alert notifier to JetStream")

	return &NATSNotifier{
		conn:    conn,
		js:      js,
		stream:  stream,
		subject: subjectPrefix,
		logger:  log,
	}, nil
}

func (n *NATSNotifier) Send(ctx context.Context, channel *models.NotificationChannel, event *models.AlertEvent) error {
	payload := struct {
		Channel *models.NotificationChannel `json:"channel"`
		Alert   *models.AlertEvent          `json:"alert"`
	}{Channel: channel, Alert: event}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrDispatchFailed, err)
	}

	ce := cloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          "kartex/alerting",
		Type:            "io.kartex.alert.fired",
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	body, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", ErrDispatchFailed, err)
	}

	subject := fmt.Sprintf("%s.%s", n.subject, channel.Type)

	if _, err := n.js.Publish(subject, body, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrDispatchFailed, subject, err)
	}

	return nil
}

// Close drains in-flight publishes before disconnecting.
func (n *NATSNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn().Err(err).Msg("NATS drain failed")
	}
}
