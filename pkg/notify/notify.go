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

// Package notify dispatches alert firings to notification channels. Only
// the decision to fire is produced here; the per-channel delivery (Slack,
// PagerDuty, ...) is an external consumer of the published events.
package notify

import (
	"context"
	"errors"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

var ErrDispatchFailed = errors.New("notification dispatch failed")

// Notifier delivers one alert firing to one channel. A failed dispatch is
// logged and never rolls back the alert's trigger state.
type Notifier interface {
	Send(ctx context.Context, channel *models.NotificationChannel, event *models.AlertEvent) error
}

// LogNotifier writes firings to the server log. It is the fallback when no
// event bus is configured.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Send(_ context.Context, channel *models.NotificationChannel, event *models.AlertEvent) error {
	n.logger.Warn().
		Str("rule", event.RuleName).
		Str("channel", channel.Name).
		Str("channel_type", string(channel.Type)).
		Str("condition", string(event.Condition.Type)).
		Float64("threshold", event.Condition.Threshold).
		Float64("actual", event.ActualValue).
		Msg("Alert fired")

	return nil
}
