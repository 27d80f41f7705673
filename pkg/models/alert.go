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

package models

import "time"

// AlertConditionType selects which metric an alert rule evaluates.
type AlertConditionType string

const (
	ConditionErrorRate       AlertConditionType = "error_rate"
	ConditionErrorsPerSecond AlertConditionType = "errors_per_second"
	ConditionLogsPerSecond   AlertConditionType = "logs_per_second"
	ConditionLevelCount      AlertConditionType = "level_count"
)

// AlertCondition fires when the observed value is strictly greater than
// Threshold. LevelCount conditions additionally name the level to count
// over the trailing minute.
type AlertCondition struct {
	Type      AlertConditionType `json:"type"`
	Threshold float64            `json:"threshold"`
	Level     LogLevel           `json:"level,omitempty"`
}

// AlertActionType selects what happens when a rule fires.
type AlertActionType string

const (
	ActionWebhook AlertActionType = "webhook"
	ActionLog     AlertActionType = "log"
)

// AlertAction is the rule's primary side effect. Notification channels are
// dispatched in addition to the action.
type AlertAction struct {
	Type   AlertActionType `json:"type"`
	URL    string          `json:"url,omitempty"`
	Method string          `json:"method,omitempty"`
}

// AlertRule is a persisted alert definition. The engine mutates only
// LastTriggered and TriggerCount; a disabled rule is never evaluated and
// never touches its trigger state.
type AlertRule struct {
	ID                   string         `json:"id,omitempty"`
	Name                 string         `json:"name"`
	Enabled              bool           `json:"enabled"`
	Condition            AlertCondition `json:"condition"`
	Action               AlertAction    `json:"action"`
	NotificationChannels []string       `json:"notification_channels,omitempty"`
	CooldownSeconds      int            `json:"cooldown_seconds,omitempty"`
	LastTriggered        *time.Time     `json:"last_triggered,omitempty"`
	TriggerCount         int64          `json:"trigger_count"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Cooldown returns the rule's suppression window, falling back to def when
// the rule does not set one.
func (r *AlertRule) Cooldown(def time.Duration) time.Duration {
	if r.CooldownSeconds > 0 {
		return time.Duration(r.CooldownSeconds) * time.Second
	}

	return def
}

// AlertEvent records a single firing of a rule.
type AlertEvent struct {
	RuleID      string         `json:"rule_id"`
	RuleName    string         `json:"rule_name"`
	Condition   AlertCondition `json:"condition"`
	ActualValue float64        `json:"actual_value"`
	Message     string         `json:"message"`
	TriggeredAt time.Time      `json:"triggered_at"`
}
