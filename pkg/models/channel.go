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

// NotificationChannelType identifies the delivery mechanism of a channel.
type NotificationChannelType string

const (
	ChannelSlack     NotificationChannelType = "slack"
	ChannelDiscord   NotificationChannelType = "discord"
	ChannelPagerDuty NotificationChannelType = "pagerduty"
	ChannelEmail     NotificationChannelType = "email"
	ChannelWebhook   NotificationChannelType = "webhook"
)

// NotificationChannel is a persisted notification target. Settings holds
// type-specific configuration (webhook URL, routing key, addresses).
type NotificationChannel struct {
	ID        string                  `json:"id,omitempty"`
	Name      string                  `json:"name"`
	Type      NotificationChannelType `json:"type"`
	Settings  map[string]interface{}  `json:"settings"`
	Enabled   bool                    `json:"enabled"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}
