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

// Package alerting evaluates alert rules against the metrics window on a
// fixed interval. A single evaluator goroutine owns all trigger-state
// updates, so rules can never double-fire from concurrent ticks.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/notify"
	"github.com/kartexhq/kartex/pkg/store"
)

const (
	defaultInterval = 10 * time.Second
	defaultCooldown = 5 * time.Minute

	// level_count conditions count logs over this trailing window.
	levelCountWindow = time.Minute
)

// Snapshotter hands the engine the current metrics view.
type Snapshotter interface {
	Snapshot() models.MetricsSnapshot
}

// Config tunes the evaluation loop. Zero values take the defaults.
type Config struct {
	Interval time.Duration `json:"interval"`
	Cooldown time.Duration `json:"cooldown"`
}

// Engine runs rule evaluation. Construct with New, then Run from a single
// goroutine.
type Engine struct {
	store    store.Service
	metrics  Snapshotter
	notifier notify.Notifier
	actions  *ActionRunner
	interval time.Duration
	cooldown time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func New(s store.Service, m Snapshotter, n notify.Notifier, cfg Config, log logger.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}

	return &Engine{
		store:    s,
		metrics:  m,
		notifier: n,
		actions:  NewActionRunner(log),
		interval: cfg.Interval,
		cooldown: cfg.Cooldown,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run evaluates every interval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", e.interval).Msg("Alert engine started")

	for {
		select {
		case <-ticker.C:
			e.Evaluate(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Evaluate runs one pass over all rules.
func (e *Engine) Evaluate(ctx context.Context) {
	rules, err := e.store.ListAlertRules(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load alert rules")
		return
	}

	if len(rules) == 0 {
		return
	}

	channels, err := e.store.ListNotificationChannels(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to load notification channels")
		channels = nil
	}

	snap := e.metrics.Snapshot()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		e.evaluateRule(ctx, rule, snap, channels)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule *models.AlertRule, snap models.MetricsSnapshot, channels []*models.NotificationChannel) {
	value, err := e.conditionValue(ctx, rule.Condition, snap)
	if err != nil {
		e.logger.Error().Err(err).Str("rule", rule.Name).Msg("Condition evaluation failed")
		return
	}

	// Strictly greater than: a value equal to the threshold never fires.
	if value <= rule.Condition.Threshold {
		return
	}

	now := e.now()

	if rule.LastTriggered != nil && now.Sub(*rule.LastTriggered) < rule.Cooldown(e.cooldown) {
		return
	}

	event := &models.AlertEvent{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Condition:   rule.Condition,
		ActualValue: value,
		Message: fmt.Sprintf("%s: %s is %.4f (threshold %.4f)",
			rule.Name, rule.Condition.Type, value, rule.Condition.Threshold),
		TriggeredAt: now,
	}

	e.fire(ctx, rule, event, channels)
}

func (e *Engine) conditionValue(ctx context.Context, cond models.AlertCondition, snap models.MetricsSnapshot) (float64, error) {
	switch cond.Type {
	case models.ConditionErrorRate:
		return snap.ErrorRate, nil
	case models.ConditionErrorsPerSecond:
		return snap.ErrorsPerSecond, nil
	case models.ConditionLogsPerSecond:
		return snap.LogsPerSecond, nil
	case models.ConditionLevelCount:
		count, err := e.store.CountLogsSince(ctx, cond.Level, e.now().Add(-levelCountWindow))
		if err != nil {
			return 0, err
		}

		return float64(count), nil
	default:
		return 0, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// fire dispatches the action and every enabled notification channel, then
// records the trigger. Dispatch failures are logged and never roll back
// the trigger-state update: the decision to fire already happened.
func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, event *models.AlertEvent, channels []*models.NotificationChannel) {
	e.logger.Warn().
		Str("rule", rule.Name).
		Str("condition", string(rule.Condition.Type)).
		Float64("actual", event.ActualValue).
		Float64("threshold", rule.Condition.Threshold).
		Msg("Alert rule fired")

	if err := e.actions.Run(ctx, rule.Action, event); err != nil {
		e.logger.Error().Err(err).Str("rule", rule.Name).Msg("Alert action failed")
	}

	for _, id := range rule.NotificationChannels {
		channel := findChannel(channels, id)
		if channel == nil || !channel.Enabled {
			continue
		}

		if err := e.notifier.Send(ctx, channel, event); err != nil {
			e.logger.Error().
				Err(err).
				Str("rule", rule.Name).
				Str("channel", channel.Name).
				Msg("Notification dispatch failed")
		}
	}

	if err := e.store.MarkAlertTriggered(ctx, rule.ID, event.TriggeredAt); err != nil {
		e.logger.Error().Err(err).Str("rule", rule.Name).Msg("Failed to record trigger")
		return
	}

	// Keep the in-memory copy coherent for the rest of this pass.
	triggered := event.TriggeredAt
	rule.LastTriggered = &triggered
	rule.TriggerCount++
}

func findChannel(channels []*models.NotificationChannel, id string) *models.NotificationChannel {
	for _, c := range channels {
		if c.ID == id {
			return c
		}
	}

	return nil
}
