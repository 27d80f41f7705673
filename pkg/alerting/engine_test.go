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

package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/store"
)

type fakeStore struct {
	store.Service

	rules      []*models.AlertRule
	channels   []*models.NotificationChannel
	levelCount int64
	triggered  []string
}

func (f *fakeStore) ListAlertRules(context.Context) ([]*models.AlertRule, error) {
	return f.rules, nil
}

func (f *fakeStore) ListNotificationChannels(context.Context) ([]*models.NotificationChannel, error) {
	return f.channels, nil
}

func (f *fakeStore) CountLogsSince(context.Context, models.LogLevel, time.Time) (int64, error) {
	return f.levelCount, nil
}

func (f *fakeStore) MarkAlertTriggered(_ context.Context, ruleID string, _ time.Time) error {
	f.triggered = append(f.triggered, ruleID)
	return nil
}

type fixedSnapshot struct {
	snap models.MetricsSnapshot
}

func (f *fixedSnapshot) Snapshot() models.MetricsSnapshot {
	return f.snap
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) Send(_ context.Context, channel *models.NotificationChannel, _ *models.AlertEvent) error {
	n.sent = append(n.sent, channel.ID)
	return nil
}

func newTestEngine(s *fakeStore, snap models.MetricsSnapshot, n *recordingNotifier) *Engine {
	return New(s, &fixedSnapshot{snap: snap}, n, Config{}, logger.NewTestLogger())
}

func errorRateRule(threshold float64) *models.AlertRule {
	return &models.AlertRule{
		ID:      "rule-1",
		Name:    "high error rate",
		Enabled: true,
		Condition: models.AlertCondition{
			Type:      models.ConditionErrorRate,
			Threshold: threshold,
		},
	}
}

func TestEngineFiresOnStrictlyGreater(t *testing.T) {
	s := &fakeStore{rules: []*models.AlertRule{errorRateRule(0.05)}}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 0.06}, &recordingNotifier{})

	e.Evaluate(context.Background())

	assert.Equal(t, []string{"rule-1"}, s.triggered)
}

func TestEngineDoesNotFireAtThreshold(t *testing.T) {
	s := &fakeStore{rules: []*models.AlertRule{errorRateRule(0.05)}}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 0.05}, &recordingNotifier{})

	e.Evaluate(context.Background())

	assert.Empty(t, s.triggered)
}

func TestEngineCooldownSuppression(t *testing.T) {
	s := &fakeStore{rules: []*models.AlertRule{errorRateRule(0.05)}}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 0.10}, &recordingNotifier{})

	e.Evaluate(context.Background())
	require.Len(t, s.triggered, 1)

	// Still over the threshold, but inside the cooldown window.
	e.Evaluate(context.Background())
	assert.Len(t, s.triggered, 1)

	// Once the cooldown has elapsed it fires again.
	e.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }
	e.Evaluate(context.Background())
	assert.Len(t, s.triggered, 2)
}

func TestEnginePerRuleCooldownOverride(t *testing.T) {
	rule := errorRateRule(0.05)
	rule.CooldownSeconds = 1

	s := &fakeStore{rules: []*models.AlertRule{rule}}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 0.10}, &recordingNotifier{})

	e.Evaluate(context.Background())
	require.Len(t, s.triggered, 1)

	e.now = func() time.Time { return time.Now().UTC().Add(2 * time.Second) }
	e.Evaluate(context.Background())
	assert.Len(t, s.triggered, 2)
}

func TestEngineDisabledRuleNeverEvaluated(t *testing.T) {
	rule := errorRateRule(0.05)
	rule.Enabled = false

	s := &fakeStore{rules: []*models.AlertRule{rule}}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 1.0}, &recordingNotifier{})

	e.Evaluate(context.Background())

	assert.Empty(t, s.triggered)
	assert.Nil(t, rule.LastTriggered)
	assert.Zero(t, rule.TriggerCount)
}

func TestEngineLevelCountCondition(t *testing.T) {
	rule := &models.AlertRule{
		ID:      "rule-lc",
		Name:    "fatal burst",
		Enabled: true,
		Condition: models.AlertCondition{
			Type:      models.ConditionLevelCount,
			Threshold: 10,
			Level:     models.LevelFatal,
		},
	}

	s := &fakeStore{rules: []*models.AlertRule{rule}, levelCount: 11}
	e := newTestEngine(s, models.MetricsSnapshot{}, &recordingNotifier{})

	e.Evaluate(context.Background())
	require.Len(t, s.triggered, 1)

	s.levelCount = 10
	s.triggered = nil
	rule.LastTriggered = nil

	e.Evaluate(context.Background())
	assert.Empty(t, s.triggered)
}

func TestEngineDispatchesEnabledChannelsOnly(t *testing.T) {
	rule := errorRateRule(0.05)
	rule.NotificationChannels = []string{"ch-on", "ch-off", "ch-missing"}

	s := &fakeStore{
		rules: []*models.AlertRule{rule},
		channels: []*models.NotificationChannel{
			{ID: "ch-on", Name: "slack", Type: models.ChannelSlack, Enabled: true},
			{ID: "ch-off", Name: "pd", Type: models.ChannelPagerDuty, Enabled: false},
		},
	}

	n := &recordingNotifier{}
	e := newTestEngine(s, models.MetricsSnapshot{ErrorRate: 0.10}, n)

	e.Evaluate(context.Background())

	assert.Equal(t, []string{"ch-on"}, n.sent)
	assert.Len(t, s.triggered, 1)
}

func TestEngineConditionValues(t *testing.T) {
	snap := models.MetricsSnapshot{
		ErrorRate:       0.25,
		ErrorsPerSecond: 3.5,
		LogsPerSecond:   120,
	}

	s := &fakeStore{levelCount: 7}
	e := newTestEngine(s, snap, &recordingNotifier{})

	tests := []struct {
		cond     models.AlertCondition
		expected float64
	}{
		{models.AlertCondition{Type: models.ConditionErrorRate}, 0.25},
		{models.AlertCondition{Type: models.ConditionErrorsPerSecond}, 3.5},
		{models.AlertCondition{Type: models.ConditionLogsPerSecond}, 120},
		{models.AlertCondition{Type: models.ConditionLevelCount, Level: models.LevelError}, 7},
	}

	for _, tt := range tests {
		value, err := e.conditionValue(context.Background(), tt.cond, snap)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, value, "condition %s", tt.cond.Type)
	}

	_, err := e.conditionValue(context.Background(), models.AlertCondition{Type: "bogus"}, snap)
	assert.Error(t, err)
}

func TestActionRunnerWebhook(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewActionRunner(logger.NewTestLogger())
	err := r.Run(context.Background(), models.AlertAction{
		Type: models.ActionWebhook,
		URL:  srv.URL,
	}, &models.AlertEvent{RuleName: "r", Message: "m"})

	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestActionRunnerWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewActionRunner(logger.NewTestLogger())
	err := r.Run(context.Background(), models.AlertAction{
		Type: models.ActionWebhook,
		URL:  srv.URL,
	}, &models.AlertEvent{})

	assert.Error(t, err)
}

func TestActionRunnerLogAction(t *testing.T) {
	r := NewActionRunner(logger.NewTestLogger())

	assert.NoError(t, r.Run(context.Background(), models.AlertAction{Type: models.ActionLog}, &models.AlertEvent{}))
	assert.NoError(t, r.Run(context.Background(), models.AlertAction{}, &models.AlertEvent{}))
	assert.Error(t, r.Run(context.Background(), models.AlertAction{Type: "carrier-pigeon"}, &models.AlertEvent{}))
}
