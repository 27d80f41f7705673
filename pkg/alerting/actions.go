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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

const webhookTimeout = 10 * time.Second

// ActionRunner executes a rule's primary action.
type ActionRunner struct {
	client *http.Client
	logger logger.Logger
}

func NewActionRunner(log logger.Logger) *ActionRunner {
	return &ActionRunner{
		client: &http.Client{Timeout: webhookTimeout},
		logger: log,
	}
}

func (r *ActionRunner) Run(ctx context.Context, action models.AlertAction, event *models.AlertEvent) error {
	switch action.Type {
	case models.ActionWebhook:
		return r.webhook(ctx, action, event)
	case models.ActionLog, "":
		r.logger.Warn().
			Str("rule", event.RuleName).
			Str("message", event.Message).
			Msg("Alert")

		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (r *ActionRunner) webhook(ctx context.Context, action models.AlertAction, event *models.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	method := action.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, action.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", action.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", action.URL, resp.StatusCode)
	}

	return nil
}
