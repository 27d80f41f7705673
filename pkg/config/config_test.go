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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kartex.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"auth_secret": "s3cret",
		"database": {"dsn": "postgres://kartex@localhost/kartex"},
		"batching": {"flush_interval": "250ms"},
		"alerting": {"cooldown": "1m"}
	}`)

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "s3cret", cfg.AuthSecret)
	assert.Equal(t, 250*time.Millisecond, cfg.Batching.FlushInterval.Duration())
	assert.Equal(t, time.Minute, cfg.Alerting.Cooldown.Duration())

	// Defaults filled in.
	assert.Equal(t, ":9514", cfg.Listeners.CustomUDP.Addr)
	assert.Equal(t, ":4318", cfg.Listeners.OTLPHTTP.Addr)
	assert.Equal(t, 100, cfg.Batching.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Alerting.Interval.Duration())
	assert.Equal(t, 256, cfg.Hub.QueueSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadAndValidateMissingDSN(t *testing.T) {
	path := writeConfigFile(t, `{"auth_secret": "s3cret"}`)

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, ErrMissingDatabaseDSN)
}

func TestLoadAndValidateMissingSecret(t *testing.T) {
	path := writeConfigFile(t, `{"database": {"dsn": "postgres://x"}}`)

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, ErrMissingAuthSecret)
}

func TestSecretNotRequiredWhenCustomDisabled(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"dsn": "postgres://x"},
		"listeners": {"custom_udp": {"disabled": true}}
	}`)

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))
	assert.True(t, cfg.Listeners.CustomUDP.Disabled)
}

func TestAllListenersDisabledRejected(t *testing.T) {
	cfg := ServerConfig{
		AuthSecret: "s",
		Database:   DatabaseConfig{DSN: "postgres://x"},
	}
	cfg.Listeners.CustomUDP.Disabled = true
	cfg.Listeners.GELFUDP.Disabled = true
	cfg.Listeners.SyslogUDP.Disabled = true
	cfg.Listeners.SyslogTCP.Disabled = true
	cfg.Listeners.OTLPGRPC.Disabled = true
	cfg.Listeners.OTLPHTTP.Disabled = true

	assert.ErrorIs(t, cfg.Validate(), ErrNoListenersEnabled)
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("KARTEX_AUTH_SECRET", "env-secret")
	t.Setenv("KARTEX_DATABASE_DSN", "postgres://env")
	t.Setenv("KARTEX_BATCHING_BATCH_SIZE", "500")
	t.Setenv("KARTEX_BATCHING_FLUSH_INTERVAL", "2s")
	t.Setenv("KARTEX_LISTENERS_GELF_UDP_DISABLED", "true")
	t.Setenv("KARTEX_NATS_URL", "nats://localhost:4222")

	var cfg ServerConfig

	loader := NewEnvConfigLoader(logger.NewTestLogger(), "KARTEX_")
	require.NoError(t, loader.Load(context.Background(), "", &cfg))

	assert.Equal(t, "env-secret", cfg.AuthSecret)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, 500, cfg.Batching.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Batching.FlushInterval.Duration())
	assert.True(t, cfg.Listeners.GELFUDP.Disabled)
	require.NotNil(t, cfg.NATS)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestEnvLoaderConfigJSONWins(t *testing.T) {
	t.Setenv("KARTEX_CONFIG_JSON", `{"auth_secret": "json-secret"}`)
	t.Setenv("KARTEX_AUTH_SECRET", "ignored")

	var cfg ServerConfig

	loader := NewEnvConfigLoader(logger.NewTestLogger(), "KARTEX_")
	require.NoError(t, loader.Load(context.Background(), "", &cfg))
	assert.Equal(t, "json-secret", cfg.AuthSecret)
}

func TestLoadAndValidateEnvSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("KARTEX_AUTH_SECRET", "env-secret")
	t.Setenv("KARTEX_DATABASE_DSN", "postgres://env")

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, "env-secret", cfg.AuthSecret)
}

func TestLoadAndValidateBadSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg ServerConfig

	c := NewConfig(logger.NewTestLogger())
	assert.Error(t, c.LoadAndValidate(context.Background(), "", &cfg))
}

func TestDurationJSONForms(t *testing.T) {
	var d models.Duration

	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`"not-a-duration"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}
