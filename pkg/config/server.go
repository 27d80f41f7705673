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
	"errors"
	"time"

	"github.com/kartexhq/kartex/pkg/models"
)

var (
	ErrMissingAuthSecret  = errors.New("auth_secret is required while the custom UDP listener is enabled")
	ErrMissingDatabaseDSN = errors.New("database.dsn is required")
	ErrNoListenersEnabled = errors.New("at least one listener must be enabled")
)

// ServerConfig is the full kartex server configuration.
type ServerConfig struct {
	LogLevel   string          `json:"log_level,omitempty"`
	AuthSecret string          `json:"auth_secret"`
	Database   DatabaseConfig  `json:"database"`
	Listeners  ListenersConfig `json:"listeners"`
	Batching   BatchingConfig  `json:"batching"`
	Alerting   AlertingConfig  `json:"alerting"`
	Hub        HubConfig       `json:"hub"`
	NATS       *NATSConfig     `json:"nats,omitempty"`
	Telemetry  TelemetryConfig `json:"telemetry"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// ListenerConfig is one ingest transport. The zero value is enabled so a
// config file only has to mention the transports it wants to turn off.
type ListenerConfig struct {
	Disabled bool   `json:"disabled,omitempty"`
	Addr     string `json:"addr,omitempty"`
}

type ListenersConfig struct {
	CustomUDP      ListenerConfig `json:"custom_udp"`
	GELFUDP        ListenerConfig `json:"gelf_udp"`
	SyslogUDP      ListenerConfig `json:"syslog_udp"`
	SyslogTCP      ListenerConfig `json:"syslog_tcp"`
	OTLPGRPC       ListenerConfig `json:"otlp_grpc"`
	OTLPHTTP       ListenerConfig `json:"otlp_http"`
	SyslogMaxFrame int            `json:"syslog_max_frame,omitempty"`
}

type BatchingConfig struct {
	BatchSize     int             `json:"batch_size,omitempty"`
	FlushInterval models.Duration `json:"flush_interval,omitempty"`
	QueueSize     int             `json:"queue_size,omitempty"`
	MaxRetries    int             `json:"max_retries,omitempty"`
	RetryBackoff  models.Duration `json:"retry_backoff,omitempty"`
	FlushTimeout  models.Duration `json:"flush_timeout,omitempty"`
}

type AlertingConfig struct {
	Interval models.Duration `json:"interval,omitempty"`
	Cooldown models.Duration `json:"cooldown,omitempty"`
}

type HubConfig struct {
	Addr      string `json:"addr,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
}

type NATSConfig struct {
	URL           string `json:"url"`
	Stream        string `json:"stream,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}

type TelemetryConfig struct {
	Disabled bool   `json:"disabled,omitempty"`
	Addr     string `json:"addr,omitempty"`
}

// Validate implements Validator. Defaults are applied first so a minimal
// config file with just auth_secret and database.dsn is runnable.
func (c *ServerConfig) Validate() error {
	c.setDefaults()

	if c.Database.DSN == "" {
		return ErrMissingDatabaseDSN
	}

	if !c.Listeners.CustomUDP.Disabled && c.AuthSecret == "" {
		return ErrMissingAuthSecret
	}

	if c.Listeners.allDisabled() {
		return ErrNoListenersEnabled
	}

	return nil
}

func (c *ServerConfig) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.Listeners.setDefaults()

	if c.Batching.BatchSize <= 0 {
		c.Batching.BatchSize = 100
	}

	if c.Batching.FlushInterval <= 0 {
		c.Batching.FlushInterval = models.Duration(100 * time.Millisecond)
	}

	if c.Batching.QueueSize <= 0 {
		c.Batching.QueueSize = 10000
	}

	if c.Batching.MaxRetries <= 0 {
		c.Batching.MaxRetries = 3
	}

	if c.Batching.RetryBackoff <= 0 {
		c.Batching.RetryBackoff = models.Duration(250 * time.Millisecond)
	}

	if c.Batching.FlushTimeout <= 0 {
		c.Batching.FlushTimeout = models.Duration(10 * time.Second)
	}

	if c.Alerting.Interval <= 0 {
		c.Alerting.Interval = models.Duration(10 * time.Second)
	}

	if c.Alerting.Cooldown <= 0 {
		c.Alerting.Cooldown = models.Duration(5 * time.Minute)
	}

	if c.Hub.Addr == "" {
		c.Hub.Addr = ":8080"
	}

	if c.Hub.QueueSize <= 0 {
		c.Hub.QueueSize = 256
	}

	if c.NATS != nil {
		if c.NATS.Stream == "" {
			c.NATS.Stream = "KARTEX_ALERTS"
		}

		if c.NATS.SubjectPrefix == "" {
			c.NATS.SubjectPrefix = "kartex.alerts"
		}
	}

	if c.Telemetry.Addr == "" {
		c.Telemetry.Addr = ":2112"
	}
}

func (l *ListenersConfig) setDefaults() {
	defaults := []struct {
		cfg  *ListenerConfig
		addr string
	}{
		{&l.CustomUDP, ":9514"},
		{&l.GELFUDP, ":12201"},
		{&l.SyslogUDP, ":514"},
		{&l.SyslogTCP, ":1514"},
		{&l.OTLPGRPC, ":4317"},
		{&l.OTLPHTTP, ":4318"},
	}

	for _, d := range defaults {
		if d.cfg.Addr == "" {
			d.cfg.Addr = d.addr
		}
	}

	if l.SyslogMaxFrame <= 0 {
		l.SyslogMaxFrame = 64 * 1024
	}
}

func (l *ListenersConfig) allDisabled() bool {
	return l.CustomUDP.Disabled && l.GELFUDP.Disabled && l.SyslogUDP.Disabled &&
		l.SyslogTCP.Disabled && l.OTLPGRPC.Disabled && l.OTLPHTTP.Disabled
}
