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

// Package telemetry exposes the server's own operational counters.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartexhq/kartex/pkg/logger"
)

var (
	// AuthFailures counts dropped custom-UDP packets with a bad or
	// missing signature.
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartex_auth_failures_total",
		Help: "Packets rejected by HMAC verification.",
	})

	// ParseErrors counts malformed payloads per ingest protocol.
	ParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kartex_parse_errors_total",
		Help: "Malformed payloads dropped, by protocol.",
	}, []string{"protocol"})

	// EventsDropped counts events shed after successful parsing, by the
	// stage that shed them (queue, flush, hub).
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kartex_events_dropped_total",
		Help: "Parsed events dropped, by stage.",
	}, []string{"stage"})

	// BatchFlushFailures counts batches abandoned after exhausting
	// flush retries.
	BatchFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kartex_batch_flush_failures_total",
		Help: "Batches dropped after exhausting persistence retries.",
	})

	// Subscribers tracks currently connected realtime subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kartex_subscribers",
		Help: "Connected realtime subscribers.",
	})
)

// Server serves /metrics on a dedicated admin listener.
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

func NewServer(addr string, log logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("Telemetry listener started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.srv.Shutdown(shutdownCtx)
	}
}
