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

// Package app assembles the kartex server: configuration, persistence,
// ingest listeners, realtime fan-out and the alert engine, with ordered
// shutdown on SIGINT/SIGTERM.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kartexhq/kartex/pkg/alerting"
	"github.com/kartexhq/kartex/pkg/auth"
	"github.com/kartexhq/kartex/pkg/batcher"
	"github.com/kartexhq/kartex/pkg/config"
	"github.com/kartexhq/kartex/pkg/hub"
	"github.com/kartexhq/kartex/pkg/listener"
	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/metrics"
	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/notify"
	"github.com/kartexhq/kartex/pkg/store"
	"github.com/kartexhq/kartex/pkg/telemetry"
	"github.com/kartexhq/kartex/pkg/version"
)

const (
	metricsBroadcastInterval = 5 * time.Second
	shutdownTimeout          = 15 * time.Second
)

var errAllListenersFailed = errors.New("all listeners failed")

// Options carries the command-line surface.
type Options struct {
	ConfigPath string
}

// Run starts the server and blocks until SIGINT/SIGTERM or a fatal error.
func Run(ctx context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog, err := logger.New(logger.Config{Level: "info"})
	if err != nil {
		return err
	}

	var cfg config.ServerConfig
	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.NewPostgres(ctx, cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer st.Close()

	batchCfg := batcher.Config{
		MaxBatchSize:  cfg.Batching.BatchSize,
		FlushInterval: cfg.Batching.FlushInterval.Duration(),
		QueueSize:     cfg.Batching.QueueSize,
		MaxRetries:    cfg.Batching.MaxRetries,
		RetryBackoff:  cfg.Batching.RetryBackoff.Duration(),
		FlushTimeout:  cfg.Batching.FlushTimeout.Duration(),
	}

	logBatcher := batcher.New("logs", batchCfg, st.InsertLogs, log)
	spanBatcher := batcher.New("spans", batchCfg, st.InsertSpans, log)

	tracker := metrics.NewTracker(log)
	broadcast := hub.New(cfg.Hub.QueueSize, log)

	notifier, closeNotifier, err := buildNotifier(&cfg, log)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	defer closeNotifier()

	engine := alerting.New(st, tracker, notifier, alerting.Config{
		Interval: cfg.Alerting.Interval.Duration(),
		Cooldown: cfg.Alerting.Cooldown.Duration(),
	}, log)

	sink := &ingestSink{
		logs:    logBatcher,
		spans:   spanBatcher,
		tracker: tracker,
		hub:     broadcast,
	}

	listeners := buildListeners(&cfg, sink, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		fatalErr atomic.Pointer[error]
	)

	fatal := func(err error) {
		fatalErr.CompareAndSwap(nil, &err)
		cancel()
	}

	remaining := int64(len(listeners))

	for _, l := range listeners {
		wg.Add(1)

		go func(l listener.Listener) {
			defer wg.Done()

			err := l.Start(runCtx)
			if err == nil || runCtx.Err() != nil {
				return
			}

			log.Error().Err(err).Str("listener", l.Name()).Msg("Listener failed; protocol disabled")

			if atomic.AddInt64(&remaining, -1) == 0 {
				fatal(fmt.Errorf("%w: last was %s: %w", errAllListenersFailed, l.Name(), err))
			}
		}(l)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		tracker.RunBroadcast(runCtx, metricsBroadcastInterval, broadcast)
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()
		engine.Run(runCtx)
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := serveRealtime(runCtx, cfg.Hub.Addr, broadcast, log); err != nil {
			log.Error().Err(err).Msg("Realtime listener failed")
		}
	}()

	if !cfg.Telemetry.Disabled {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := telemetry.NewServer(cfg.Telemetry.Addr, log).Start(runCtx); err != nil {
				log.Error().Err(err).Msg("Telemetry listener failed")
			}
		}()
	}

	log.Info().Str("version", version.GetFullVersion()).Msg("kartex started")

	<-runCtx.Done()
	log.Info().Msg("Shutting down")

	cancel()
	wg.Wait()

	// Listeners are stopped; drain what made it into the queues.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer flushCancel()

	if err := logBatcher.Close(flushCtx); err != nil {
		log.Error().Err(err).Msg("Log batcher drain failed")
	}

	if err := spanBatcher.Close(flushCtx); err != nil {
		log.Error().Err(err).Msg("Span batcher drain failed")
	}

	tracker.Stop()

	if errp := fatalErr.Load(); errp != nil {
		return *errp
	}

	return nil
}

// ingestSink fans each accepted event out to persistence, the metrics
// window and the realtime hub. Called inline from receive loops, so every
// branch is non-blocking.
type ingestSink struct {
	logs    *batcher.Batcher[*models.LogEvent]
	spans   *batcher.Batcher[*models.Span]
	tracker *metrics.Tracker
	hub     *hub.Hub
}

func (s *ingestSink) AcceptLog(event *models.LogEvent) {
	s.tracker.RecordLog(event.Level)
	s.logs.TryAdd(event)
	s.hub.BroadcastLog(event)
}

func (s *ingestSink) AcceptSpan(span *models.Span) {
	s.tracker.RecordSpan()
	s.spans.TryAdd(span)
	s.hub.BroadcastSpan(span)
}

func buildNotifier(cfg *config.ServerConfig, log logger.Logger) (notify.Notifier, func(), error) {
	if cfg.NATS == nil {
		return notify.NewLogNotifier(log), func() {}, nil
	}

	n, err := notify.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix, log)
	if err != nil {
		return nil, nil, err
	}

	return n, n.Close, nil
}

func buildListeners(cfg *config.ServerConfig, sink listener.Sink, log logger.Logger) []listener.Listener {
	ls := cfg.Listeners

	var out []listener.Listener

	if !ls.CustomUDP.Disabled {
		verifier := auth.NewVerifier([]byte(cfg.AuthSecret))
		out = append(out, listener.NewCustomListener(ls.CustomUDP.Addr, verifier, sink, log))
	}

	if !ls.GELFUDP.Disabled {
		out = append(out, listener.NewGELFListener(ls.GELFUDP.Addr, sink, log))
	}

	if !ls.SyslogUDP.Disabled {
		out = append(out, listener.NewSyslogUDPListener(ls.SyslogUDP.Addr, sink, log))
	}

	if !ls.SyslogTCP.Disabled {
		out = append(out, listener.NewSyslogTCPListener(ls.SyslogTCP.Addr, ls.SyslogMaxFrame, sink, log))
	}

	if !ls.OTLPGRPC.Disabled {
		out = append(out, listener.NewOTLPGRPCServer(ls.OTLPGRPC.Addr, sink, log))
	}

	if !ls.OTLPHTTP.Disabled {
		out = append(out, listener.NewOTLPHTTPServer(ls.OTLPHTTP.Addr, sink, log))
	}

	return out
}

// serveRealtime exposes the WebSocket stream on its own listener.
func serveRealtime(ctx context.Context, addr string, h *hub.Hub, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.NewWSHandler(h, log))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().Str("addr", addr).Msg("Realtime listener started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}
