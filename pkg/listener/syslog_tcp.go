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

package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/parser"
	"github.com/kartexhq/kartex/pkg/telemetry"
)

const defaultMaxSyslogFrame = 64 * 1024

// SyslogTCPListener accepts octet-counting framed (RFC 5425) or
// newline-framed syslog streams, one goroutine per connection.
type SyslogTCPListener struct {
	addr     string
	maxFrame int
	sink     Sink
	logger   logger.Logger
}

func NewSyslogTCPListener(addr string, maxFrame int, sink Sink, log logger.Logger) *SyslogTCPListener {
	if maxFrame <= 0 {
		maxFrame = defaultMaxSyslogFrame
	}

	return &SyslogTCPListener{
		addr:     addr,
		maxFrame: maxFrame,
		sink:     sink,
		logger:   log,
	}
}

func (l *SyslogTCPListener) Name() string { return "syslog-tcp" }

// Start accepts until ctx is canceled. Connections drain independently; a
// misbehaving sender costs only its own connection.
func (l *SyslogTCPListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("syslog-tcp: bind %s: %w", l.addr, err)
	}

	l.logger.Info().Str("listener", l.Name()).Str("addr", l.addr).Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}

			return fmt.Errorf("syslog-tcp: accept: %w", err)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			l.serveConn(ctx, conn)
		}()
	}
}

func (l *SyslogTCPListener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sourceIP := sourceIPFromAddr(conn.RemoteAddr())
	framer := parser.NewFramer(l.maxFrame)
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msgs, ferr := framer.Feed(buf[:n])

			for _, msg := range msgs {
				l.handleMessage(msg, sourceIP)
			}

			if ferr != nil {
				// Oversized or unparseable frame: the stream cannot be
				// resynchronized, drop the connection.
				if errors.Is(ferr, parser.ErrFrameTooLarge) {
					telemetry.ParseErrors.WithLabelValues(parser.ProtocolSyslog).Inc()
				}

				l.logger.Debug().Err(ferr).Str("source_ip", sourceIP).Msg("Closing syslog connection")

				return
			}
		}

		if err != nil {
			return
		}
	}
}

func (l *SyslogTCPListener) handleMessage(msg []byte, sourceIP string) {
	event, err := parser.ParseSyslog(msg, sourceIP)
	if err != nil {
		telemetry.ParseErrors.WithLabelValues(parser.ProtocolSyslog).Inc()
		l.logger.Debug().Err(err).Str("source_ip", sourceIP).Msg("Dropped malformed syslog message")

		return
	}

	l.sink.AcceptLog(event)
}
