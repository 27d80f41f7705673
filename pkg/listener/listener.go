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

// Package listener binds the ingest transports and forwards every
// successfully parsed event to the shared sink. Parse and auth failures
// are counted and dropped; they never stop a receive loop.
package listener

import (
	"context"
	"fmt"
	"net"

	"github.com/kartexhq/kartex/pkg/auth"
	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/models"
	"github.com/kartexhq/kartex/pkg/parser"
	"github.com/kartexhq/kartex/pkg/telemetry"
)

// Sink receives every successfully parsed event. Implementations must not
// block: the receive loops call these inline.
type Sink interface {
	AcceptLog(event *models.LogEvent)
	AcceptSpan(span *models.Span)
}

// Listener is one ingest transport. Start blocks until ctx is canceled or
// the transport fails.
type Listener interface {
	Name() string
	Start(ctx context.Context) error
}

const udpReadBuffer = 64 * 1024

// PacketHandler processes one datagram. sourceIP is the sender address
// without the port.
type PacketHandler func(payload []byte, sourceIP string)

// UDPListener is the shared receive loop for the three datagram protocols.
type UDPListener struct {
	name    string
	addr    string
	handler PacketHandler
	logger  logger.Logger
}

func (l *UDPListener) Name() string { return l.name }

// Start binds and serves until ctx is canceled.
func (l *UDPListener) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return fmt.Errorf("%s: resolve %s: %w", l.name, l.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%s: bind %s: %w", l.name, l.addr, err)
	}

	l.logger.Info().Str("listener", l.name).Str("addr", l.addr).Msg("UDP listener started")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, udpReadBuffer)

	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("%s: read: %w", l.name, err)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		l.handler(payload, remote.IP.String())
	}
}

// NewCustomListener serves the authenticated custom-JSON/CLEF protocol:
// HMAC prefix verified first, payload parsed second. Bad signatures are
// dropped silently; replying would hand senders a reflection vector.
func NewCustomListener(addr string, verifier *auth.Verifier, sink Sink, log logger.Logger) *UDPListener {
	return &UDPListener{
		name: "custom-udp",
		addr: addr,
		handler: func(packet []byte, sourceIP string) {
			payload, err := verifier.Verify(packet)
			if err != nil {
				telemetry.AuthFailures.Inc()
				log.Debug().Err(err).Str("source_ip", sourceIP).Msg("Rejected unsigned packet")

				return
			}

			event, err := parser.ParseCustom(payload, sourceIP)
			if err != nil {
				telemetry.ParseErrors.WithLabelValues(parser.ProtocolCustom).Inc()
				log.Debug().Err(err).Str("source_ip", sourceIP).Msg("Dropped malformed custom payload")

				return
			}

			sink.AcceptLog(event)
		},
		logger: log,
	}
}

// NewGELFListener serves GELF 1.0/1.1 datagrams.
func NewGELFListener(addr string, sink Sink, log logger.Logger) *UDPListener {
	return &UDPListener{
		name: "gelf-udp",
		addr: addr,
		handler: func(datagram []byte, sourceIP string) {
			event, err := parser.ParseGELF(datagram, sourceIP)
			if err != nil {
				telemetry.ParseErrors.WithLabelValues(parser.ProtocolGELF).Inc()
				log.Debug().Err(err).Str("source_ip", sourceIP).Msg("Dropped malformed GELF datagram")

				return
			}

			sink.AcceptLog(event)
		},
		logger: log,
	}
}

// NewSyslogUDPListener serves RFC 3164/5424 syslog datagrams.
func NewSyslogUDPListener(addr string, sink Sink, log logger.Logger) *UDPListener {
	return &UDPListener{
		name: "syslog-udp",
		addr: addr,
		handler: func(datagram []byte, sourceIP string) {
			event, err := parser.ParseSyslog(datagram, sourceIP)
			if err != nil {
				telemetry.ParseErrors.WithLabelValues(parser.ProtocolSyslog).Inc()
				log.Debug().Err(err).Str("source_ip", sourceIP).Msg("Dropped malformed syslog datagram")

				return
			}

			sink.AcceptLog(event)
		},
		logger: log,
	}
}

func sourceIPFromAddr(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}

	return host
}
