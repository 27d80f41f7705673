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
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/parser"
	"github.com/kartexhq/kartex/pkg/telemetry"
)

const otlpMaxBody = 16 << 20

// OTLPHTTPServer serves OTLP/HTTP on /v1/logs and /v1/traces, accepting
// application/json (protojson) and application/x-protobuf bodies.
type OTLPHTTPServer struct {
	addr   string
	sink   Sink
	logger logger.Logger
}

func NewOTLPHTTPServer(addr string, sink Sink, log logger.Logger) *OTLPHTTPServer {
	return &OTLPHTTPServer{
		addr:   addr,
		sink:   sink,
		logger: log,
	}
}

func (s *OTLPHTTPServer) Name() string { return "otlp-http" }

// Start serves until ctx is canceled.
func (s *OTLPHTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Str("listener", s.Name()).Str("addr", s.addr).Msg("HTTP listener started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the mux for tests and for mounting on a shared server.
func (s *OTLPHTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", s.handleLogs)
	mux.HandleFunc("/v1/traces", s.handleTraces)

	return mux
}

func (s *OTLPHTTPServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	req := &collogspb.ExportLogsServiceRequest{}
	if !s.unmarshal(w, r, body, req) {
		return
	}

	sourceIP := requestIP(r)

	for _, event := range parser.ParseOTLPLogs(req, sourceIP) {
		s.sink.AcceptLog(event)
	}

	s.respond(w, r, &collogspb.ExportLogsServiceResponse{})
}

func (s *OTLPHTTPServer) handleTraces(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	req := &coltracepb.ExportTraceServiceRequest{}
	if !s.unmarshal(w, r, body, req) {
		return
	}

	sourceIP := requestIP(r)

	for _, span := range parser.ParseOTLPSpans(req, sourceIP) {
		s.sink.AcceptSpan(span)
	}

	s.respond(w, r, &coltracepb.ExportTraceServiceResponse{})
}

func (s *OTLPHTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, otlpMaxBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}

	return body, true
}

func (s *OTLPHTTPServer) unmarshal(w http.ResponseWriter, r *http.Request, body []byte, msg proto.Message) bool {
	var err error

	switch contentType(r) {
	case "application/x-protobuf":
		err = proto.Unmarshal(body, msg)
	default:
		err = protojson.Unmarshal(body, msg)
	}

	if err != nil {
		telemetry.ParseErrors.WithLabelValues(parser.ProtocolOTLP).Inc()
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Dropped malformed OTLP request")
		http.Error(w, "malformed request", http.StatusBadRequest)

		return false
	}

	return true
}

func (s *OTLPHTTPServer) respond(w http.ResponseWriter, r *http.Request, msg proto.Message) {
	var (
		body []byte
		err  error
	)

	if contentType(r) == "application/x-protobuf" {
		w.Header().Set("Content-Type", "application/x-protobuf")
		body, err = proto.Marshal(msg)
	} else {
		w.Header().Set("Content-Type", "application/json")
		body, err = protojson.Marshal(msg)
	}

	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}

	_, _ = w.Write(body)
}

func contentType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}

	return strings.TrimSpace(ct)
}

func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
