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
	"fmt"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/kartexhq/kartex/pkg/logger"
	"github.com/kartexhq/kartex/pkg/parser"
)

// OTLPGRPCServer serves the standard OTLP logs and trace export services.
// Both proto services name their RPC Export, so the trace side lives on a
// shim type with its own method set.
type OTLPGRPCServer struct {
	collogspb.UnimplementedLogsServiceServer

	addr   string
	sink   Sink
	logger logger.Logger
}

func NewOTLPGRPCServer(addr string, sink Sink, log logger.Logger) *OTLPGRPCServer {
	return &OTLPGRPCServer{
		addr:   addr,
		sink:   sink,
		logger: log,
	}
}

func (s *OTLPGRPCServer) Name() string { return "otlp-grpc" }

// Start serves until ctx is canceled.
func (s *OTLPGRPCServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("otlp-grpc: bind %s: %w", s.addr, err)
	}

	srv := grpc.NewServer()
	collogspb.RegisterLogsServiceServer(srv, s)
	coltracepb.RegisterTraceServiceServer(srv, &traceExporter{server: s})

	s.logger.Info().Str("listener", s.Name()).Str("addr", s.addr).Msg("gRPC listener started")

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	if err := srv.Serve(ln); err != nil && ctx.Err() == nil {
		return fmt.Errorf("otlp-grpc: serve: %w", err)
	}

	return nil
}

// Export implements the OTLP logs service.
func (s *OTLPGRPCServer) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	for _, event := range parser.ParseOTLPLogs(req, peerIP(ctx)) {
		s.sink.AcceptLog(event)
	}

	return &collogspb.ExportLogsServiceResponse{}, nil
}

type traceExporter struct {
	coltracepb.UnimplementedTraceServiceServer

	server *OTLPGRPCServer
}

func (t *traceExporter) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	for _, span := range parser.ParseOTLPSpans(req, peerIP(ctx)) {
		t.server.sink.AcceptSpan(span)
	}

	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}

	return sourceIPFromAddr(p.Addr)
}
