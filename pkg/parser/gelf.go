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

package parser

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/kartexhq/kartex/pkg/models"
)

// maxGELFDecoded caps the decompressed size of a single GELF message so a
// crafted datagram cannot balloon memory.
const maxGELFDecoded = 8 << 20

// ParseGELF parses a GELF 1.0/1.1 datagram, sniffing optional gzip or zlib
// compression by magic bytes. Chunked GELF (magic 0x1e 0x0f) is rejected.
func ParseGELF(datagram []byte, sourceIP string) (*models.LogEvent, error) {
	raw, err := gelfDecode(datagram)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, wrapParseError(ProtocolGELF, "invalid JSON", err)
	}

	version, _ := doc["version"].(string)
	if version != "1.0" && version != "1.1" {
		return nil, parseErrorf(ProtocolGELF, "unsupported version %q", version)
	}

	shortMessage, ok := doc["short_message"].(string)
	if !ok || shortMessage == "" {
		return nil, parseErrorf(ProtocolGELF, "missing short_message")
	}

	host, _ := doc["host"].(string)

	// Severity defaults to informational when the sender omits it.
	severity := 6.0
	if raw, ok := doc["level"]; ok {
		severity, ok = raw.(float64)
		if !ok {
			return nil, parseErrorf(ProtocolGELF, "level is not a number")
		}
	}

	level, err := gelfLevel(severity)
	if err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if epoch, ok := doc["timestamp"].(float64); ok {
		sec, frac := math.Modf(epoch)
		ts = time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	}

	service := host
	if facility, ok := doc["facility"].(string); ok && facility != "" {
		service = facility
	}

	if service == "" {
		service = "unknown"
	}

	event := &models.LogEvent{
		Timestamp: ts,
		Level:     level,
		Service:   service,
		Message:   shortMessage,
		SourceIP:  sourceIP,
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
	}

	for key, val := range doc {
		switch key {
		case "version", "short_message", "timestamp", "level":
			continue
		case "host", "full_message", "facility", "file", "line":
			event.Metadata[key] = val
		default:
			// Additional fields are underscore-prefixed per the GELF spec.
			if len(key) > 1 && key[0] == '_' {
				event.Metadata[key[1:]] = val
			}
		}
	}

	if len(event.Metadata) == 0 {
		event.Metadata = nil
	}

	return event, nil
}

func gelfDecode(datagram []byte) ([]byte, error) {
	if len(datagram) < 2 {
		return nil, parseErrorf(ProtocolGELF, "datagram too short")
	}

	switch {
	case datagram[0] == 0x1e && datagram[1] == 0x0f:
		return nil, parseErrorf(ProtocolGELF, "chunked GELF is not supported")
	case datagram[0] == 0x1f && datagram[1] == 0x8b:
		r, err := gzip.NewReader(bytes.NewReader(datagram))
		if err != nil {
			return nil, wrapParseError(ProtocolGELF, "bad gzip stream", err)
		}
		defer r.Close()

		raw, err := io.ReadAll(io.LimitReader(r, maxGELFDecoded))
		if err != nil {
			return nil, wrapParseError(ProtocolGELF, "gzip decompress failed", err)
		}

		return raw, nil
	case datagram[0] == 0x78 && zlibFlag(datagram[1]):
		r, err := zlib.NewReader(bytes.NewReader(datagram))
		if err != nil {
			return nil, wrapParseError(ProtocolGELF, "bad zlib stream", err)
		}
		defer r.Close()

		raw, err := io.ReadAll(io.LimitReader(r, maxGELFDecoded))
		if err != nil {
			return nil, wrapParseError(ProtocolGELF, "zlib decompress failed", err)
		}

		return raw, nil
	default:
		return datagram, nil
	}
}

func zlibFlag(b byte) bool {
	switch b {
	case 0x01, 0x5e, 0x9c, 0xda:
		return true
	default:
		return false
	}
}

// gelfLevel maps a syslog severity carried in a GELF message to the
// canonical level. The table is total over 0-7.
func gelfLevel(severity float64) (models.LogLevel, error) {
	switch int(severity) {
	case 0, 1, 2:
		return models.LevelFatal, nil
	case 3:
		return models.LevelError, nil
	case 4:
		return models.LevelWarn, nil
	case 5, 6:
		return models.LevelInfo, nil
	case 7:
		return models.LevelDebug, nil
	default:
		return "", parseErrorf(ProtocolGELF, "severity %v out of range", severity)
	}
}
