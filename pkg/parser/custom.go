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
	"time"

	"github.com/valyala/fastjson"

	"github.com/kartexhq/kartex/pkg/models"
)

var customPool fastjson.ParserPool

// clefMarker distinguishes Serilog CLEF payloads from the standard schema.
// CLEF always carries "@t"; the standard schema never uses @-prefixed keys.
var clefMarker = []byte(`"@t"`)

// ParseCustom parses the authenticated-UDP JSON payload. The payload is
// either the standard schema (timestamp/level/service/message/metadata) or
// Serilog CLEF, detected by the presence of the "@t" key.
func ParseCustom(payload []byte, sourceIP string) (*models.LogEvent, error) {
	p := customPool.Get()
	defer customPool.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return nil, wrapParseError(ProtocolCustom, "invalid JSON", err)
	}

	if v.Type() != fastjson.TypeObject {
		return nil, parseErrorf(ProtocolCustom, "payload is not a JSON object")
	}

	if bytes.Contains(payload, clefMarker) && v.Exists("@t") {
		return parseCLEF(v, sourceIP)
	}

	return parseStandard(v, sourceIP)
}

func parseStandard(v *fastjson.Value, sourceIP string) (*models.LogEvent, error) {
	levelRaw := v.GetStringBytes("level")
	if levelRaw == nil {
		return nil, parseErrorf(ProtocolCustom, "missing required field %q", "level")
	}

	level, err := models.ParseLogLevel(string(levelRaw))
	if err != nil {
		return nil, wrapParseError(ProtocolCustom, "bad level", err)
	}

	service := v.GetStringBytes("service")
	if service == nil {
		return nil, parseErrorf(ProtocolCustom, "missing required field %q", "service")
	}

	message := v.GetStringBytes("message")
	if message == nil {
		return nil, parseErrorf(ProtocolCustom, "missing required field %q", "message")
	}

	ts := time.Now().UTC()

	if raw := v.GetStringBytes("timestamp"); raw != nil {
		parsed, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return nil, wrapParseError(ProtocolCustom, "bad timestamp", err)
		}

		ts = parsed.UTC()
	}

	event := &models.LogEvent{
		Timestamp: ts,
		Level:     level,
		Service:   string(service),
		Message:   string(message),
		TraceID:   string(v.GetStringBytes("trace_id")),
		SpanID:    string(v.GetStringBytes("span_id")),
		SourceIP:  sourceIP,
		CreatedAt: time.Now().UTC(),
	}

	if meta := v.GetObject("metadata"); meta != nil {
		event.Metadata = make(map[string]interface{})
		meta.Visit(func(key []byte, val *fastjson.Value) {
			event.Metadata[string(key)] = jsonValue(val)
		})
	}

	return event, nil
}

// parseCLEF maps the Serilog reserved fields (@t, @m, @mt, @l, @x, @i,
// @tr, @sp) and folds the remaining non-reserved properties into metadata.
func parseCLEF(v *fastjson.Value, sourceIP string) (*models.LogEvent, error) {
	tsRaw := v.GetStringBytes("@t")
	if tsRaw == nil {
		return nil, parseErrorf(ProtocolCustom, "clef: @t is not a string")
	}

	ts, err := time.Parse(time.RFC3339Nano, string(tsRaw))
	if err != nil {
		return nil, wrapParseError(ProtocolCustom, "clef: bad @t", err)
	}

	// Serilog omits @l for Information-level events.
	level := models.LevelInfo

	if raw := v.GetStringBytes("@l"); raw != nil {
		level, err = models.ParseLogLevel(string(raw))
		if err != nil {
			return nil, wrapParseError(ProtocolCustom, "clef: bad @l", err)
		}
	}

	message := string(v.GetStringBytes("@m"))
	template := string(v.GetStringBytes("@mt"))

	if message == "" {
		message = template
	}

	service := "unknown"

	if raw := v.GetStringBytes("SourceContext"); raw != nil {
		service = string(raw)
	} else if raw := v.GetStringBytes("Application"); raw != nil {
		service = string(raw)
	}

	event := &models.LogEvent{
		Timestamp:       ts.UTC(),
		Level:           level,
		Service:         service,
		Message:         message,
		MessageTemplate: template,
		Exception:       string(v.GetStringBytes("@x")),
		EventID:         string(v.GetStringBytes("@i")),
		TraceID:         string(v.GetStringBytes("@tr")),
		SpanID:          string(v.GetStringBytes("@sp")),
		SourceIP:        sourceIP,
		CreatedAt:       time.Now().UTC(),
	}

	obj := v.GetObject()

	var meta map[string]interface{}

	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		if len(k) > 0 && k[0] == '@' {
			return
		}

		if k == "SourceContext" || k == "Application" {
			return
		}

		if meta == nil {
			meta = make(map[string]interface{})
		}

		meta[k] = jsonValue(val)
	})

	event.Metadata = meta

	return event, nil
}

// jsonValue converts a fastjson value into the plain Go form stored in
// event metadata.
func jsonValue(v *fastjson.Value) interface{} {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]interface{}, 0, len(arr))

		for _, item := range arr {
			out = append(out, jsonValue(item))
		}

		return out
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]interface{})

		obj.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = jsonValue(val)
		})

		return out
	default:
		return nil
	}
}
