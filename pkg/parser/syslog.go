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
	"strconv"
	"strings"
	"time"

	"github.com/kartexhq/kartex/pkg/models"
)

const nilValue = "-"

// ParseSyslog parses an RFC 3164 or RFC 5424 syslog message, auto-detected
// by the version digit following the PRI. Works for both UDP datagrams and
// framed TCP messages.
func ParseSyslog(data []byte, sourceIP string) (*models.LogEvent, error) {
	msg := strings.TrimRight(string(data), "\r\n")

	pri, rest, err := parsePRI(msg)
	if err != nil {
		return nil, err
	}

	facility := pri >> 3
	severity := pri & 0x7

	if strings.HasPrefix(rest, "1 ") {
		return parseRFC5424(facility, severity, rest[2:], sourceIP)
	}

	return parseRFC3164(facility, severity, rest, sourceIP)
}

func parsePRI(msg string) (pri int, rest string, err error) {
	if len(msg) < 3 || msg[0] != '<' {
		return 0, "", parseErrorf(ProtocolSyslog, "missing PRI")
	}

	end := strings.IndexByte(msg[:min(len(msg), 5)], '>')
	if end < 2 {
		return 0, "", parseErrorf(ProtocolSyslog, "unterminated PRI")
	}

	pri, convErr := strconv.Atoi(msg[1:end])
	if convErr != nil || pri < 0 || pri > 191 {
		return 0, "", parseErrorf(ProtocolSyslog, "PRI %q out of range", msg[1:end])
	}

	return pri, msg[end+1:], nil
}

func parseRFC5424(facility, severity int, rest, sourceIP string) (*models.LogEvent, error) {
	tsToken, rest := nextToken(rest)
	if tsToken == "" {
		return nil, parseErrorf(ProtocolSyslog, "rfc5424: missing timestamp")
	}

	ts := time.Now().UTC()

	if tsToken != nilValue {
		parsed, err := time.Parse(time.RFC3339Nano, tsToken)
		if err != nil {
			return nil, wrapParseError(ProtocolSyslog, "rfc5424: bad timestamp", err)
		}

		ts = parsed.UTC()
	}

	hostname, rest := nextToken(rest)
	appName, rest := nextToken(rest)
	procID, rest := nextToken(rest)
	msgID, rest := nextToken(rest)

	if msgID == "" {
		return nil, parseErrorf(ProtocolSyslog, "rfc5424: truncated header")
	}

	sd, rest, err := parseStructuredData(rest)
	if err != nil {
		return nil, err
	}

	message := strings.TrimPrefix(rest, " ")
	message = strings.TrimPrefix(message, "\ufeff")

	service := appName
	if service == nilValue || service == "" {
		service = hostname
	}

	if service == nilValue || service == "" {
		service = "unknown"
	}

	meta := map[string]interface{}{
		"facility": facility,
		"severity": severity,
	}

	if hostname != nilValue && hostname != "" {
		meta["hostname"] = hostname
	}

	if procID != nilValue && procID != "" {
		meta["proc_id"] = procID
	}

	if msgID != nilValue && msgID != "" {
		meta["msg_id"] = msgID
	}

	for id, params := range sd {
		meta["sd_"+id] = params
	}

	return &models.LogEvent{
		Timestamp: ts,
		Level:     syslogLevel(severity),
		Service:   service,
		Message:   message,
		Metadata:  meta,
		SourceIP:  sourceIP,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// parseRFC3164 handles the BSD format: TIMESTAMP HOSTNAME TAG[pid]: MSG.
// The timestamp carries no year; the current year is assumed.
func parseRFC3164(facility, severity int, rest, sourceIP string) (*models.LogEvent, error) {
	ts := time.Now().UTC()
	hostname := ""
	content := rest

	if len(rest) >= 16 {
		if parsed, err := time.Parse(time.Stamp, rest[:15]); err == nil && rest[15] == ' ' {
			now := time.Now().UTC()
			ts = time.Date(now.Year(), parsed.Month(), parsed.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
			hostname, content = nextToken(rest[16:])
		}
	}

	service := "unknown"
	message := strings.TrimPrefix(content, " ")

	// TAG ends at ':' and may carry a bracketed pid: "app[123]: msg".
	var pid string

	if colon := strings.IndexByte(message, ':'); colon > 0 && colon <= 48 {
		tag := message[:colon]

		if open := strings.IndexByte(tag, '['); open > 0 && strings.HasSuffix(tag, "]") {
			pid = tag[open+1 : len(tag)-1]
			tag = tag[:open]
		}

		if isTag(tag) {
			service = tag
			message = strings.TrimPrefix(message[colon+1:], " ")
		}
	}

	if service == "unknown" && hostname != "" {
		service = hostname
	}

	meta := map[string]interface{}{
		"facility": facility,
		"severity": severity,
	}

	if hostname != "" {
		meta["hostname"] = hostname
	}

	if pid != "" {
		meta["proc_id"] = pid
	}

	return &models.LogEvent{
		Timestamp: ts,
		Level:     syslogLevel(severity),
		Service:   service,
		Message:   message,
		Metadata:  meta,
		SourceIP:  sourceIP,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// parseStructuredData consumes either NILVALUE or a run of [id k="v" ...]
// elements, returning the remainder (the free-form message).
func parseStructuredData(rest string) (map[string]map[string]string, string, error) {
	rest = strings.TrimPrefix(rest, " ")

	if strings.HasPrefix(rest, nilValue) {
		return nil, rest[1:], nil
	}

	if !strings.HasPrefix(rest, "[") {
		return nil, "", parseErrorf(ProtocolSyslog, "rfc5424: malformed structured data")
	}

	elements := make(map[string]map[string]string)

	for strings.HasPrefix(rest, "[") {
		rest = rest[1:]

		idEnd := strings.IndexAny(rest, " ]")
		if idEnd <= 0 {
			return nil, "", parseErrorf(ProtocolSyslog, "rfc5424: unterminated SD element")
		}

		id := rest[:idEnd]
		params := make(map[string]string)
		rest = rest[idEnd:]

		for strings.HasPrefix(rest, " ") {
			rest = rest[1:]

			eq := strings.IndexByte(rest, '=')
			if eq <= 0 || len(rest) < eq+2 || rest[eq+1] != '"' {
				return nil, "", parseErrorf(ProtocolSyslog, "rfc5424: malformed SD param")
			}

			name := rest[:eq]
			rest = rest[eq+2:]

			value, remainder, err := readSDValue(rest)
			if err != nil {
				return nil, "", err
			}

			params[name] = value
			rest = remainder
		}

		if !strings.HasPrefix(rest, "]") {
			return nil, "", parseErrorf(ProtocolSyslog, "rfc5424: unterminated SD element")
		}

		rest = rest[1:]
		elements[id] = params
	}

	return elements, rest, nil
}

// readSDValue reads a quoted SD param value handling the \" \\ \] escapes.
func readSDValue(s string) (value, rest string, err error) {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
		}
	}

	return "", "", parseErrorf(ProtocolSyslog, "rfc5424: unterminated SD value")
}

func nextToken(s string) (token, rest string) {
	s = strings.TrimPrefix(s, " ")

	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx], s[idx+1:]
	}

	return s, ""
}

func isTag(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '[' || c == ']' {
			return false
		}
	}

	return true
}

// syslogLevel maps syslog severity 0-7 to the canonical level.
func syslogLevel(severity int) models.LogLevel {
	switch severity {
	case 0, 1:
		return models.LevelFatal
	case 2, 3:
		return models.LevelError
	case 4:
		return models.LevelWarn
	case 5, 6:
		return models.LevelInfo
	default:
		return models.LevelDebug
	}
}
