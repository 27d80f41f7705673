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

// Package parser turns raw protocol bytes into canonical log events and
// spans. Every parser is total over arbitrary input: malformed bytes yield
// a *ParseError, never a panic.
package parser

import (
	"errors"
	"fmt"

	"github.com/kartexhq/kartex/pkg/models"
)

// Protocol names used in parse errors and counters.
const (
	ProtocolCustom = "custom"
	ProtocolGELF   = "gelf"
	ProtocolSyslog = "syslog"
	ProtocolOTLP   = "otlp"
)

// Event is the tagged output of a parser: exactly one of Log or Span is set.
type Event struct {
	Log  *models.LogEvent
	Span *models.Span
}

// ParseError describes a malformed payload for a detected protocol.
type ParseError struct {
	Protocol string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Protocol, e.Reason, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Protocol, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErrorf(protocol, format string, args ...interface{}) *ParseError {
	return &ParseError{Protocol: protocol, Reason: fmt.Sprintf(format, args...)}
}

func wrapParseError(protocol, reason string, err error) *ParseError {
	return &ParseError{Protocol: protocol, Reason: reason, Err: err}
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
