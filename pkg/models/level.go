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

package models

import (
	"errors"
	"fmt"
	"strings"
)

// LogLevel is the canonical severity used across all ingest protocols.
type LogLevel string

const (
	LevelTrace LogLevel = "TRACE"
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelFatal LogLevel = "FATAL"
)

// Levels lists every canonical level, lowest severity first.
var Levels = []LogLevel{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

var ErrUnknownLogLevel = errors.New("unknown log level")

// ParseLogLevel accepts both the canonical names and the Serilog names
// (Verbose, Debug, Information, Warning, Error, Fatal). Unrecognized names
// are an error, never silently defaulted.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "trace", "verbose":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "information":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLogLevel, s)
	}
}

// IsError reports whether the level counts toward error-rate metrics.
func (l LogLevel) IsError() bool {
	return l == LevelError || l == LevelFatal
}

func (l LogLevel) String() string {
	return string(l)
}
