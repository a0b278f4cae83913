// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plog is the core's structured logging surface: a thin wrapper
// over log/slog, adapted from the teacher's pkg/logger (same Init/
// ParseLevel/GetLogger contract, same simple/verbose format switch, both
// on slog's plain text handler) trimmed to drop hector-package-prefix
// call-site filtering,
// which depended on an import path this module no longer has any
// per-package reason to special-case.
package plog

import (
	"os"
	"strings"

	"log/slog"
)

var defaultLogger *slog.Logger

// ParseLevel converts a string log level to slog.Level. Valid levels:
// debug, info, warn, error; anything else defaults to warn.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// Init sets the process-wide default logger (spec §9 ambient stack:
// every component logs through slog, matching the teacher's own
// cmd/hector wiring). Every format uses slog's standard text handler;
// "verbose" additionally records source locations, while "simple" (the
// default) and any other value do not.
func Init(level slog.Level, output *os.File, format string) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String(slog.LevelKey, "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if format == "verbose" {
		opts.AddSource = true
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens (creating if needed) a log file for append-mode
// writing, returning the handle and a cleanup func.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the process-wide logger, initializing a sane
// default (info level, stderr, simple format) on first use.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
