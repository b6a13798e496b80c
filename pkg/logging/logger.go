// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for ConfigForge components.
//
// The package wraps Go's standard slog with two destinations:
//
//   - Default: stderr output for CLI compatibility (follows Unix conventions)
//   - Optional: JSON file logging with automatic directory creation
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("pipeline started", "run_id", runID)
//	logger.Error("render failed", "template", ref, "error", err)
//
// # File Logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.configforge/logs",
//	    Service: "forge",
//	})
//	defer logger.Close()
//
// This creates log files named `{service}_{date}.log` in JSON format.
//
// # Thread Safety
//
// Logger is safe for concurrent use. Internal state is protected by a
// mutex, and the underlying slog.Logger is thread-safe.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers must
// ensure tokens and secrets are not logged.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents a log severity level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operations.
	LevelInfo

	// LevelWarn is for recoverable issues.
	LevelWarn

	// LevelError is for operation failures.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// toSlogLevel converts to the slog equivalent.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum level to emit. Defaults to LevelInfo.
	Level Level

	// LogDir enables file logging when non-empty. Supports ~ expansion.
	LogDir string

	// Service names the log file ({service}_{date}.log). Defaults to "configforge".
	Service string

	// Writer overrides the default stderr destination. Intended for tests.
	Writer io.Writer

	// JSON emits JSON records to the primary destination instead of text.
	JSON bool
}

// Logger is a structured logger with optional file output.
type Logger struct {
	mu     sync.Mutex
	slog   *slog.Logger
	file   *os.File
	closed bool
}

// New creates a Logger from the given configuration.
//
// # Description
//
// Builds a slog logger writing to stderr (or Config.Writer), and, when
// Config.LogDir is set, additionally to a JSON log file. File creation
// failures degrade to stderr-only logging rather than returning an error.
//
// # Inputs
//
//   - config: Logger configuration.
//
// # Outputs
//
//   - *Logger: Ready-to-use logger. Never nil.
func New(config Config) *Logger {
	primary := config.Writer
	if primary == nil {
		primary = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handlers []slog.Handler
	if config.JSON {
		handlers = append(handlers, slog.NewJSONHandler(primary, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(primary, opts))
	}

	logger := &Logger{}

	if config.LogDir != "" {
		service := config.Service
		if service == "" {
			service = "configforge"
		}

		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				logger.file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			}
		}
	}

	if len(handlers) == 1 {
		logger.slog = slog.New(handlers[0])
	} else {
		logger.slog = slog.New(&multiHandler{handlers: handlers})
	}

	return logger
}

// Default returns a stderr-only logger at LevelInfo.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

// Debug logs at debug level with key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level with key-value pairs.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level with key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level with key-value pairs.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger that includes the given attributes on every record.
//
// The derived logger shares destinations with the parent but does not own
// the log file; Close on the derived logger is a no-op.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog exposes the underlying slog.Logger for libraries that require one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the log file, if any.
//
// Safe to call multiple times. The logger remains usable for stderr
// output after Close, though file output stops.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.file == nil {
		return nil
	}
	l.closed = true

	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return l.file.Close()
}

// multiHandler fans a record out to multiple slog handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, r.Level) {
			if err := sub.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		next[i] = sub.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		next[i] = sub.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[1:])
}
