// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a process-wide structured logger built on log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

// envReader abstracts environment lookups so tests can substitute a fake.
type envReader interface {
	Getenv(string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// unstructuredLogs reports whether plain text (as opposed to JSON) logging
// was requested via the UNSTRUCTURED_LOGS environment variable. An empty or
// unparseable value is treated as true; only a value strconv.ParseBool reads
// as false ("false", "0", "f", ...) selects JSON.
func unstructuredLogs() bool {
	return unstructuredLogsWithEnv(osEnv{})
}

func unstructuredLogsWithEnv(env envReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Initialize installs the process-wide logger, selecting a text or JSON
// handler based on UNSTRUCTURED_LOGS. Safe to call multiple times; the last
// call wins.
func Initialize() {
	InitializeWithWriter(os.Stderr)
}

// InitializeWithWriter installs the process-wide logger writing to w.
func InitializeWithWriter(w io.Writer) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if unstructuredLogs() {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	singleton.Store(slog.New(handler))
}

func get() *slog.Logger {
	if l := singleton.Load(); l != nil {
		return l
	}
	Initialize()
	return singleton.Load()
}

// SetLevel adjusts the minimum level of the process-wide logger. It backs
// the MCP `logging/setLevel` handler.
func SetLevel(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewTextHandler(os.Stderr, opts)
	if !unstructuredLogs() {
		handler2 := slog.NewJSONHandler(os.Stderr, opts)
		singleton.Store(slog.New(handler2))
		return
	}
	singleton.Store(slog.New(handler))
}

// Debugf logs at debug level with printf-style formatting.
func Debugf(format string, args ...any) { get().Debug(sprintf(format, args...)) }

// Infof logs at info level with printf-style formatting.
func Infof(format string, args ...any) { get().Info(sprintf(format, args...)) }

// Warnf logs at warn level with printf-style formatting.
func Warnf(format string, args ...any) { get().Warn(sprintf(format, args...)) }

// Errorf logs at error level with printf-style formatting.
func Errorf(format string, args ...any) { get().Error(sprintf(format, args...)) }

// With returns a logger-scoped context carrying the given key/value attrs,
// for call sites that want structured fields rather than a formatted string.
func With(args ...any) *slog.Logger { return get().With(args...) }

// FromContext returns a logger decorated with any fields attached via
// ContextWithFields, falling back to the process-wide logger.
func FromContext(ctx context.Context) *slog.Logger {
	if v, ok := ctx.Value(fieldsKey{}).(*slog.Logger); ok && v != nil {
		return v
	}
	return get()
}

type fieldsKey struct{}

// ContextWithFields attaches structured fields to ctx for later retrieval
// via FromContext, so a request's session/connection id rides along without
// threading a logger through every function signature.
func ContextWithFields(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, fieldsKey{}, get().With(args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
