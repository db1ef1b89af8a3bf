// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package logger wraps log/slog with the handler setup used across the service.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a thin wrapper around slog.Logger.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing text records at level to stderr.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger writing text records at level to output.
func NewLogger(level slog.Level, output io.Writer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return NewLogger(slog.LevelError+1, io.Discard)
}

// Err returns the error as slog attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
