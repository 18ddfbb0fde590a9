// Copyright 2025 Google LLC
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

// Package logger is the process-wide structured logger for AgentFS. It
// wraps log/slog with a severity ladder a notch finer than the stdlib's
// (TRACE below DEBUG) because kernel-level tracing (every block read,
// every dirent lookup) is too chatty for DEBUG.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity is the logging level, ordered TRACE < DEBUG < INFO < WARNING < ERROR.
type Severity int

const (
	levelTrace   = slog.Level(-8)
	levelDebug   = slog.LevelDebug
	levelInfo    = slog.LevelInfo
	levelWarning = slog.LevelWarn
	levelError   = slog.LevelError
)

var severityNames = map[slog.Level]string{
	levelTrace:   "TRACE",
	levelDebug:   "DEBUG",
	levelInfo:    "INFO",
	levelWarning: "WARNING",
	levelError:   "ERROR",
}

var (
	mu     sync.Mutex
	base   = slog.New(newTextHandler(os.Stderr, levelInfo))
	logger = base
)

// Config controls how Init sets up the process logger.
type Config struct {
	// Format is "text" or "json". Defaults to "text".
	Format string
	// Severity is one of TRACE, DEBUG, INFO, WARNING, ERROR. Defaults to INFO.
	Severity string
	// File, if non-empty, routes output through a rotating lumberjack.Logger
	// instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init (re)configures the process-wide logger. Safe to call more than
// once; later calls replace the handler.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
		}
	}

	level := parseSeverity(cfg.Severity)
	var h slog.Handler
	if cfg.Format == "json" {
		h = newJSONHandler(w, level)
	} else {
		h = newTextHandler(w, level)
	}
	logger = slog.New(h)
	return nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func parseSeverity(s string) slog.Level {
	switch s {
	case "TRACE":
		return levelTrace
	case "DEBUG":
		return levelDebug
	case "WARNING":
		return levelWarning
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func Tracef(format string, args ...any)   { logf(levelTrace, format, args...) }
func Debugf(format string, args ...any)   { logf(levelDebug, format, args...) }
func Infof(format string, args ...any)    { logf(levelInfo, format, args...) }
func Warnf(format string, args ...any)    { logf(levelWarning, format, args...) }
func Errorf(format string, args ...any)   { logf(levelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	l := current()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
