/*
 * Copyright 2025 SREDiag Authors
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

// Package logging is the leveled logger shared by the channel packages.
package logging

import (
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

const (
	EnvLogLevel   = "CTC_LOG_LEVEL"
	EnvLogNoColor = "CTC_LOG_NOCOLOR"
)

var (
	level   atomic.Int32
	noColor bool
)

func init() {
	// gating happens in Logger, zerolog must not drop trace events on its own
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	level.Store(LevelWarn)
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= LevelTrace && n <= LevelNoPrint {
			level.Store(int32(n))
		}
	}
	if raw := os.Getenv(EnvLogNoColor); raw != "" {
		noColor, _ = strconv.ParseBool(raw)
	}
}

// SetLogLevel changes the level of every logger. The default level is Warn and
// the process env `CTC_LOG_LEVEL` can also set it.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// Level returns the current level.
func Level() int {
	return int(level.Load())
}

// Logger is a named leveled logger.
type Logger struct {
	name string
	zl   zerolog.Logger
}

// New returns a logger writing to out, or stderr when out is nil. Stdout
// stays free for payloads.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: "2006-01-02 15:04:05.999999",
	}
	return &Logger{
		name: name,
		zl:   zerolog.New(w).With().Timestamp().Str("logger", name).Logger(),
	}
}

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) enabled(lv int) bool {
	return int(level.Load()) <= lv
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if !l.enabled(LevelError) {
		return
	}
	l.zl.Error().Msgf(format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	if !l.enabled(LevelWarn) {
		return
	}
	l.zl.Warn().Msgf(format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	if !l.enabled(LevelInfo) {
		return
	}
	l.zl.Info().Msgf(format, a...)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	if !l.enabled(LevelDebug) {
		return
	}
	l.zl.Debug().Msgf(format, a...)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	if !l.enabled(LevelTrace) {
		return
	}
	l.zl.Trace().Msgf(format, a...)
}
