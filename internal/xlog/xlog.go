/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package xlog wraps logrus the way the teacher library's logger package
// wraps it: one process-wide entry point, per-component child loggers
// carrying structured fields, and a formatter chosen by terminal detection
// unless Options.JSON forces JSON output.
package xlog

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sabouaram/monoproxy/internal/xlog/console"
)

// Level mirrors logrus.Level so callers never import logrus directly.
type Level = logrus.Level

const (
	LevelError = logrus.ErrorLevel
	LevelWarn  = logrus.WarnLevel
	LevelInfo  = logrus.InfoLevel
	LevelDebug = logrus.DebugLevel
)

// Logger is the subset of logrus.FieldLogger the gateway core consumes,
// kept as an interface so components can be tested with a stub.
type Logger interface {
	WithField(key string, val interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

type entry struct {
	e *logrus.Entry
}

func (l *entry) WithField(key string, val interface{}) Logger {
	return &entry{e: l.e.WithField(key, val)}
}

func (l *entry) WithFields(fields map[string]interface{}) Logger {
	return &entry{e: l.e.WithFields(fields)}
}

func (l *entry) WithError(err error) Logger {
	return &entry{e: l.e.WithError(err)}
}

func (l *entry) Debug(args ...interface{})                 { l.e.Debug(args...) }
func (l *entry) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l *entry) Info(args ...interface{})                  { l.e.Info(args...) }
func (l *entry) Infof(format string, args ...interface{})  { l.e.Infof(format, args...) }
func (l *entry) Warn(args ...interface{})                  { l.e.Warn(args...) }
func (l *entry) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l *entry) Error(args ...interface{})                 { l.e.Error(args...) }
func (l *entry) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }

// Options configures the root logger. JSON forces machine-readable output
// regardless of terminal detection (used by the CLI when stdout is piped
// to a log collector).
type Options struct {
	Level     Level
	JSON      bool
	Output    io.Writer
	Component string
}

// New builds a root Logger. When Options.Output is a terminal (and JSON is
// not forced), it installs the color formatter adapted from the teacher's
// console package; otherwise it falls back to logrus's JSON formatter.
func New(opt Options) Logger {
	l := logrus.New()
	l.SetLevel(opt.Level)

	out := opt.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if opt.JSON || !console.IsTerminal(out) {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(console.NewFormatter())
	}

	e := logrus.NewEntry(l)
	if opt.Component != "" {
		e = e.WithField("component", opt.Component)
	}
	return &entry{e: e}
}

// Noop returns a Logger that discards everything, for tests that don't
// care about log output.
func Noop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &entry{e: logrus.NewEntry(l)}
}
