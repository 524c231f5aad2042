/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package logger is the logging sink the core treats as an external
// collaborator: every flow-fatal and program-fatal error is reported
// through it, never by returning formatted strings from the core itself.
package logger

import (
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus' severity ordering, kept as our own type so callers
// outside this package never import logrus directly.
type Level uint32

const (
	NilLevel Level = iota
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.PanicLevel
	}
}

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Add returns a copy of f with key set to val.
func (f Fields) Add(key string, val interface{}) Fields {
	n := make(Fields, len(f)+1)
	for k, v := range f {
		n[k] = v
	}
	n[key] = val
	return n
}

// Logger is the sink the core's constructors accept. It is deliberately
// narrow: five severities, structured fields, and level introspection,
// enough for the hclog bridge in hclog.go to be built on top of it.
type Logger interface {
	Debug(msg string, err error, args ...interface{})
	Info(msg string, err error, args ...interface{})
	Warning(msg string, err error, args ...interface{})
	Error(msg string, err error, args ...interface{})

	SetLevel(l Level)
	GetLevel() Level

	SetFields(f Fields)
	GetFields() Fields

	GetStdLogger(l Level, calldepth int) *log.Logger
}

type _logger struct {
	l *logrus.Logger
	f Fields
}

// New builds a Logger backed by logrus, writing to w at the given level.
func New(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.toLogrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &_logger{l: l, f: Fields{}}
}

func (g *_logger) entry(extra Fields) *logrus.Entry {
	merged := make(logrus.Fields, len(g.f)+len(extra))
	for k, v := range g.f {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return g.l.WithFields(merged)
}

func (g *_logger) Debug(msg string, err error, args ...interface{}) {
	g.log(logrus.DebugLevel, msg, err, args...)
}

func (g *_logger) Info(msg string, err error, args ...interface{}) {
	g.log(logrus.InfoLevel, msg, err, args...)
}

func (g *_logger) Warning(msg string, err error, args ...interface{}) {
	g.log(logrus.WarnLevel, msg, err, args...)
}

func (g *_logger) Error(msg string, err error, args ...interface{}) {
	g.log(logrus.ErrorLevel, msg, err, args...)
}

func (g *_logger) log(lvl logrus.Level, msg string, err error, args ...interface{}) {
	e := g.entry(nil)
	if err != nil {
		e = e.WithError(err)
	}
	if len(args) > 0 {
		e = e.WithField("args", args)
	}
	e.Log(lvl, msg)
}

func (g *_logger) SetLevel(l Level) {
	g.l.SetLevel(l.toLogrus())
}

func (g *_logger) GetLevel() Level {
	switch g.l.GetLevel() {
	case logrus.ErrorLevel:
		return ErrorLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.DebugLevel, logrus.TraceLevel:
		return DebugLevel
	default:
		return NilLevel
	}
}

func (g *_logger) SetFields(f Fields) {
	g.f = f
}

func (g *_logger) GetFields() Fields {
	return g.f
}

func (g *_logger) GetStdLogger(l Level, calldepth int) *log.Logger {
	w := g.l.WriterLevel(l.toLogrus())
	return log.New(w, "", 0)
}
