// Package logger is a thin, level-oriented facade over
// github.com/sirupsen/logrus with a bridge to the stdlib *log.Logger
// interface.
package logger

import (
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the facade every component in this repository logs through.
type Logger struct {
	base *logrus.Logger
	ctx  logrus.Fields
}

// New returns a Logger writing to out (os.Stderr if nil) at the given level.
func New(out io.Writer, level logrus.Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{base: l, ctx: logrus.Fields{}}
}

// With returns a derived Logger that always attaches the given fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	merged := logrus.Fields{}
	for k, v := range l.ctx {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{base: l.base, ctx: merged}
}

func (l *Logger) entry() *logrus.Entry { return l.base.WithFields(l.ctx) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }

// GetStdLogger bridges this logger to the stdlib *log.Logger interface, for
// third-party code (e.g. net/http) that only accepts a standard logger.
func (l *Logger) GetStdLogger(prefix string, flags int) *log.Logger {
	return log.New(l.entry().WriterLevel(logrus.InfoLevel), prefix, flags)
}
