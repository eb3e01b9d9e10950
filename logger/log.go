// Package logger provides structured, namespaced logging on top of logrus.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter is the interface used to format log entries.
type Formatter logrus.Formatter

// Logger handles structured logging for one component. Each Logger owns its
// logrus instance, so loggers are created once at startup and handed to the
// components that need them.
type Logger struct {
	ns     string
	base   *logrus.Logger
	fields map[string]interface{}
}

// New returns a new Logger instance for the given namespace. Additional
// arguments are key/value pairs attached to every message.
func New(ns string, args ...interface{}) *Logger {
	l := logrus.New()
	l.SetFormatter(&lineFormatter{conf: DefaultConfig().TextFormat})
	f := fields(args...)
	f["ns"] = ns
	return &Logger{ns: ns, base: l, fields: f}
}

// NewLogger returns a new, configured Logger instance.
func NewLogger(ns string, conf Config) *Logger {
	l := New(ns)
	l.Configure(conf)
	return l
}

// Sub returns a child logger sharing the parent's output, level and fields,
// with the namespace replaced by ns.
func (l *Logger) Sub(ns string, args ...interface{}) *Logger {
	f := l.copyFields()
	for k, v := range fields(args...) {
		f[k] = v
	}
	f["ns"] = ns
	return &Logger{ns: ns, base: l.base, fields: f}
}

// WithFields returns a new Logger instance with the given fields added to all log messages.
func (l *Logger) WithFields(args ...interface{}) *Logger {
	f := l.copyFields()
	for k, v := range fields(args...) {
		f[k] = v
	}
	return &Logger{ns: l.ns, base: l.base, fields: f}
}

// Debug logs a debug message.
//
// After the first argument, arguments are key-value pairs which are written as structured logs.
//
//	log.Debug("Some message here", "key1", value1, "key2", value2)
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(logrus.DebugLevel, msg, args...)
}

// Info logs an info message
//
//	log.Info("Some message here", "key1", value1, "key2", value2)
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(logrus.InfoLevel, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(logrus.WarnLevel, msg, args...)
}

// Error logs an error message
//
// Error has a two-argument version that can be used as a shortcut.
//
//	err := startServer()
//	log.Error("Couldn't start server", err)
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(logrus.ErrorLevel, msg, args...)
}

func (l *Logger) log(lvl logrus.Level, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	defer recoverLogErr()
	f := l.copyFields()
	for k, v := range fields(args...) {
		f[k] = v
	}
	l.base.WithFields(f).Log(lvl, msg)
}

func (l *Logger) copyFields() map[string]interface{} {
	f := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		f[k] = v
	}
	return f
}

// SetLevel sets the level of logging
func (l *Logger) SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		l.base.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		l.base.SetLevel(logrus.WarnLevel)
	case "error":
		l.base.SetLevel(logrus.ErrorLevel)
	default:
		l.base.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the formatter for the logger.
func (l *Logger) SetFormatter(f Formatter) {
	l.base.SetFormatter(f)
}

// SetOutput sets the output for the logger.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// Discard configures the logger to discard all logs.
func (l *Logger) Discard() {
	l.base.SetOutput(io.Discard)
}

// recoverLogErr is used to recover from any panics during logging.
// Logging should never crash the scan loop.
func recoverLogErr() {
	if r := recover(); r != nil {
		fmt.Println("Recovered from logging panic", r)
	}
}

// PrintSimpleError prints out an error message with a red "ERROR:" prefix.
func PrintSimpleError(err error) {
	fmt.Printf("\x1b[%dm%s\x1b[0m %s\n", 31, "ERROR:", err.Error())
}

func fields(args ...interface{}) map[string]interface{} {
	f := make(map[string]interface{}, len(args)/2)
	if len(args) == 1 {
		if err, ok := args[0].(error); ok {
			f["error"] = err.Error()
		} else {
			f["unknown"] = args[0]
		}
		return f
	}
	for i := 0; i+1 < len(args); i += 2 {
		k, ok := args[i].(string)
		if !ok {
			k = fmt.Sprint(args[i])
		}
		v := args[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		f[k] = v
	}
	if len(args)%2 != 0 {
		f["unknown"] = args[len(args)-1]
	}
	return f
}
