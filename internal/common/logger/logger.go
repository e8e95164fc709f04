// Package logger provides the map-field Logger used by the dispatcher and the
// job workers, backed by zap.
package logger

import (
	"sort"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// New builds the process logger. format "json" gives production encoding,
// anything else the console encoder. Unknown levels fall back to info.
func New(levelStr, format string) *zap.Logger {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

type adapter struct {
	l *zap.Logger
}

func NewZapAdapter(l *zap.Logger) Logger {
	return &adapter{l: l}
}

// NewTestLogger writes through testing.TB so output shows up only for failing tests.
func NewTestLogger(t testing.TB) Logger {
	return &adapter{l: zaptest.NewLogger(t)}
}

func NewNoOpLogger() Logger {
	return &adapter{l: zap.NewNop()}
}

func (a *adapter) Debug(msg string, fields map[string]interface{}) {
	a.l.Debug(msg, toZap(fields)...)
}

func (a *adapter) Info(msg string, fields map[string]interface{}) {
	a.l.Info(msg, toZap(fields)...)
}

func (a *adapter) Warn(msg string, fields map[string]interface{}) {
	a.l.Warn(msg, toZap(fields)...)
}

func (a *adapter) Error(msg string, fields map[string]interface{}) {
	a.l.Error(msg, toZap(fields)...)
}

func (a *adapter) WithFields(fields map[string]interface{}) Logger {
	return &adapter{l: a.l.With(toZap(fields)...)}
}

func (a *adapter) WithError(err error) Logger {
	return &adapter{l: a.l.With(zap.Error(err))}
}

// toZap converts fields in key order. error values keep their error encoding.
func toZap(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(fields))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
