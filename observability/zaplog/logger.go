// Package zaplog adapts go.uber.org/zap to the conveyor Logger interface.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/AndreyK641/multi-task-conveyor/core"
)

// Logger wraps a *zap.Logger as a core.Logger.
type Logger struct {
	base *zap.Logger
}

var _ core.Logger = (*Logger)(nil)

// New wraps an existing zap logger. The caller keeps ownership; Sync stays
// the caller's responsibility.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base}
}

// NewDevelopment builds a development-config zap logger wrapped as a
// core.Logger.
func NewDevelopment() (*Logger, error) {
	base, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Logger{base: base}, nil
}

// NewProduction builds a production-config zap logger wrapped as a
// core.Logger.
func NewProduction() (*Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{base: base}, nil
}

// NewNop returns an adapter that discards everything.
func NewNop() *Logger {
	return &Logger{base: zap.NewNop()}
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.base.Debug(msg, convertFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.base.Info(msg, convertFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.base.Warn(msg, convertFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.base.Error(msg, convertFields(fields)...)
}

func convertFields(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
