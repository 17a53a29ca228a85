// Package zapadapter bridges the outbox Logger interface to zap.
package zapadapter

import (
	"go.uber.org/zap"

	"github.com/seqra/outbox"
)

// Logger forwards outbox log calls to a zap sugared logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

var _ outbox.Logger = (*Logger)(nil)

// New wraps the given sugared logger. A nil logger falls back to a no-op.
func New(sugar *zap.SugaredLogger) *Logger {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	return &Logger{sugar: sugar}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
