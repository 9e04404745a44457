package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey int

const (
	fieldsKey contextKey = iota
)

type ZapLogger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

func NewZapLogger(level zapcore.Level) (*ZapLogger, error) {
	atomicLevel := zap.NewAtomicLevelAt(level)
	s := defaultSettings(atomicLevel)
	logger, err := s.config.Build(s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{
		logger: logger,
		level:  atomicLevel,
	}, nil
}

// NewFromZap wraps an already built logger, e.g. zaptest or zap.NewNop in tests.
func NewFromZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{
		logger: logger.WithOptions(zap.AddCallerSkip(2)),
		level:  zap.NewAtomicLevelAt(logger.Level()),
	}
}

func NewNop() *ZapLogger {
	return NewFromZap(zap.NewNop())
}

func (l *ZapLogger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync() //nolint:wrapcheck // unnecessary
}

func (l *ZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields...)
}

func (l *ZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields...)
}

func (l *ZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields...)
}

func (l *ZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields...)
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields ...zap.Field) {
	if !l.logger.Core().Enabled(level) {
		return
	}
	l.logger.Log(level, msg, append(fieldsFromContext(ctx), fields...)...)
}

// WithContextFields returns a copy of ctx carrying fields that every *Ctx call will log.
func WithContextFields(ctx context.Context, fields ...zap.Field) context.Context {
	existing := fieldsFromContext(ctx)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey, merged)
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, ok := ctx.Value(fieldsKey).([]zap.Field)
	if !ok {
		return nil
	}
	return fields
}
