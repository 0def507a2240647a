package logging

import (
	"context"

	"github.com/hemiko/topup_reconciler/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxFieldsKey struct{}

// ZapLogger wraps zap with context-carried fields: WithContextFields stores
// fields in the context once and every *Ctx call replays them.
type ZapLogger struct {
	lg *zap.Logger
}

func NewZapLogger(cfg *config.Config) (*ZapLogger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.Level(cfg.LogLevel))

	lg, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{lg: lg}, nil
}

func (l *ZapLogger) WithContextFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxFieldsKey{}, append(l.ctxFields(ctx), fields...))
}

func (l *ZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.lg.Debug(msg, append(l.ctxFields(ctx), fields...)...)
}

func (l *ZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.lg.Info(msg, append(l.ctxFields(ctx), fields...)...)
}

func (l *ZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.lg.Warn(msg, append(l.ctxFields(ctx), fields...)...)
}

func (l *ZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.lg.Error(msg, append(l.ctxFields(ctx), fields...)...)
}

func (l *ZapLogger) ctxFields(ctx context.Context) []zap.Field {
	fields, ok := ctx.Value(ctxFieldsKey{}).([]zap.Field)
	if !ok {
		return nil
	}

	// copy, the slice in the context must stay immutable
	out := make([]zap.Field, len(fields))
	copy(out, fields)

	return out
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *ZapLogger {
	return &ZapLogger{lg: zap.NewNop()}
}
