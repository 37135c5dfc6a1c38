package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	once  sync.Once
	core  zapcore.Core
	debug bool
)

// SetDebug switches the encoders and level enablers to development mode.
// It must be called before the first GetZapLogger call to take effect.
func SetDebug(enabled bool) {
	debug = enabled
}

// WithRequestID stores the request id that GetZapLogger attaches to every entry.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// GetZapLogger returns an instance of zap logger
func GetZapLogger(ctx context.Context) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		// debug and info level enabler
		debugInfoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level == zapcore.DebugLevel || level == zapcore.InfoLevel
		})

		// info level enabler
		infoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level == zapcore.InfoLevel
		})

		// warn, error and fatal level enabler
		warnErrorFatalLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level == zapcore.WarnLevel || level == zapcore.ErrorLevel || level == zapcore.FatalLevel
		})

		stdoutSyncer := zapcore.Lock(os.Stdout)
		stderrSyncer := zapcore.Lock(os.Stderr)

		if debug {
			core = zapcore.NewTee(
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), stdoutSyncer, debugInfoLevel),
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), stderrSyncer, warnErrorFatalLevel),
			)
		} else {
			core = zapcore.NewTee(
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stdoutSyncer, infoLevel),
				zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stderrSyncer, warnErrorFatalLevel),
			)
		}
	})

	logger := zap.New(core)
	if id := RequestID(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}

	return logger, err
}
