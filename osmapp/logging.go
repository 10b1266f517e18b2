package osmapp

import (
	"github.com/advdv/osmhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// OSMAPI_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogAbortedResponse(err error) {
	l.Logger.Warn("response aborted", zap.Error(err))
}

func (l zapLogger) LogTeardownError(err error) {
	l.Logger.Error("error during response teardown", zap.Error(err))
}

func (l zapLogger) LogUnhandledError(err error) {
	l.Logger.Error("unhandled error", zap.Error(err))
}

// NewZapLogger reports the errors that can't reach the client through l.
func NewZapLogger(l *zap.Logger) osmhttp.Logger {
	return zapLogger{l.Named("osmhttp")}
}
