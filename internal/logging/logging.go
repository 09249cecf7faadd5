// Package logging constructs the logr.Logger every other package
// depends on, backed by zap. Packages take a logr.Logger parameter
// rather than importing zap directly, matching kubernaut's own
// logr-fronted logging pattern; this replaces the teacher's bare
// log.Printf calls.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
)

// New builds a production-style JSON logger at the given level name
// ("debug", "info", "warn", "error"; unrecognized values fall back to
// info).
func New(level string) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// Discard returns a no-op logger, for tests that don't care about log
// output.
func Discard() logr.Logger {
	return logr.Discard()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
