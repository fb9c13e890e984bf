package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry.
const ServiceName = "referral-matcher"

// New builds the process logger: console output for humans, JSON for log
// shippers. Debug lowers the level and adds caller information.
func New(json bool, debug bool) (*zap.Logger, error) {
	return build(json, debug, []string{"stdout"})
}

func build(json bool, debug bool, outputs []string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}

	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "msg",
		NameKey:    "component",

		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,

		TimeKey:        "time",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if debug {
		encoderCfg.CallerKey = "caller"
		encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	cfg := zap.Config{
		Encoding:          encoding,
		Level:             zap.NewAtomicLevelAt(level),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !debug,
		EncoderConfig:     encoderCfg,
		InitialFields:     map[string]any{"service": ServiceName},
	}

	return cfg.Build()
}
