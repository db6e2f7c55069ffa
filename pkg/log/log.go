package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatConsole, FormatJSON:
		return f, nil
	case "":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

type Options struct {
	Level  zap.AtomicLevel
	Format string
	// Service is attached to every entry when set.
	Service     string
	OutputPaths []string
}

// InitLog builds the process logger. Console output is for people, json for the log collector.
func InitLog(opts Options) (*zap.Logger, error) {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == FormatJSON {
		encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	}

	loggerCfg := &zap.Config{
		Level:            opts.Level,
		Encoding:         string(format),
		EncoderConfig:    encoderCfg,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	buildOpts := []zap.Option{zap.AddStacktrace(zap.DPanicLevel)}
	if opts.Service != "" {
		buildOpts = append(buildOpts, zap.Fields(zap.String("service", opts.Service)))
	}

	logger, err := loggerCfg.Build(buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
