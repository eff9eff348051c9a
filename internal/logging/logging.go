package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the CLI logger. format is "console" or "json"; logs go to stderr
// so command output on stdout stays pipeable.
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var enc zapcore.EncoderConfig
	switch format {
	case "", "console":
		format = "console"
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		enc = zap.NewProductionEncoderConfig()
		enc.TimeKey = "timestamp"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (want console or json)", format)
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(lvl),
		Development:       format == "console",
		DisableStacktrace: lvl > zapcore.DebugLevel,
		Encoding:          format,
		EncoderConfig:     enc,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	return cfg.Build()
}

// Level maps the --debug and --quiet flags onto a level name.
func Level(debug, quiet bool) string {
	switch {
	case debug:
		return "debug"
	case quiet:
		return "error"
	default:
		return "warn"
	}
}
