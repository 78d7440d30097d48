package app

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the engine logger. With an empty path logging is a nop
// unless debug is set, in which case it goes to stderr. Log output never
// shares the terminal with the TUI, so file logging is the normal mode.
func NewLogger(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		if debug {
			return zap.NewDevelopment()
		}
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Encoding:    "json",
		OutputPaths: []string{path},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			MessageKey:     "message",
			CallerKey:      "caller",
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	return cfg.Build()
}

// DefaultLogPath places the log next to the stored data.
func DefaultLogPath() string {
	return filepath.Join(DefaultStorageRoot(), "chat-desk.log")
}
