// Package logging holds the process-wide zap logger used by the engine,
// adapters and CLI.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger. It starts as a stderr console logger at
// info level so packages can log before configuration is read.
var Logger = mustBuild(DefaultConfig())

// Config contains logging configuration
type Config struct {
	// Level is the minimum level (debug, info, warn, error)
	Level string `json:"level"`

	// Format is console or json
	Format string `json:"format"`

	// Output is stdout, stderr or a file path
	Output string `json:"output"`

	// Development adds stack traces on errors
	Development bool `json:"development"`
}

// DefaultConfig returns the configuration used until Initialize runs
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stderr"}
}

// New builds a logger from cfg without installing it
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console", "":
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	case "json":
		encoder = zapcore.NewJSONEncoder(enc)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr", "":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, sink, level), opts...), nil
}

// Initialize builds a logger from cfg and installs it globally
func Initialize(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

func mustBuild(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes buffered entries
func Sync() {
	_ = Logger.Sync()
}

// Named returns a child logger for a subsystem
func Named(name string) *zap.Logger {
	return Logger.Named(name)
}

// Debug logs at debug level
func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

// Info logs at info level
func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

// Warn logs at warn level
func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

// Phase logs the start of a calculation phase and returns a func that logs
// its completion with the elapsed time.
func Phase(name string, fields ...zap.Field) func() {
	start := time.Now()
	Logger.Debug("phase started", append(fields, zap.String("phase", name))...)
	return func() {
		Logger.Info("phase completed", append(fields,
			zap.String("phase", name),
			zap.Duration("elapsed", time.Since(start)))...)
	}
}
