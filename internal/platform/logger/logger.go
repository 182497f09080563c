// Package logger provides structured logging for the vault server.
// Every pet, ledger and session change should be traceable through this.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level and encoding for a production logger.
type Options struct {
	Level    string // debug, info, warn, error
	Encoding string // json or console
}

// Logger provides structured logging with context.
type Logger struct {
	z *zap.Logger
}

// NewLogger creates a JSON info-level logger.
func NewLogger() *Logger {
	l, err := New(Options{})
	if err != nil {
		return &Logger{z: zap.NewExample()}
	}
	return l
}

// New builds a logger from options. Unknown levels fall back to info.
func New(opts Options) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if opts.Encoding == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Debug logs verbose diagnostics.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, fields...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, fields...)
}

// Event logs a vault event in a fixed shape so event traces grep cleanly.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.z.Info("event",
		zap.String("event_type", eventType),
		zap.String("actor", actorID),
		zap.String("details", details),
	)
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
