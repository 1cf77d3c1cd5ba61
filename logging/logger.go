// Package logging provides the structured run logger. Every event is a single
// JSON object with ts, level and message keys, plus optional adapterId, code
// and data fields.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/feedsnap/failure"
)

// Logger wraps zap with helpers for taxonomy-coded events.
type Logger struct {
	zap *zap.Logger
}

// Config selects the level and encoding of a Logger.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or console
}

// ConfigFromEnv reads FEEDSNAP_LOG_LEVEL and FEEDSNAP_LOG_FORMAT.
func ConfigFromEnv() Config {
	return Config{
		Level:  os.Getenv("FEEDSNAP_LOG_LEVEL"),
		Format: os.Getenv("FEEDSNAP_LOG_FORMAT"),
	}
}

// New creates a logger writing to w.
func New(cfg Config, w io.Writer) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(zapcore.AddSync(w)), level)
	return &Logger{zap: zap.New(core)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Event logs a taxonomy-coded event at the given level.
func (l *Logger) Event(level zapcore.Level, code failure.Code, msg string, fields ...zap.Field) {
	l.zap.Log(level, msg, append([]zap.Field{Code(code)}, fields...)...)
}

// With returns a child logger that adds fields to every event.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	// stderr and stdout do not support fsync on Linux
	if err != nil && (errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)) {
		return nil
	}
	return err
}

// Field constructors for the keys of the event shape.

func AdapterID(id string) zap.Field { return zap.String("adapterId", id) }
func TargetID(id string) zap.Field  { return zap.String("targetId", id) }
func RunID(id string) zap.Field     { return zap.String("runId", id) }
func Code(c failure.Code) zap.Field { return zap.String("code", string(c)) }
func Data(v any) zap.Field          { return zap.Any("data", v) }
func Err(err error) zap.Field       { return zap.Error(err) }
