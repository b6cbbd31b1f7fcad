package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Format selects the log encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// ParseFormat maps a config string onto a Format, defaulting to JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatConsole)) {
		return FormatConsole
	}
	return FormatJSON
}

// ZapLogger implements the ports.Logger interface on top of zap.
type ZapLogger struct {
	zl *zap.Logger
}

// NewZapLogger creates a logger writing to stderr at the given level.
func NewZapLogger(level LogLevel, format Format) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == FormatConsole {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level.zapLevel()))
	return NewFromCore(core)
}

// NewFromCore wraps an existing zap core.
func NewFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{zl: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))}
}

// Zap exposes the underlying logger for libraries that take one directly.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.DebugLevel, msg, nil, fields...)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, msg, nil, fields...)
}

func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.WarnLevel, msg, nil, fields...)
}

func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(zapcore.ErrorLevel, msg, err, fields...)
}

func (l *ZapLogger) log(level zapcore.Level, msg string, err error, fields ...map[string]interface{}) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(toZapFields(err, fields...)...)
}

// toZapFields flattens the field maps in key order so output is stable.
func toZapFields(err error, fields ...map[string]interface{}) []zap.Field {
	var out []zap.Field
	if err != nil {
		out = append(out, zap.Error(err))
	}
	for _, m := range fields {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, fieldFor(k, m[k]))
		}
	}
	return out
}

func fieldFor(key string, v interface{}) zap.Field {
	switch val := v.(type) {
	case error:
		return zap.NamedError(key, val)
	case fmt.Stringer:
		return zap.Stringer(key, val)
	default:
		return zap.Any(key, val)
	}
}
