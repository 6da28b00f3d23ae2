package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON line per action. Fields are flat key/values merged
// into the entry, the same shape every service in this repo emits.
type Logger struct {
	z       *zap.Logger
	service string
}

func New(service string) *Logger { return NewWithLevel(service, "info") }

func NewWithLevel(service, level string) *Logger {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(os.Stdout), lvl)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return FromZap(z, service)
}

// FromZap wraps an existing zap logger, e.g. zaptest.NewLogger(t) in tests.
func FromZap(z *zap.Logger, service string) *Logger {
	return &Logger{
		z:       z.With(zap.String("service", service), zap.String("hostname", hostname())),
		service: service,
	}
}

// Named returns a logger for a sub-component sharing the same sink.
func (l *Logger) Named(service string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", service)), service: service}
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{z: l.z.With(toZap(fields)...), service: l.service}
}

func (l *Logger) Zap() *zap.Logger { return l.z }

func (l *Logger) Sync() { _ = l.z.Sync() }

func (l *Logger) Info(action string, fields map[string]any) {
	l.z.Info(action, append(toZap(fields), zap.String("action", action))...)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.z.Debug(action, append(toZap(fields), zap.String("action", action))...)
}

func (l *Logger) Warn(action string, err error, fields map[string]any) {
	zf := append(toZap(fields), zap.String("action", action))
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.z.Warn(action, zf...)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.z.Error(action, append(toZap(fields), zap.String("action", action), zap.Error(err))...)
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields)+2)
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func hostname() string { h, _ := os.Hostname(); return h }
