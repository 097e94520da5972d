// Package log wraps zap with the run identity attached to every entry.
//
// Call sites pass fields as a map; keys become top-level attributes of the
// entry, emitted in sorted order. A nil *Logger discards everything, so
// optional loggers need no guards.
package log

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/sieve/types"
)

// Format selects the line encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Options configures New.
type Options struct {
	Level  zapcore.Level
	Format Format
	Output io.Writer
}

// Logger is a structured logger bound to one run.
type Logger struct {
	zap *zap.Logger
}

// New builds a logger for the run described by meta. A nil meta omits the
// run fields; an empty Format means JSON.
func New(meta *types.RunMeta, opts Options) (*Logger, error) {
	enc, err := newEncoder(opts.Format)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(opts.Output), opts.Level)
	return &Logger{zap: zap.New(core).With(runFields(meta)...)}, nil
}

// NewLoggerWithWriter builds a JSON logger writing to w.
func NewLoggerWithWriter(meta *types.RunMeta, w io.Writer, level zapcore.Level) *Logger {
	l, _ := New(meta, Options{Level: level, Format: FormatJSON, Output: w})
	return l
}

// NewNop returns a logger that writes nothing.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(s)
}

func newEncoder(f Format) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	switch f {
	case "", FormatJSON:
		return zapcore.NewJSONEncoder(cfg), nil
	case FormatConsole:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (must be json or console)", f)
	}
}

func runFields(meta *types.RunMeta) []zap.Field {
	if meta == nil {
		return nil
	}
	return []zap.Field{
		zap.String("run_id", meta.RunID),
		zap.String("archive", meta.Archive),
		zap.String("mode", string(meta.Mode)),
	}
}

func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, len(keys))
	for i, k := range keys {
		out[i] = zap.Any(k, fields[k])
	}
	return out
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zap: l.zap.With(toFields(fields)...)}
}

func (l *Logger) log(level zapcore.Level, msg string, fields map[string]any) {
	if l == nil {
		return
	}
	if ce := l.zap.Check(level, msg); ce != nil {
		ce.Write(toFields(fields)...)
	}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(zapcore.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(zapcore.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.log(zapcore.ErrorLevel, msg, fields) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}
