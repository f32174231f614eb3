// Package log provides structured logging with operation context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for engine paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OpMeta identifies one archive operation in log output.
type OpMeta struct {
	// OpID is a unique operation identifier. Generated when empty.
	OpID string
	// Op is the operation name (pack, unpack, list).
	Op string
	// Format is the archive format (cab, zip).
	Format string
}

// Logger provides structured logging with operation context.
// All entries include op_id and, when set, op and format.
//
// A nil *Logger is valid and discards everything.
type Logger struct {
	zap    *zap.Logger
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with operation context.
// Output defaults to os.Stderr.
func NewLogger(meta OpMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr, zapcore.DebugLevel)
}

// NewLoggerAt creates a logger writing entries at or above level ("debug",
// "info", "warn", "error") to w.
func NewLoggerAt(meta OpMeta, w io.Writer, level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return newLoggerWithWriter(meta, w, lvl), nil
}

// NewNop returns a logger that discards all output.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a new logger with a different output writer.
// Context fields are carried over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	var fields []zap.Field
	if l != nil {
		fields = l.fields
	}
	return &Logger{zap: zap.New(newCore(w, zapcore.DebugLevel)).With(fields...), fields: fields}
}

// With returns a logger carrying additional context fields.
func (l *Logger) With(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	var carried []zap.Field
	if l != nil {
		carried = append(carried, l.fields...)
	}
	return &Logger{zap: l.base().With(zf...), fields: append(carried, zf...)}
}

// base returns the underlying zap logger, or a no-op logger for nil receivers.
func (l *Logger) base() *zap.Logger {
	if l == nil || l.zap == nil {
		return zap.NewNop()
	}
	return l.zap
}

func newCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(meta OpMeta, w io.Writer, level zapcore.Level) *Logger {
	if meta.OpID == "" {
		meta.OpID = uuid.NewString()
	}

	contextFields := []zap.Field{
		zap.String("op_id", meta.OpID),
	}
	if meta.Op != "" {
		contextFields = append(contextFields, zap.String("op", meta.Op))
	}
	if meta.Format != "" {
		contextFields = append(contextFields, zap.String("format", meta.Format))
	}

	return &Logger{zap: zap.New(newCore(w, level)).With(contextFields...), fields: contextFields}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.base().Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.base().Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.base().Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.base().Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.base().Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
