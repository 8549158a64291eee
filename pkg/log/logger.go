package log

import (
	"bytes"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured logs tagged with a subsystem.
//
// Records below the configured level are dropped, unless the logger's
// subsystem is one of the enabled subsystems, in which case every record is
// written.
type Logger interface {
	Subsystem() string
	// WithSubsystem returns a logger tagging records with subsystem s.
	WithSubsystem(s string) Logger
	With(fields ...zap.Field) Logger
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	// StdLogger returns a standard library logger writing at the given level,
	// such as for http.Server.ErrorLog.
	StdLogger(level zapcore.Level) *stdlog.Logger
}

type logger struct {
	// core writes every record it is given. Level filtering happens in
	// logger.write.
	core zapcore.Core

	subsystem string
	// verbose is true when subsystem is enabled, so records skip the level
	// filter.
	verbose           bool
	enabledSubsystems []string
}

// NewLogger builds a logger from conf.
func NewLogger(conf *Config) (Logger, error) {
	level, err := parseLevel(conf.Level)
	if err != nil {
		return nil, err
	}

	sink, _, err := zap.Open(conf.Output)
	if err != nil {
		return nil, fmt.Errorf("open sink: %s: %w", conf.Output, err)
	}

	enc, err := newEncoder(conf.Encoding)
	if err != nil {
		return nil, err
	}

	return newLogger(zapcore.NewCore(enc, sink, level), conf.Subsystems), nil
}

func newLogger(core zapcore.Core, enabledSubsystems []string) *logger {
	l := &logger{
		core:              core,
		enabledSubsystems: enabledSubsystems,
	}
	l.setSubsystem("main")
	return l
}

func newEncoder(encoding string) (zapcore.Encoder, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	// The logger name holds the subsystem.
	encoderConfig.NameKey = "subsystem"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(
		"2006-01-02T15:04:05.999Z07:00",
	)

	switch encoding {
	case "json":
		return zapcore.NewJSONEncoder(encoderConfig), nil
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (l *logger) Subsystem() string {
	return l.subsystem
}

func (l *logger) WithSubsystem(s string) Logger {
	if s == l.subsystem {
		return l
	}

	clone := *l
	clone.setSubsystem(s)
	return &clone
}

func (l *logger) With(fields ...zap.Field) Logger {
	if len(fields) == 0 {
		return l
	}

	clone := *l
	clone.core = l.core.With(fields)
	return &clone
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.write(zapcore.DebugLevel, msg, fields)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.write(zapcore.InfoLevel, msg, fields)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.write(zapcore.WarnLevel, msg, fields)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.write(zapcore.ErrorLevel, msg, fields)
}

func (l *logger) StdLogger(level zapcore.Level) *stdlog.Logger {
	return stdlog.New(&stdWriter{logger: l, level: level}, "", 0)
}

func (l *logger) setSubsystem(s string) {
	l.subsystem = s
	l.verbose = slices.Contains(l.enabledSubsystems, s)
}

func (l *logger) write(level zapcore.Level, msg string, fields []zap.Field) {
	if !l.verbose && !l.core.Enabled(level) {
		return
	}

	ent := zapcore.Entry{
		LoggerName: l.subsystem,
		Time:       time.Now(),
		Level:      level,
		Message:    msg,
	}
	// Bypass core.Check, which would filter verbose records by level.
	ce := (*zapcore.CheckedEntry)(nil).AddCore(ent, l.core)
	ce.ErrorOutput = zapcore.Lock(os.Stderr)
	ce.Write(fields...)
}

// stdWriter writes each standard library log line as a record.
type stdWriter struct {
	logger *logger
	level  zapcore.Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	w.logger.write(w.level, string(bytes.TrimSpace(p)), nil)
	return len(p), nil
}

type nopLogger struct {
}

func NewNopLogger() Logger {
	return &nopLogger{}
}

func (l *nopLogger) Subsystem() string {
	return ""
}

func (l *nopLogger) WithSubsystem(_ string) Logger {
	return l
}

func (l *nopLogger) With(_ ...zap.Field) Logger {
	return l
}

func (l *nopLogger) Debug(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Info(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Warn(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Error(_ string, _ ...zap.Field) {
}

func (l *nopLogger) StdLogger(_ zapcore.Level) *stdlog.Logger {
	return stdlog.New(io.Discard, "", 0)
}

// parseLevel parses a level name, accepting only debug, info, warn and error.
func parseLevel(s string) (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(s)
	if err != nil || level > zapcore.ErrorLevel {
		return zapcore.InvalidLevel, fmt.Errorf("unsupported level: %s", s)
	}
	return level, nil
}
