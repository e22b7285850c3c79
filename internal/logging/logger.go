package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel converts a string to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is a structured logger
type Logger struct {
	zl        zerolog.Logger
	component string
	closer    io.Closer
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`

	// Writer overrides Output when set
	Writer io.Writer `json:"-"`
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	output, closer := openOutput(cfg)

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(output).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeFile {
		// skip the Logger wrapper frames
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2)
	}

	return &Logger{zl: ctx.Logger(), component: cfg.Component, closer: closer}
}

func openOutput(cfg *Config) (io.Writer, io.Closer) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}

	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "logging: cannot create log directory, falling back to stdout: %v\n", err)
		return os.Stdout, nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
	}
	return io.MultiWriter(os.Stdout, rotator), rotator
}

// Default returns the default logger instance
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(&Config{
			Level:      "INFO",
			Output:     "stdout",
			Component:  "app",
			JSONFormat: true,
		})
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Close releases the rotating file handle, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) derive(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl, component: l.component, closer: l.closer}
}

// WithComponent returns a new logger with the specified component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl, component: component, closer: l.closer}
}

// WithTraceID returns a new logger with the specified trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return l.derive(l.zl.With().Str("trace_id", traceID).Logger())
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zl.With().Interface(key, value).Logger())
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields).Logger())
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(l.zl.With().Err(err).Logger())
}

// WithDuration returns a new logger with duration field
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.derive(l.zl.With().Str("duration", d.String()).Logger())
}

func (l *Logger) event(ev *zerolog.Event) *zerolog.Event {
	if ev != nil && l.component != "" {
		ev = ev.Str("component", l.component)
	}
	return ev
}

// write emits msg with args read as key-value pairs.
// A trailing value without a key is logged under "extra".
func write(ev *zerolog.Event, msg string, args ...interface{}) {
	if ev == nil {
		return
	}

	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			ev = ev.Interface("extra", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	write(l.event(l.zl.Debug()), msg, keyvals...)
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	write(l.event(l.zl.Info()), msg, keyvals...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	write(l.event(l.zl.Warn()), msg, keyvals...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	write(l.event(l.zl.Error()), msg, keyvals...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	if ev := l.event(l.zl.Info()); ev != nil {
		ev.Msgf(format, args...)
	}
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	if ev := l.event(l.zl.Warn()); ev != nil {
		ev.Msgf(format, args...)
	}
}

// WithComponent returns a new default logger with the specified component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}
