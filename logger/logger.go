package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger bound to a service name.
type Logger struct {
	zl      zerolog.Logger
	service string
}

var global atomic.Pointer[Logger]

// Init builds the global logger from cfg. Component loggers handed out by Get
// before the call are rebuilt on their next lookup.
func Init(cfg Config, serviceName string) {
	cfg.ApplyDefaults()
	SetGlobal(New(&cfg, serviceName))
}

// SetGlobal replaces the global logger.
func SetGlobal(l *Logger) {
	global.Store(l)
	registry.resetDerived()
}

// Global returns the global logger, a default console logger until Init or
// SetGlobal is called.
func Global() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l := NewDefault("memexec")
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

// New creates a logger writing to the configured output.
func New(cfg *Config, serviceName string) *Logger {
	return NewWithWriter(cfg, serviceName, outputWriter(cfg.Output))
}

// NewWithWriter creates a logger that writes to w instead of the configured output.
func NewWithWriter(cfg *Config, serviceName string, w io.Writer) *Logger {
	var zl zerolog.Logger
	if cfg.console() {
		zl = zerolog.New(newConsoleWriter(w, serviceName, cfg.NoColor))
	} else {
		zl = zerolog.New(w)
	}

	zc := zl.Level(cfg.level()).With().Str("service", serviceName)
	if !cfg.NoTimestamp {
		zc = zc.Timestamp()
	}
	if cfg.Caller {
		zc = zc.Caller()
	}
	return &Logger{zl: zc.Logger(), service: serviceName}
}

// NewDefault creates an info level console logger on stderr.
func NewDefault(serviceName string) *Logger {
	cfg := Config{}
	cfg.ApplyDefaults()
	return New(&cfg, serviceName)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), service: "nop"}
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

func (l *Logger) derive(zc zerolog.Context) *Logger {
	return &Logger{zl: zc.Logger(), service: l.service}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.zl.With().Str(FieldComponent, name))
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields))
}

// WithError returns a logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zl.With().Err(err))
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]interface{})  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]interface{})  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]interface{}) { emit(l.zl.Error(), msg, fields) }

// emit is a no-op for disabled levels, where zerolog returns a nil event.
func emit(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if event == nil {
		return
	}
	for _, fm := range fields {
		event.Fields(fm)
	}
	event.Msg(msg)
}

func outputWriter(output string) io.Writer {
	if strings.EqualFold(output, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}
