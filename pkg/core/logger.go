package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
//
// The non-formatted methods accept a message followed by key/value pairs:
//
//	logger.Info("todo created", "id", todo.ID)
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that attaches fields to every entry
	WithFields(fields map[string]interface{}) Logger
}

// LogConfig configures a Logger
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `yaml:"level" json:"level" toml:"level"`

	// Format is one of text, json, logfmt (default: text)
	Format string `yaml:"format" json:"format" toml:"format"`

	// Caller reports the calling file and line
	Caller bool `yaml:"caller" json:"caller" toml:"caller"`

	// Prefix is prepended to every message
	Prefix string `yaml:"prefix" json:"prefix" toml:"prefix"`
}

// DefaultLogConfig returns the configuration used by NewDefaultLogger
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// charmLogger implements Logger on top of charmbracelet/log
type charmLogger struct {
	l *log.Logger
}

// NewDefaultLogger creates a logger writing text entries to stderr
func NewDefaultLogger() Logger {
	return NewLogger(os.Stderr, DefaultLogConfig())
}

// NewJSONLogger creates a logger writing JSON entries to stderr
func NewJSONLogger() Logger {
	cfg := DefaultLogConfig()
	cfg.Format = "json"
	return NewLogger(os.Stderr, cfg)
}

// NewLogger creates a logger writing to w
func NewLogger(w io.Writer, cfg LogConfig) Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	l := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatterFor(cfg.Format),
		ReportTimestamp: true,
		ReportCaller:    cfg.Caller,
		CallerOffset:    1,
		Prefix:          cfg.Prefix,
	})
	return &charmLogger{l: l}
}

func formatterFor(format string) log.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// split turns Info("msg", "k", v) style arguments into a message and key/value pairs.
// A lone non-string argument becomes the message.
func split(args []interface{}) (interface{}, []interface{}) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	}
	if _, ok := args[0].(string); !ok {
		return fmt.Sprint(args...), nil
	}
	kv := args[1:]
	if len(kv)%2 != 0 {
		return fmt.Sprint(args...), nil
	}
	return args[0], kv
}

func (c *charmLogger) Error(args ...interface{}) {
	msg, kv := split(args)
	c.l.Error(msg, kv...)
}

func (c *charmLogger) Errorf(format string, args ...interface{}) {
	c.l.Errorf(format, args...)
}

func (c *charmLogger) Warn(args ...interface{}) {
	msg, kv := split(args)
	c.l.Warn(msg, kv...)
}

func (c *charmLogger) Warnf(format string, args ...interface{}) {
	c.l.Warnf(format, args...)
}

func (c *charmLogger) Info(args ...interface{}) {
	msg, kv := split(args)
	c.l.Info(msg, kv...)
}

func (c *charmLogger) Infof(format string, args ...interface{}) {
	c.l.Infof(format, args...)
}

func (c *charmLogger) Debug(args ...interface{}) {
	msg, kv := split(args)
	c.l.Debug(msg, kv...)
}

func (c *charmLogger) Debugf(format string, args ...interface{}) {
	c.l.Debugf(format, args...)
}

// WithFields attaches fields in key order so output is stable
func (c *charmLogger) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return c
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return &charmLogger{l: c.l.With(kv...)}
}

// nopLogger discards everything
type nopLogger struct{}

// NewNopLogger returns a Logger that discards all entries
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Error(args ...interface{})                          {}
func (nopLogger) Errorf(format string, args ...interface{})          {}
func (nopLogger) Warn(args ...interface{})                           {}
func (nopLogger) Warnf(format string, args ...interface{})           {}
func (nopLogger) Info(args ...interface{})                           {}
func (nopLogger) Infof(format string, args ...interface{})           {}
func (nopLogger) Debug(args ...interface{})                          {}
func (nopLogger) Debugf(format string, args ...interface{})          {}
func (n nopLogger) WithFields(fields map[string]interface{}) Logger { return n }
