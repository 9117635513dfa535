package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger so packages share one field vocabulary
type Logger struct {
	logger zerolog.Logger
}

// Config represents logger configuration
type Config struct {
	Level      string `yaml:"level" mapstructure:"level"`             // trace, debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"`           // json, console
	Output     string `yaml:"output" mapstructure:"output"`           // stdout, stderr, file path
	Timestamp  bool   `yaml:"timestamp" mapstructure:"timestamp"`     // include timestamp
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // include caller info
	PrettyMode bool   `yaml:"pretty_mode" mapstructure:"pretty_mode"` // colored console output
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		Timestamp:  true,
		Caller:     false,
		PrettyMode: true,
	}
}

var globalLogger *Logger

// Initialize sets up the global logger with the provided configuration
func Initialize(config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	output, err := openOutput(config.Output)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	globalLogger = New(config, output)
	log.Logger = globalLogger.logger
	return nil
}

// New builds a logger writing to w without touching the global instance
func New(config *Config, w io.Writer) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var zl zerolog.Logger
	switch {
	case config.Format == "console":
		cw := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    !config.PrettyMode,
		}
		cw.FormatLevel = func(i interface{}) string {
			ll, _ := i.(string)
			switch ll {
			case "warn":
				return "WARN "
			case "error":
				return "ERROR"
			case "":
				return "     "
			default:
				return strings.ToUpper(ll)
			}
		}
		zl = zerolog.New(cw)
	default:
		zl = zerolog.New(w)
	}

	if config.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	if config.Caller {
		zl = zl.With().Caller().Logger()
	}
	return &Logger{logger: zl}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stderr", "":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Get returns the global logger instance
func Get() *Logger {
	if globalLogger == nil {
		_ = Initialize(nil)
	}
	return globalLogger
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Global shortcuts

func Debug() *zerolog.Event { return Get().Debug() }
func Info() *zerolog.Event  { return Get().Info() }
func Warn() *zerolog.Event  { return Get().Warn() }
func Error() *zerolog.Event { return Get().Error() }

// WithComponent returns a component logger derived from the global logger
func WithComponent(component string) *Logger {
	return Get().WithComponent(component)
}

// WithField returns a logger with a field using the global logger
func WithField(key string, value interface{}) *Logger {
	return Get().WithField(key, value)
}

type contextKey struct{}

// WithLogger stores l in ctx
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Get()
}
