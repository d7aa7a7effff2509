package tigest

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog for structured logging
type Logger struct {
	logger zerolog.Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level  LogLevel
	Pretty bool
	Output io.Writer
	Fields map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  InfoLevel,
		Pretty: true,
		Output: os.Stdout,
		Fields: make(map[string]interface{}),
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = log.Output(zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(config.Output)
	}

	switch config.Level {
	case TraceLevel:
		logger = logger.Level(zerolog.TraceLevel)
	case DebugLevel:
		logger = logger.Level(zerolog.DebugLevel)
	case InfoLevel:
		logger = logger.Level(zerolog.InfoLevel)
	case WarnLevel:
		logger = logger.Level(zerolog.WarnLevel)
	case ErrorLevel:
		logger = logger.Level(zerolog.ErrorLevel)
	case FatalLevel:
		logger = logger.Level(zerolog.FatalLevel)
	}

	logger = logger.With().Timestamp().Logger()

	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &Logger{logger: logger}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithSession adds the session id to the logger
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", id).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Trace(msg string) { l.logger.Trace().Msg(msg) }
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *Logger) Tracef(format string, args ...interface{}) { l.logger.Trace().Msgf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logger.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logger.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.logger.Fatal().Msgf(format, args...) }

// LogStateChange logs a session state transition
func (l *Logger) LogStateChange(from, to SessionState) {
	l.logger.Info().
		Str("event_type", "state").
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Session state changed")
}

// LogAudioEvent logs audio-related events with structured fields
func (l *Logger) LogAudioEvent(event string, fields map[string]interface{}) {
	l.logger.Debug().
		Str("event_type", "audio").
		Str("event", event).
		Fields(fields).
		Msg("Audio event")
}

// LogToolEvent logs a tool-call dispatch or resolution
func (l *Logger) LogToolEvent(name, callID string, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "tool").
		Str("tool", name).
		Str("call_id", callID).
		Fields(fields).
		Msg("Tool event")
}

// LogError logs an AgentError with structured fields
func (l *Logger) LogError(err *AgentError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("error_time", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

// Global logger instance
var globalLogger *Logger

func init() {
	globalLogger = NewLogger(DefaultLogConfig())
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalLogger = logger
}
