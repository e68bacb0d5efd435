// Package logger wraps zerolog behind the small string-message API the
// services and repositories log through.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/finsight/scripts-backend/config"
	"github.com/rs/zerolog"
)

// Logger is tagged with the service name at construction; WithComponent
// derives per-component children from it.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds a logger from raw config values, filling in defaults for
// anything left unset. Console format is human-readable stdout; json format
// also appends to a dated file under ./logs.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	level := orDefault(cfg.Level, "info")
	format := orDefault(cfg.Format, "json")
	serviceName := orDefault(cfg.ServiceName, "scripts-backend")

	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %v", level, err)
	}

	output, err := newWriter(format, serviceName)
	if err != nil {
		return nil, err
	}

	zl := zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{logger: zl}, nil
}

// newWriter picks the sink for the chosen format. The json sink rotates by
// date through the filename, one file per service per day.
func newWriter(format, serviceName string) (io.Writer, error) {
	if format == "console" {
		return zerolog.ConsoleWriter{Out: os.Stdout}, nil
	}

	logDir := "./logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	name := fmt.Sprintf("%s/%s-%s.log", logDir, serviceName, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	return io.MultiWriter(os.Stdout, file), nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// WithComponent returns a child logger carrying a component field
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}
