// Package logger builds the zerolog logger the simulator uses everywhere
// outside the per-session hot path. It is grounded on the gateway's
// internal/logger.New: same Config shape, same console/json and
// sync/diode-async output modes. The addition is WithSession, which stamps
// session_id/charge_point_id fields so a session's log lines can be
// grepped out of a run with 25,000 others.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

// Config controls level, format, output target and async buffering.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
	Caller     bool   `mapstructure:"caller"`
	Async      bool   `mapstructure:"async"`
}

// DefaultConfig matches the gateway's defaults: console output to stdout,
// synchronous, with caller info for local development.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Caller:     true,
		Async:      false,
	}
}

// New builds a root zerolog.Logger from cfg. Sessions derive their own
// logger from this one via WithSession rather than constructing their own.
func New(cfg *Config) (zerolog.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
	}

	output, err := resolveOutput(cfg.Output)
	if err != nil {
		return zerolog.Logger{}, err
	}

	if cfg.Async {
		// diode.NewWriter matches the gateway's async writer: a 1000-entry
		// ring with a 10ms flush interval, dropping (and counting) rather
		// than blocking the caller when the consumer falls behind.
		dropped := output
		output = diode.NewWriter(dropped, 1000, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logger: dropped %d messages\n", missed)
		})
	}

	var logger zerolog.Logger
	switch strings.ToLower(cfg.Format) {
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat})
	case "json":
		logger = zerolog.New(output)
	default:
		return zerolog.Logger{}, fmt.Errorf("logger: unsupported format %q", cfg.Format)
	}

	logger = logger.With().Timestamp().Logger()
	if cfg.Caller {
		logger = logger.With().Caller().Logger()
	}
	return logger.Level(level), nil
}

func resolveOutput(target string) (io.Writer, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("logger: failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("logger: failed to open log file %s: %w", target, err)
		}
		return file, nil
	}
}

// WithSession returns a child logger tagged with the identifiers every
// session-scoped log line needs to be attributable in a 25,000-session run.
func WithSession(base zerolog.Logger, sessionID, chargePointID string) zerolog.Logger {
	return base.With().
		Str("session_id", sessionID).
		Str("charge_point_id", chargePointID).
		Logger()
}

// WithPool returns a child logger tagged with the owning pool/batch name,
// for the ramp controller's own log lines (as distinct from any one
// session's).
func WithPool(base zerolog.Logger, scenarioName string) zerolog.Logger {
	return base.With().Str("scenario", scenarioName).Logger()
}
