package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings are the runtime knobs read from the environment. They tune
// how the engine runs, never what it infers; that lives in the Table.
type Settings struct {
	// ConfigPath selects a table file or directory; empty uses the
	// embedded default.
	ConfigPath string `env:"FRAMEWATCH_CONFIG"`

	PollHz          int    `env:"FRAMEWATCH_POLL_HZ" envDefault:"60"`
	HistoryCapacity int    `env:"FRAMEWATCH_HISTORY" envDefault:"240"`
	ScanEvery       int    `env:"FRAMEWATCH_SCAN_EVERY" envDefault:"0"`
	LogLevel        string `env:"FRAMEWATCH_LOG_LEVEL" envDefault:"info"`

	DBPath     string `env:"FRAMEWATCH_DB"`
	CSVPath    string `env:"FRAMEWATCH_CSV"`
	LabelsCSV  string `env:"FRAMEWATCH_LABELS_CSV"`
	StreamAddr string `env:"FRAMEWATCH_STREAM_ADDR"`

	OTELEndpoint string `env:"FRAMEWATCH_OTEL_ENDPOINT"`
	ServiceName  string `env:"FRAMEWATCH_SERVICE_NAME" envDefault:"framewatch"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadSettings parses Settings from the environment and checks them.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	if s.PollHz <= 0 || s.PollHz > 1000 {
		return fmt.Errorf("poll rate must be in 1..1000 Hz, got %d", s.PollHz)
	}
	if s.HistoryCapacity < 2 {
		return fmt.Errorf("history capacity must be at least 2, got %d", s.HistoryCapacity)
	}
	if s.ScanEvery < 0 {
		return fmt.Errorf("scan cadence must not be negative, got %d", s.ScanEvery)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// PollInterval is the ticker period derived from PollHz.
func (s Settings) PollInterval() time.Duration {
	return time.Second / time.Duration(s.PollHz)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
