package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tracker/config.yaml"

// Config holds all tracker configuration.
type Config struct {
	Delivery DeliveryConfig `yaml:"delivery"`
	Engine   EngineConfig   `yaml:"engine"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DeliveryConfig struct {
	Endpoint       string `yaml:"endpoint" env:"TRACKER_ENDPOINT"`
	AuthToken      string `yaml:"auth_token" env:"TRACKER_AUTH_TOKEN"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"TRACKER_TIMEOUT_SECONDS"`
}

type EngineConfig struct {
	SessionTimeoutMinutes int `yaml:"session_timeout_minutes" env:"TRACKER_SESSION_TIMEOUT_MINUTES"`
	HeartbeatSeconds      int `yaml:"heartbeat_seconds" env:"TRACKER_HEARTBEAT_SECONDS"`
	BatchSize             int `yaml:"batch_size" env:"TRACKER_BATCH_SIZE"`
	BatchIdleSeconds      int `yaml:"batch_idle_seconds" env:"TRACKER_BATCH_IDLE_SECONDS"`
	MaxBufferedEvents     int `yaml:"max_buffered_events" env:"TRACKER_MAX_BUFFERED_EVENTS"`
}

type PrivacyConfig struct {
	ConsentMode          string `yaml:"consent_mode" env:"TRACKER_CONSENT_MODE"`
	RespectDoNotTrack    bool   `yaml:"respect_do_not_track" env:"TRACKER_RESPECT_DNT"`
	ConsentValidityDays  int    `yaml:"consent_validity_days" env:"TRACKER_CONSENT_VALIDITY_DAYS"`
	VisitorRetentionDays int    `yaml:"visitor_retention_days" env:"TRACKER_VISITOR_RETENTION_DAYS"`
	EnableGeolocation    bool   `yaml:"enable_geolocation" env:"TRACKER_ENABLE_GEOLOCATION"`
}

type StorageConfig struct {
	Path       string `yaml:"path" env:"TRACKER_STORAGE_PATH"`
	SQLiteFile string `yaml:"sqlite_file" env:"TRACKER_SQLITE_FILE"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug" env:"TRACKER_DEBUG"`
}

// Load reads a YAML config file at path, merges it with defaults, then
// applies environment variable overrides. Returns an error if the file
// cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	return cfg, nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("applying environment overrides: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// DatabasePath returns the resolved SQLite file path.
func (c *Config) DatabasePath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}
