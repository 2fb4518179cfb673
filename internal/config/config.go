package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and live-query stream.
	Listen string `yaml:"listen"`

	// DBPath locates the SQLite database file.
	DBPath string `yaml:"db_path"`

	// LogLevel accepts debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat accepts text or json.
	LogFormat string `yaml:"log_format"`

	// MaintenanceCron schedules the housekeeping job that freezes past
	// events to manual (standard 5-field cron spec). Empty disables it.
	MaintenanceCron string `yaml:"maintenance_cron"`
}

func Default() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		DBPath:          "planbook.db",
		LogLevel:        "info",
		LogFormat:       "text",
		MaintenanceCron: "30 3 * * *",
	}
}

// Load reads the YAML config at path, creating it with defaults on first
// run. Environment variables (PLANBOOK_LISTEN, PLANBOOK_DB_PATH,
// PLANBOOK_LOG_LEVEL) override file values.
func Load(path string) (*Config, error) {
	conf := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, conf); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PLANBOOK_LISTEN"); v != "" {
		conf.Listen = v
	}
	if v := os.Getenv("PLANBOOK_DB_PATH"); v != "" {
		conf.DBPath = v
	}
	if v := os.Getenv("PLANBOOK_LOG_LEVEL"); v != "" {
		conf.LogLevel = v
	}

	return conf, nil
}

// Save writes the config as YAML with owner-only permissions.
func Save(path string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
