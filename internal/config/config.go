// Package config loads, defaults, and persists monitor configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the monitor reads at startup.
type Config struct {
	API             APIConfig          `yaml:"api"`
	RefreshInterval time.Duration      `yaml:"refresh_interval"`
	Notifications   NotificationConfig `yaml:"notifications"`
	Kubeconfig      string             `yaml:"kubeconfig"`
	History         HistoryConfig      `yaml:"history"`
	Log             LogConfig          `yaml:"log"`
}

// APIConfig contains control-plane connection settings.
type APIConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// NotificationConfig controls which pipeline outcomes are surfaced.
type NotificationConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // all, failures or none
}

// HistoryConfig contains settings for the local pipeline archive.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tkmon.yaml"
	}
	return filepath.Join(home, ".config", "tkmon", "config.yaml")
}

// StateDir returns the directory for mutable state such as the history
// database and the log file.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tkmon"
	}
	return filepath.Join(home, ".local", "share", "tkmon")
}

// Load reads the configuration file at path, expands environment
// variables in it, applies defaults and finally TKMON_* environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// Seeded before unmarshal so an absent enabled key means on; only
	// an explicit "enabled: false" turns notifications off.
	cfg := Config{Notifications: NotificationConfig{Enabled: true}}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Fresh install, defaults and env only.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.URL == "" {
		cfg.API.URL = "https://cicd.thinkube.com/api/v1"
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Notifications.Level == "" {
		cfg.Notifications.Level = "all"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(StateDir(), "history.db")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) {
	cfg.API.URL = envOrDefault("TKMON_API_URL", cfg.API.URL)
	cfg.API.Token = envOrDefault("TKMON_API_TOKEN", cfg.API.Token)
	cfg.Kubeconfig = envOrDefault("TKMON_KUBECONFIG", cfg.Kubeconfig)
	cfg.Log.Level = envOrDefault("TKMON_LOG_LEVEL", cfg.Log.Level)
	if v := os.Getenv("TKMON_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RefreshInterval = d
		}
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Save writes the configuration back to path, creating parent
// directories as needed. The file carries the bearer token, so it is
// written owner-only.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
