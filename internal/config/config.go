// Package config loads the control plane's configuration: YAML on disk,
// overridden by environment variables, overridden in turn by CLI flags set
// by the caller after Load returns. This mirrors the layered precedence the
// teacher CLI uses for its own config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/meshctl/meshcore/pkg/logging"
)

const (
	userConfigDir  = ".config/meshcore"
	configFileName = "config.yaml"
	stateFileName  = "state.json"
)

// RegistryConfig configures the registry HTTP service.
type RegistryConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	DatabasePath   string `yaml:"database_path"`
	RedisAddr      string `yaml:"redis_addr,omitempty"`
	CacheTTLSecs   int    `yaml:"cache_ttl_seconds,omitempty"`
	HealthTickSecs int    `yaml:"health_tick_seconds,omitempty"`
}

// Config is the top-level configuration structure for the control plane.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	LogJSON  bool           `yaml:"log_json"`
	Registry RegistryConfig `yaml:"registry"`
}

// Default returns the configuration used when no file, env var, or flag
// overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		Registry: RegistryConfig{
			Host:           "localhost",
			Port:           8080,
			DatabasePath:   "meshcore.db",
			CacheTTLSecs:   30,
			HealthTickSecs: 30,
		},
	}
}

// DefaultConfigDir returns ~/.config/meshcore, the directory searched for
// config.yaml and the process tracker's state file when no override is
// given.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user config directory: %w", err)
	}
	return filepath.Join(home, userConfigDir), nil
}

// StatePath returns the process tracker's state file path under dir.
func StatePath(dir string) string {
	return filepath.Join(dir, stateFileName)
}

// Load reads config.yaml from dir (if present), then applies MESHCORE_*
// environment variable overrides. A missing file is not an error; it just
// means Default() is used as the starting point.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("Config", "no config.yaml at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("read config at %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config at %s: %w", path, err)
		}
		logging.Info("Config", "loaded configuration from %s", path)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MESHCORE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("MESHCORE_REGISTRY_HOST"); ok {
		cfg.Registry.Host = v
	}
	if v, ok := os.LookupEnv("MESHCORE_REGISTRY_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Registry.Port = port
		}
	}
	if v, ok := os.LookupEnv("MESHCORE_DATABASE_PATH"); ok {
		cfg.Registry.DatabasePath = v
	}
	if v, ok := os.LookupEnv("MESHCORE_REDIS_ADDR"); ok {
		cfg.Registry.RedisAddr = v
	}
}

// Save writes cfg as config.yaml under dir, creating dir if necessary.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write config to %s: %w", dir, err)
	}
	return nil
}
