package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"flowhook/internal/util"
)

// ErrNotFound wraps a missing config file.
var ErrNotFound = errors.New("config file not found")

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig reads, parses, and validates the YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file '%s': %w", filename, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(fileBytes, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in '%s': %w", filename, err)
	}

	expandEnv(&config)
	ApplyDefaults(&config)

	if err := ValidateConfigManually(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.HTTP.TimeoutSeconds == 0 {
		cfg.HTTP.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.HTTP.MaxResponseBytes == 0 {
		cfg.HTTP.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = DefaultMetricsPath
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = BackendMemory
	}
	if cfg.Sessions.Redis.Prefix == "" {
		cfg.Sessions.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Directory.TimeoutSeconds == 0 {
		cfg.Directory.TimeoutSeconds = DefaultDirectoryTimeoutSeconds
	}
}

// expandEnv resolves environment references in fields that usually carry secrets or hosts.
func expandEnv(cfg *Config) {
	cfg.Sessions.Redis.Addr = util.ExpandEnvUniversal(cfg.Sessions.Redis.Addr)
	cfg.Sessions.Redis.Password = util.ExpandEnvUniversal(cfg.Sessions.Redis.Password)
	cfg.Directory.BaseURL = util.ExpandEnvUniversal(cfg.Directory.BaseURL)
	cfg.Server.Addr = util.ExpandEnvUniversal(cfg.Server.Addr)
}
