package config

import (
	"fmt"
	"net/url"
	"strings"
)

var (
	knownLogLevels  = []string{"none", "error", "warn", "warning", "info", "debug"}
	knownLogFormats = []string{"console", "json"}
	knownBackends   = []string{BackendMemory, BackendRedis}
)

// isValidEnumValue checks case-insensitively if a value is present in a list of allowed values.
func isValidEnumValue(value string, allowedValues []string) bool {
	for _, allowed := range allowedValues {
		if strings.EqualFold(value, allowed) {
			return true
		}
	}
	return false
}

// ValidateConfigManually checks every section and reports all problems at once.
func ValidateConfigManually(cfg *Config) error {
	var allErrors []string
	allErrors = append(allErrors, validateLoggingConfig("Config.Logging", &cfg.Logging)...)
	allErrors = append(allErrors, validateHTTPConfig("Config.HTTP", &cfg.HTTP)...)
	allErrors = append(allErrors, validateServerConfig("Config.Server", &cfg.Server)...)
	allErrors = append(allErrors, validateSessionsConfig("Config.Sessions", &cfg.Sessions)...)
	allErrors = append(allErrors, validateDirectoryConfig("Config.Directory", &cfg.Directory)...)
	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	return nil
}

func validateLoggingConfig(prefix string, cfg *LoggingConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.Level, knownLogLevels) {
		errs = append(errs, fmt.Sprintf("- %s.Level: invalid log level '%s', must be one of %v", prefix, cfg.Level, knownLogLevels))
	}
	if !isValidEnumValue(cfg.Format, knownLogFormats) {
		errs = append(errs, fmt.Sprintf("- %s.Format: invalid log format '%s', must be one of %v", prefix, cfg.Format, knownLogFormats))
	}
	return errs
}

func validateHTTPConfig(prefix string, cfg *HTTPConfig) []string {
	var errs []string
	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("- %s.TimeoutSeconds: must be positive", prefix))
	}
	if cfg.MaxResponseBytes < 0 {
		errs = append(errs, fmt.Sprintf("- %s.MaxResponseBytes: must be positive", prefix))
	}
	return errs
}

func validateServerConfig(prefix string, cfg *ServerConfig) []string {
	var errs []string
	if cfg.Addr == "" {
		errs = append(errs, fmt.Sprintf("- %s.Addr: is required", prefix))
	}
	if !strings.HasPrefix(cfg.MetricsPath, "/") {
		errs = append(errs, fmt.Sprintf("- %s.MetricsPath: must start with '/'", prefix))
	}
	if cfg.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("- %s.ShutdownTimeoutSeconds: must be positive", prefix))
	}
	return errs
}

func validateSessionsConfig(prefix string, cfg *SessionsConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.Backend, knownBackends) {
		errs = append(errs, fmt.Sprintf("- %s.Backend: invalid backend '%s', must be one of %v", prefix, cfg.Backend, knownBackends))
		return errs
	}
	if strings.EqualFold(cfg.Backend, BackendRedis) {
		if cfg.Redis.Addr == "" {
			errs = append(errs, fmt.Sprintf("- %s.Redis.Addr: is required for backend 'redis'", prefix))
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, fmt.Sprintf("- %s.Redis.DB: cannot be negative", prefix))
		}
		if cfg.Redis.TTLSeconds < 0 {
			errs = append(errs, fmt.Sprintf("- %s.Redis.TTLSeconds: cannot be negative", prefix))
		}
	}
	return errs
}

func validateDirectoryConfig(prefix string, cfg *DirectoryConfig) []string {
	var errs []string
	if cfg.BaseURL != "" {
		parsedURL, err := url.ParseRequestURI(cfg.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("- %s.BaseURL: invalid URL format: %v", prefix, err))
		} else if scheme := strings.ToLower(parsedURL.Scheme); scheme != "http" && scheme != "https" {
			errs = append(errs, fmt.Sprintf("- %s.BaseURL: invalid URL scheme '%s', must be http or https", prefix, parsedURL.Scheme))
		}
	}
	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("- %s.TimeoutSeconds: must be positive", prefix))
	}
	return errs
}
