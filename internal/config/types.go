package config

// Config holds the service configuration: logging, the outbound HTTP client,
// the HTTP server, session storage and the routing directory.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	Server    ServerConfig    `yaml:"server"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Directory DirectoryConfig `yaml:"directory"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the client used for integration requests.
type HTTPConfig struct {
	TimeoutSeconds   int   `yaml:"timeout_seconds"`
	MaxResponseBytes int64 `yaml:"max_response_bytes"`
	TlsSkipVerify    bool  `yaml:"tls_skip_verify,omitempty"`
	ForceHTTP1       bool  `yaml:"force_http1,omitempty"`
}

// ServerConfig configures `flowhook serve`.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	MetricsPath            string `yaml:"metrics_path"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// SessionsConfig selects where session snapshots are stored.
type SessionsConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the redis session backend settings.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// DirectoryConfig points at the routing directory service (teams, forwardings, attendants).
type DirectoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Defaults.
const (
	DefaultTimeoutSeconds          = 30
	DefaultMaxResponseBytes        = 10 << 20
	DefaultAddr                    = ":8080"
	DefaultMetricsPath             = "/metrics"
	DefaultShutdownTimeoutSeconds  = 10
	DefaultDirectoryTimeoutSeconds = 10
	DefaultRedisPrefix             = "flowhook:session:"
)
