package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/userdeck/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Security      SecurityConfig      `yaml:"security"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds optional Redis settings. When URL is empty the rate
// limiter falls back to the in-process store.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// RateLimitConfig holds the fixed-window admission settings
type RateLimitConfig struct {
	Window         time.Duration `yaml:"window"`
	Max            int           `yaml:"max"`
	SkipSuccessful bool          `yaml:"skip_successful"`
	SkipFailed     bool          `yaml:"skip_failed"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
}

// SecurityConfig holds request hygiene settings
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	DeniedIPs      []string `yaml:"denied_ips"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

// AuthConfig holds session resolution settings. OIDC is optional; when
// IssuerURL is empty, tokens resolve against the database session table.
type AuthConfig struct {
	OIDCIssuerURL   string        `yaml:"oidc_issuer_url"`
	OIDCClientID    string        `yaml:"oidc_client_id"`
	SessionCacheLen int           `yaml:"session_cache_len"`
	SessionCacheTTL time.Duration `yaml:"session_cache_ttl"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables, then overlays
// the YAML file named by USERDECK_CONFIG_FILE when one is set. File values
// win over environment values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("USERDECK_HOST", "0.0.0.0"),
			Port:            getEnv("USERDECK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("USERDECK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("USERDECK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("USERDECK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("USERDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("USERDECK_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("USERDECK_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("USERDECK_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("USERDECK_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("USERDECK_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:        getEnv("USERDECK_REDIS_URL", ""),
			Password:   getEnv("USERDECK_REDIS_PASSWORD", ""),
			DB:         getEnvInt("USERDECK_REDIS_DB", 0),
			MaxRetries: getEnvInt("USERDECK_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("USERDECK_REDIS_POOL_SIZE", 10),
			KeyPrefix:  getEnv("USERDECK_REDIS_KEY_PREFIX", "userdeck:ratelimit"),
		},
		RateLimit: RateLimitConfig{
			Window:         getEnvDuration("USERDECK_RATELIMIT_WINDOW", time.Minute),
			Max:            getEnvInt("USERDECK_RATELIMIT_MAX", 100),
			SkipSuccessful: getEnvBool("USERDECK_RATELIMIT_SKIP_SUCCESSFUL", false),
			SkipFailed:     getEnvBool("USERDECK_RATELIMIT_SKIP_FAILED", false),
			ReapInterval:   getEnvDuration("USERDECK_RATELIMIT_REAP_INTERVAL", time.Minute),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvList("USERDECK_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			DeniedIPs:      getEnvList("USERDECK_DENIED_IPS", nil),
			MaxBodyBytes:   int64(getEnvInt("USERDECK_MAX_BODY_BYTES", 1<<20)),
		},
		Auth: AuthConfig{
			OIDCIssuerURL:   getEnv("USERDECK_OIDC_ISSUER_URL", ""),
			OIDCClientID:    getEnv("USERDECK_OIDC_CLIENT_ID", ""),
			SessionCacheLen: getEnvInt("USERDECK_SESSION_CACHE_LEN", 1024),
			SessionCacheTTL: getEnvDuration("USERDECK_SESSION_CACHE_TTL", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevelName:   getEnv("USERDECK_LOG_LEVEL", "info"),
			MetricsEnabled: getEnvBool("USERDECK_METRICS_ENABLED", true),
		},
	}

	if path := getEnv("USERDECK_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	if c.Security.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an issuer is configured")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
