package config

import (
	"time"

	"github.com/elyn-health/phi-shield/internal/audit"
	"github.com/elyn-health/phi-shield/internal/cache"
	"github.com/elyn-health/phi-shield/internal/llm"
	"github.com/elyn-health/phi-shield/internal/security"
)

// Config represents the main configuration structure.
type Config struct {
	Server    ServerConfig             `yaml:"server" mapstructure:"server"`
	Security  security.RateLimitConfig `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig            `yaml:"logging" mapstructure:"logging"`
	Upstream  llm.Config               `yaml:"upstream" mapstructure:"upstream"`
	Cache     cache.Config             `yaml:"cache" mapstructure:"cache"`
	Audit     audit.Config             `yaml:"audit" mapstructure:"audit"`
	WebSocket WebSocketConfig          `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains dashboard event stream configuration.
type WebSocketConfig struct {
	Enabled              bool `yaml:"enabled" mapstructure:"enabled"`
	BroadcastRedactions  bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
	BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// GetDefaults returns a configuration with sensible defaults.
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Security: security.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: llm.Config{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Cache: cache.Config{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "phishield",
			DefaultTTL:     time.Hour,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		Audit: audit.Config{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/phishield?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			Enabled:              true,
			BroadcastRedactions:  true,
			BroadcastRequests:    true,
			BroadcastConnections: true,
		},
	}
	cfg.Logging.File.Path = "logs/phishield.log"
	return cfg
}
