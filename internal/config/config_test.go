package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default configuration failed validation: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.BaseURL == "" {
		t.Error("default upstream base URL must not be empty")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadPort", func(c *Config) { c.Server.Port = 0 }},
		{"PortTooHigh", func(c *Config) { c.Server.Port = 70000 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
		{"EmptyUpstream", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"BadRateLimit", func(c *Config) { c.Security.Enabled = true; c.Security.RequestsPerMin = 0 }},
		{"CacheWithoutURL", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisURL = "" }},
		{"AuditWithoutURL", func(c *Config) { c.Audit.Enabled = true; c.Audit.DatabaseURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
