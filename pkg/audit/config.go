package audit

import (
	"os"
	"strconv"
)

// Config controls audit behavior.
type Config struct {
	RetentionDays int  `yaml:"retentionDays" json:"retentionDays"` // Default 365
	LogDenied     bool `yaml:"logDenied" json:"logDenied"`         // Whether to record denied (403) requests
	Enabled       bool `yaml:"enabled" json:"enabled"`             // Whether the request middleware is active
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 365,
		LogDenied:     true,
		Enabled:       true,
	}
}

// ApplyEnv overrides cfg from environment variables.
// EDMS_AUDIT_RETENTION_DAYS, EDMS_AUDIT_LOG_DENIED, EDMS_AUDIT_ENABLED
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv("EDMS_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			cfg.RetentionDays = days
		}
	}

	if v := os.Getenv("EDMS_AUDIT_LOG_DENIED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogDenied = b
		}
	}

	if v := os.Getenv("EDMS_AUDIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
}
