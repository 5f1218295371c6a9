// Package config loads the server configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/docflow/edms/pkg/audit"
	"github.com/docflow/edms/pkg/authn"
	"github.com/docflow/edms/pkg/lifecycle"
)

// Database types.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMySQL    = "mysql"
)

// Auth modes.
const (
	AuthHeader = "header"
	AuthJWT    = "jwt"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Audit     audit.Config    `yaml:"audit"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
}

type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// LifecycleConfig holds the engine's validation rules and the service's
// retry budget for commits that lose a concurrent race.
type LifecycleConfig struct {
	lifecycle.Rules `yaml:",inline"`
	CommitRetries   int `yaml:"commitRetries"`
}

// StorageConfig locates uploaded file content. An empty ContentDir turns
// content diffs off; zero ContentCacheEntries disables the text cache.
type StorageConfig struct {
	ContentDir          string        `yaml:"contentDir"`
	MaxContentBytes     int64         `yaml:"maxContentBytes"`
	ContentCacheEntries int           `yaml:"contentCacheEntries"`
	ContentCacheTTL     time.Duration `yaml:"contentCacheTTL"`
}

type AuthConfig struct {
	Mode string          `yaml:"mode"`
	JWT  authn.JWTConfig `yaml:"jwt"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Database: DatabaseConfig{
			Type: DatabaseSQLite,
			DSN:  "edms.db",
		},
		Lifecycle: LifecycleConfig{
			Rules:         lifecycle.DefaultRules(),
			CommitRetries: 3,
		},
		Audit: audit.DefaultConfig(),
		Auth:  AuthConfig{Mode: AuthHeader},
		Storage: StorageConfig{
			ContentCacheEntries: 256,
			ContentCacheTTL:     10 * time.Minute,
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults, then
// applies environment overrides. If the file does not exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides individual keys from EDMS_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EDMS_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("EDMS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("EDMS_DATABASE_TYPE"); v != "" {
		c.Database.Type = strings.ToLower(v)
	}
	if v := os.Getenv("EDMS_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("EDMS_COMMIT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lifecycle.CommitRetries = n
		}
	}
	if v := os.Getenv("EDMS_CONTENT_DIR"); v != "" {
		c.Storage.ContentDir = v
	}
	if v := os.Getenv("EDMS_AUTH_MODE"); v != "" {
		c.Auth.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("EDMS_JWT_PUBLIC_KEY_PATH"); v != "" {
		c.Auth.JWT.PublicKeyPath = v
	}
	if v := os.Getenv("EDMS_JWT_ISSUER"); v != "" {
		c.Auth.JWT.Issuer = v
	}
	if v := os.Getenv("EDMS_JWT_AUDIENCE"); v != "" {
		c.Auth.JWT.Audience = v
	}
	c.Audit.ApplyEnv()
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}

	switch c.Database.Type {
	case DatabaseSQLite, DatabasePostgres, DatabaseMySQL:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required"))
		} else if c.Database.Type == DatabaseMySQL {
			if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
				errs = append(errs, fmt.Errorf("database.dsn: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not one of sqlite, postgres, mysql", c.Database.Type))
	}

	for _, r := range []struct {
		key string
		val int
	}{
		{"lifecycle.minCommentLength", c.Lifecycle.MinCommentLength},
		{"lifecycle.minReasonLength", c.Lifecycle.MinReasonLength},
		{"lifecycle.minSummaryLength", c.Lifecycle.MinSummaryLength},
	} {
		if r.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", r.key, r.val))
		}
	}
	if c.Lifecycle.CommitRetries < 0 {
		errs = append(errs, fmt.Errorf("lifecycle.commitRetries must not be negative, got %d", c.Lifecycle.CommitRetries))
	}
	if c.Storage.MaxContentBytes < 0 {
		errs = append(errs, fmt.Errorf("storage.maxContentBytes must not be negative, got %d", c.Storage.MaxContentBytes))
	}
	if c.Storage.ContentCacheEntries < 0 {
		errs = append(errs, fmt.Errorf("storage.contentCacheEntries must not be negative, got %d", c.Storage.ContentCacheEntries))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("audit.retentionDays must not be negative, got %d", c.Audit.RetentionDays))
	}

	switch c.Auth.Mode {
	case AuthHeader, AuthJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not one of header, jwt", c.Auth.Mode))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
