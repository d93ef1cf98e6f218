// Package config loads server settings from an optional YAML file and
// the environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// Config holds everything the server needs at startup
type Config struct {
	Port             string        `yaml:"port"`
	DBPath           string        `yaml:"db_path"`
	BaseURL          string        `yaml:"base_url"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	LogLevel         string        `yaml:"log_level"`
	StaticDir        string        `yaml:"static_dir"`
	DefaultMaxActive int           `yaml:"default_max_active_products"`
	AdminEmail       string        `yaml:"admin_email"`
	AdminPassword    string        `yaml:"admin_password"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Port:             "8080",
		DBPath:           "buyclub.db",
		BaseURL:          "http://localhost:8080",
		TokenTTL:         24 * time.Hour,
		LogLevel:         "info",
		StaticDir:        "./web",
		DefaultMaxActive: models.DefaultMaxActiveProducts,
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath) // #nosec G304 - path comes from the operator
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("BUYCLUB_DB_PATH", c.DBPath)
	c.BaseURL = getEnv("BUYCLUB_BASE_URL", c.BaseURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StaticDir = getEnv("BUYCLUB_STATIC_DIR", c.StaticDir)
	c.AdminEmail = getEnv("BUYCLUB_ADMIN_EMAIL", c.AdminEmail)
	c.AdminPassword = getEnv("BUYCLUB_ADMIN_PASSWORD", c.AdminPassword)

	if v := os.Getenv("BUYCLUB_DEFAULT_MAX_ACTIVE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BUYCLUB_DEFAULT_MAX_ACTIVE %q: %w", v, err)
		}
		c.DefaultMaxActive = n
	}
	if v := os.Getenv("BUYCLUB_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BUYCLUB_TOKEN_TTL %q: %w", v, err)
		}
		c.TokenTTL = d
	}
	return nil
}

// Validate checks ranges that would otherwise surface as odd runtime behaviour
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.DefaultMaxActive < 0 || c.DefaultMaxActive > models.MaxActiveProductsCap {
		return fmt.Errorf("default_max_active_products must be between 0 and %d, got %d", models.MaxActiveProductsCap, c.DefaultMaxActive)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
